package semaphore

import (
	"context"
	"time"

	"github.com/go-kit/kit/metrics/discard"

	"github.com/pharos-hub/pharos/xmetrics"
)

// InstrumentOption is a configurable option for instrumenting a semaphore.
type InstrumentOption func(*instrumentedSemaphore)

// WithResources establishes a metric tracking the held resource count.
// If a nil adder is supplied, resource counts are discarded.
func WithResources(a xmetrics.Adder) InstrumentOption {
	return func(i *instrumentedSemaphore) {
		if a != nil {
			i.resources = a
		} else {
			i.resources = discard.NewCounter()
		}
	}
}

// WithFailures establishes a metric tracking failed acquisitions.  If a
// nil adder is supplied, failure counts are discarded.
func WithFailures(a xmetrics.Adder) InstrumentOption {
	return func(i *instrumentedSemaphore) {
		if a != nil {
			i.failures = a
		} else {
			i.failures = discard.NewCounter()
		}
	}
}

// Instrument decorates an existing semaphore with a set of options.
func Instrument(s Interface, o ...InstrumentOption) Interface {
	is := &instrumentedSemaphore{
		Interface: s,
		resources: discard.NewCounter(),
		failures:  discard.NewCounter(),
	}

	for _, f := range o {
		f(is)
	}

	return is
}

type instrumentedSemaphore struct {
	Interface
	resources xmetrics.Adder
	failures  xmetrics.Adder
}

func (is *instrumentedSemaphore) Acquire() error {
	err := is.Interface.Acquire()
	if err != nil {
		is.failures.Add(1.0)
	} else {
		is.resources.Add(1.0)
	}

	return err
}

func (is *instrumentedSemaphore) AcquireWait(t <-chan time.Time) error {
	err := is.Interface.AcquireWait(t)
	if err != nil {
		is.failures.Add(1.0)
	} else {
		is.resources.Add(1.0)
	}

	return err
}

func (is *instrumentedSemaphore) AcquireCtx(ctx context.Context) error {
	err := is.Interface.AcquireCtx(ctx)
	if err != nil {
		is.failures.Add(1.0)
	} else {
		is.resources.Add(1.0)
	}

	return err
}

func (is *instrumentedSemaphore) TryAcquire() bool {
	acquired := is.Interface.TryAcquire()
	if acquired {
		is.resources.Add(1.0)
	} else {
		is.failures.Add(1.0)
	}

	return acquired
}

func (is *instrumentedSemaphore) Release() error {
	err := is.Interface.Release()
	if err == nil {
		is.resources.Add(-1.0)
	}

	return err
}
