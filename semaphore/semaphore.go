package semaphore

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned when a resource could not be acquired before the
// supplied time channel signaled.  It does not apply to AcquireCtx, which
// returns ctx.Err() instead.
var ErrTimeout = errors.New("semaphore acquire timed out")

// Interface is a counting semaphore.  Every successful acquire must be
// balanced by a Release.  The dispatcher uses one to bound the number of
// simultaneous per-device sends during a fan-out.
type Interface interface {
	// Acquire blocks until a resource is available.
	Acquire() error

	// AcquireWait attempts to acquire a resource before the given time
	// channel signals, returning ErrTimeout if it does first.
	AcquireWait(<-chan time.Time) error

	// AcquireCtx attempts to acquire a resource before the given context
	// is cancelled, returning ctx.Err() on cancellation.
	AcquireCtx(context.Context) error

	// TryAcquire acquires a resource only if one is immediately available.
	TryAcquire() bool

	// Release relinquishes a previously acquired resource.  Releasing
	// without a corresponding acquire will deadlock.
	Release() error
}

// New constructs a semaphore with the given resource count.  A nonpositive
// count panics.  A count of 1 behaves as a mutex with timeout and
// cancellation support.
func New(count int) Interface {
	if count < 1 {
		panic("the count must be positive")
	}

	return &semaphore{
		c: make(chan struct{}, count),
	}
}

// Mutex is syntactic sugar for New(1).
func Mutex() Interface {
	return New(1)
}

// semaphore is the internal Interface implementation
type semaphore struct {
	c chan struct{}
}

func (s *semaphore) Acquire() error {
	s.c <- struct{}{}
	return nil
}

func (s *semaphore) AcquireWait(t <-chan time.Time) error {
	select {
	case s.c <- struct{}{}:
		return nil
	case <-t:
		return ErrTimeout
	}
}

func (s *semaphore) AcquireCtx(ctx context.Context) error {
	select {
	case s.c <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *semaphore) TryAcquire() bool {
	select {
	case s.c <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *semaphore) Release() error {
	<-s.c
	return nil
}
