package gate

import (
	"sync/atomic"

	"github.com/go-kit/kit/metrics/discard"

	"github.com/pharos-hub/pharos/xmetrics"
)

const (
	gateOpen uint32 = iota
	gateClosed
)

// Interface is a concurrent condition indicating whether the hub is
// accepting work.  The dispatcher consults it before every send, and
// decorated HTTP handlers refuse traffic while it is lowered, so shutdown
// can stop admitting new dispatches before tearing sessions down.
type Interface interface {
	// Raise opens this gate.  By default, gates are initially open; use
	// WithInitiallyClosed to start closed.
	Raise()

	// Lower closes this gate.  Dispatches and decorated handlers are
	// refused until it is raised again.
	Lower()

	// IsOpen tests if this gate is open.
	IsOpen() bool
}

// Option is a configuration option for a gate Interface.
type Option func(*gate)

func WithInitiallyClosed() Option {
	return func(g *gate) {
		g.state = gateClosed
	}
}

// WithClosedGauge supplies the gauge tracking the gate's state: 1.0 while
// closed, 0.0 while open.
func WithClosedGauge(gauge xmetrics.Setter) Option {
	return func(g *gate) {
		if gauge != nil {
			g.closedGauge = gauge
		} else {
			g.closedGauge = discard.NewGauge()
		}
	}
}

// New constructs a gate Interface with zero or more options.  By default,
// the returned gate is initially open and discards its gauge updates.
func New(options ...Option) Interface {
	g := &gate{
		state:       gateOpen,
		closedGauge: discard.NewGauge(),
	}

	for _, o := range options {
		o(g)
	}

	if g.state == gateOpen {
		g.closedGauge.Set(0.0)
	} else {
		g.closedGauge.Set(1.0)
	}

	return g
}

// gate is the internal Interface implementation
type gate struct {
	state       uint32
	closedGauge xmetrics.Setter
}

func (g *gate) Raise() {
	if atomic.CompareAndSwapUint32(&g.state, gateClosed, gateOpen) {
		g.closedGauge.Set(0.0)
	}
}

func (g *gate) Lower() {
	if atomic.CompareAndSwapUint32(&g.state, gateOpen, gateClosed) {
		g.closedGauge.Set(1.0)
	}
}

func (g *gate) IsOpen() bool {
	return atomic.LoadUint32(&g.state) == gateOpen
}
