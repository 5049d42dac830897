package dispatch

import (
	"github.com/xmidt-org/sallust"
	"go.uber.org/zap"

	"github.com/pharos-hub/pharos/device"
	"github.com/pharos-hub/pharos/frame"
)

// Activity is the slice of the session layer the router needs: bumping a
// device's last-activity timestamp.  device.Manager satisfies it.
type Activity interface {
	MarkActivity(device.ID) bool
}

// Route couples the pending-ack table and activity tracker of one stream
// kind.
type Route struct {
	Waiters  *Waiters
	Activity Activity
}

// RouterOptions configures an AckRouter.
type RouterOptions struct {
	Commands Route
	Content  Route
	Logger   *zap.Logger
	Measures Measures
}

// AckRouter is the single inbound hot path: every acknowledgement the
// transport receives, whether from a websocket read pump or the unary
// acknowledge endpoint, goes through Route.  The router itself holds no
// state.
type AckRouter struct {
	routes   map[frame.Kind]Route
	logger   *zap.Logger
	measures Measures
}

// NewAckRouter constructs an AckRouter from the given options.
func NewAckRouter(o RouterOptions) *AckRouter {
	logger := o.Logger
	if logger == nil {
		logger = sallust.Default()
	}

	return &AckRouter{
		routes: map[frame.Kind]Route{
			frame.Command: o.Commands,
			frame.Content: o.Content,
		},
		logger:   logger,
		measures: o.Measures,
	}
}

// Route delivers one acknowledgement: bump the device's activity, hand the
// acknowledgement to the pending-ack table, and account for it.  Unmatched
// acknowledgements, stale, duplicate, or post-terminal, are logged and
// dropped without error.
func (ar *AckRouter) Route(kind frame.Kind, id device.ID, ack frame.Ack) bool {
	route, ok := ar.routes[kind]
	if !ok || route.Waiters == nil {
		ar.logger.Error("acknowledgement for unknown stream kind",
			zap.String("kind", kind.String()),
			zap.String("id", string(id)),
		)
		return false
	}

	if route.Activity != nil {
		route.Activity.MarkActivity(id)
	}

	if !route.Waiters.Deliver(id, ack) {
		ar.measures.countUnmatched(kind.String())
		ar.logger.Debug("dropping unmatched acknowledgement",
			zap.String("kind", kind.String()),
			zap.String("id", string(id)),
			zap.String("correlationID", ack.CorrelationID()),
			zap.String("status", ack.StatusText()),
		)
		return false
	}

	ar.measures.countRouted(kind.String())
	return true
}

// Listener adapts the router to the session event fabric, consuming the
// AckReceived events a manager's read pump dispatches.
func (ar *AckRouter) Listener() device.Listener {
	return func(e *device.Event) {
		if e.Type != device.AckReceived || e.Ack == nil {
			return
		}

		ar.Route(e.Kind, e.Device.ID(), e.Ack)
	}
}
