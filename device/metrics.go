package device

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/provider"

	"github.com/pharos-hub/pharos/frame"
	"github.com/pharos-hub/pharos/xmetrics"
)

const (
	DeviceGauge               = "device_count"
	ConnectCounter            = "connect_count"
	DisconnectCounter         = "disconnect_count"
	FrameSentCounter          = "frame_sent_count"
	FrameFailedCounter        = "frame_failed_count"
	AckReceivedCounter        = "ack_received_count"
	MalformedAckCounter       = "malformed_ack_count"
	DeviceLimitReachedCounter = "device_limit_reached_count"
	PingCounter               = "ping_count"
	PongCounter               = "pong_count"
)

// Metrics is the device module function that adds default session metrics
func Metrics() []xmetrics.Metric {
	return []xmetrics.Metric{
		{
			Name:       DeviceGauge,
			Type:       xmetrics.GaugeType,
			LabelNames: []string{"kind"},
		},
		{
			Name:       ConnectCounter,
			Type:       xmetrics.CounterType,
			LabelNames: []string{"kind"},
		},
		{
			Name:       DisconnectCounter,
			Type:       xmetrics.CounterType,
			LabelNames: []string{"kind"},
		},
		{
			Name:       FrameSentCounter,
			Type:       xmetrics.CounterType,
			LabelNames: []string{"kind"},
		},
		{
			Name:       FrameFailedCounter,
			Type:       xmetrics.CounterType,
			LabelNames: []string{"kind"},
		},
		{
			Name:       AckReceivedCounter,
			Type:       xmetrics.CounterType,
			LabelNames: []string{"kind"},
		},
		{
			Name:       MalformedAckCounter,
			Type:       xmetrics.CounterType,
			LabelNames: []string{"kind"},
		},
		{
			Name:       DeviceLimitReachedCounter,
			Type:       xmetrics.CounterType,
			LabelNames: []string{"kind"},
		},
		{
			Name:       PingCounter,
			Type:       xmetrics.CounterType,
			LabelNames: []string{"kind"},
		},
		{
			Name:       PongCounter,
			Type:       xmetrics.CounterType,
			LabelNames: []string{"kind"},
		},
	}
}

// Measures is a convenient struct that holds all the session-related metric
// objects for runtime consumption, preloaded with the manager's stream kind.
type Measures struct {
	Device       metrics.Gauge
	Connect      xmetrics.Incrementer
	Disconnect   xmetrics.Incrementer
	FrameSent    xmetrics.Incrementer
	FrameFailed  xmetrics.Incrementer
	AckReceived  xmetrics.Incrementer
	MalformedAck xmetrics.Incrementer
	LimitReached xmetrics.Incrementer
	Ping         metrics.Counter
	Pong         metrics.Counter
}

// NewMeasures constructs a Measures given a go-kit metrics Provider
func NewMeasures(p provider.Provider, kind frame.Kind) Measures {
	k := kind.String()
	return Measures{
		Device:       p.NewGauge(DeviceGauge).With("kind", k),
		Connect:      xmetrics.NewIncrementer(p.NewCounter(ConnectCounter).With("kind", k)),
		Disconnect:   xmetrics.NewIncrementer(p.NewCounter(DisconnectCounter).With("kind", k)),
		FrameSent:    xmetrics.NewIncrementer(p.NewCounter(FrameSentCounter).With("kind", k)),
		FrameFailed:  xmetrics.NewIncrementer(p.NewCounter(FrameFailedCounter).With("kind", k)),
		AckReceived:  xmetrics.NewIncrementer(p.NewCounter(AckReceivedCounter).With("kind", k)),
		MalformedAck: xmetrics.NewIncrementer(p.NewCounter(MalformedAckCounter).With("kind", k)),
		LimitReached: xmetrics.NewIncrementer(p.NewCounter(DeviceLimitReachedCounter).With("kind", k)),
		Ping:         p.NewCounter(PingCounter).With("kind", k),
		Pong:         p.NewCounter(PongCounter).With("kind", k),
	}
}
