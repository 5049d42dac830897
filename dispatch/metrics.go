package dispatch

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/provider"

	"github.com/pharos-hub/pharos/xmetrics"
)

const (
	PendingAckGauge        = "pending_ack_count"
	DispatchCounter        = "dispatch_count"
	FanoutCounter          = "fanout_count"
	AckRoutedCounter       = "ack_routed_count"
	AckUnmatchedCounter    = "ack_unmatched_count"
	DispatchDurationMetric = "dispatch_duration_seconds"
)

// Metrics is the dispatch module function that adds the engine's metrics.
func Metrics() []xmetrics.Metric {
	return []xmetrics.Metric{
		{
			Name:       PendingAckGauge,
			Type:       xmetrics.GaugeType,
			LabelNames: []string{"kind"},
		},
		{
			Name:       DispatchCounter,
			Type:       xmetrics.CounterType,
			LabelNames: []string{"kind", "outcome"},
		},
		{
			Name:       FanoutCounter,
			Type:       xmetrics.CounterType,
			LabelNames: []string{"kind"},
		},
		{
			Name:       AckRoutedCounter,
			Type:       xmetrics.CounterType,
			LabelNames: []string{"kind"},
		},
		{
			Name:       AckUnmatchedCounter,
			Type:       xmetrics.CounterType,
			LabelNames: []string{"kind"},
		},
		{
			Name:       DispatchDurationMetric,
			Type:       xmetrics.HistogramType,
			LabelNames: []string{"kind"},
			Buckets:    []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	}
}

// Measures holds the dispatch engine's metric objects for runtime
// consumption.  The zero value is usable and discards everything.
type Measures struct {
	Pending      metrics.Gauge
	Dispatch     metrics.Counter
	Fanout       metrics.Counter
	AckRouted    metrics.Counter
	AckUnmatched metrics.Counter
	Duration     metrics.Histogram
}

// NewMeasures constructs a Measures given a go-kit metrics Provider.
func NewMeasures(p provider.Provider) Measures {
	return Measures{
		Pending:      p.NewGauge(PendingAckGauge),
		Dispatch:     p.NewCounter(DispatchCounter),
		Fanout:       p.NewCounter(FanoutCounter),
		AckRouted:    p.NewCounter(AckRoutedCounter),
		AckUnmatched: p.NewCounter(AckUnmatchedCounter),
		Duration:     p.NewHistogram(DispatchDurationMetric, 11),
	}
}

// countDispatch records one dispatch outcome, tolerating a zero Measures.
func (m Measures) countDispatch(kind, outcome string) {
	if m.Dispatch != nil {
		m.Dispatch.With("kind", kind, "outcome", outcome).Add(1.0)
	}
}

func (m Measures) countFanout(kind string) {
	if m.Fanout != nil {
		m.Fanout.With("kind", kind).Add(1.0)
	}
}

func (m Measures) countRouted(kind string) {
	if m.AckRouted != nil {
		m.AckRouted.With("kind", kind).Add(1.0)
	}
}

func (m Measures) countUnmatched(kind string) {
	if m.AckUnmatched != nil {
		m.AckUnmatched.With("kind", kind).Add(1.0)
	}
}

func (m Measures) observeDuration(kind string, seconds float64) {
	if m.Duration != nil {
		m.Duration.With("kind", kind).Observe(seconds)
	}
}
