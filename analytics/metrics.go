package analytics

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/provider"

	"github.com/pharos-hub/pharos/xmetrics"
)

const (
	BatchCounter       = "analytics_batch_count"
	EventStoredCounter = "analytics_event_stored_count"
	EventRejectCounter = "analytics_event_rejected_count"
)

// Metrics is the analytics module function that adds the intake's metrics.
func Metrics() []xmetrics.Metric {
	return []xmetrics.Metric{
		{
			Name:       BatchCounter,
			Type:       xmetrics.CounterType,
			LabelNames: []string{"disposition"},
		},
		{
			Name: EventStoredCounter,
			Type: xmetrics.CounterType,
		},
		{
			Name: EventRejectCounter,
			Type: xmetrics.CounterType,
		},
	}
}

// Measures holds the intake's metric objects.  The zero value is usable and
// discards everything.
type Measures struct {
	Batches        metrics.Counter
	EventsStored   metrics.Counter
	EventsRejected metrics.Counter
}

// NewMeasures constructs a Measures given a go-kit metrics Provider.
func NewMeasures(p provider.Provider) Measures {
	return Measures{
		Batches:        p.NewCounter(BatchCounter),
		EventsStored:   p.NewCounter(EventStoredCounter),
		EventsRejected: p.NewCounter(EventRejectCounter),
	}
}

func (m Measures) countBatch(disposition string) {
	if m.Batches != nil {
		m.Batches.With("disposition", disposition).Add(1.0)
	}
}

func (m Measures) addEvents(stored, rejected int) {
	if m.EventsStored != nil {
		m.EventsStored.Add(float64(stored))
	}

	if m.EventsRejected != nil {
		m.EventsRejected.Add(float64(rejected))
	}
}
