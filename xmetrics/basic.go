package xmetrics

// Adder represents a metrics to which deltas can be added.  Go-kit's metrics.Counter, metrics.Gauge, and
// several prometheus interfaces implement this interface.
type Adder interface {
	Add(float64)
}

// Setter represents a metric that can receive updates, e.g. a gauge.  Go-kit's metrics.Gauge
// and prometheus gauges implement this interface.
type Setter interface {
	Set(float64)
}

// AddSetter represents a metric that can both have deltas applied and receive new values.  Gauges most
// commonly implement this interface.
type AddSetter interface {
	Adder
	Setter
}

// Observer is a type of metric which receives observations.  Histograms and summaries implement this interface.
type Observer interface {
	Observe(float64)
}

// Incrementer represents a counting metric that can only go up by 1.  This interface
// is implemented by wrappers around go-kit or prometheus metrics.
type Incrementer interface {
	Inc()
}

// incrementerAdapter adapts an Adder to the Incrementer interface
type incrementerAdapter struct {
	Adder
}

func (ia incrementerAdapter) Inc() {
	ia.Add(1.0)
}

// NewIncrementer wraps a given Adder and returns an Incrementer that increments by 1
// with each call to Inc.
func NewIncrementer(a Adder) Incrementer {
	return incrementerAdapter{a}
}
