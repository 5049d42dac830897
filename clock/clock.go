package clock

import "time"

// Interface is the time source abstraction used wherever the hub schedules
// or measures: waiter timeouts, health collection intervals, dispatch
// durations.  Production code uses System(); tests substitute the
// deterministic clocktest fake.
type Interface interface {
	Now() time.Time
	Sleep(time.Duration)
	NewTimer(time.Duration) Timer
	NewTicker(time.Duration) Ticker
}

type systemClock struct{}

func (sc systemClock) Now() time.Time {
	return time.Now()
}

func (sc systemClock) Sleep(d time.Duration) {
	time.Sleep(d)
}

func (sc systemClock) NewTimer(d time.Duration) Timer {
	return systemTimer{time.NewTimer(d)}
}

func (sc systemClock) NewTicker(d time.Duration) Ticker {
	return systemTicker{time.NewTicker(d)}
}

// System returns a clock backed by the time package.
func System() Interface {
	return systemClock{}
}
