// Package clocktest provides a deterministic clock.Interface for tests.
// Time only moves when the test calls Advance, and timers fire exactly at
// their deadlines, so timeout behavior can be asserted without sleeping.
package clocktest

import (
	"sort"
	"sync"
	"time"

	"github.com/pharos-hub/pharos/clock"
)

// Clock is a manually advanced clock.Interface.  Safe for concurrent use.
type Clock struct {
	lock   sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

var _ clock.Interface = (*Clock)(nil)

// New constructs a fake clock frozen at the given instant.
func New(now time.Time) *Clock {
	return &Clock{now: now}
}

func (c *Clock) Now() time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.now
}

// Sleep returns immediately.  Durations are irrelevant to a clock that only
// moves on Advance.
func (c *Clock) Sleep(time.Duration) {}

// Advance moves the clock forward and fires every timer whose deadline has
// been reached, in deadline order.
func (c *Clock) Advance(d time.Duration) {
	c.lock.Lock()
	c.now = c.now.Add(d)
	now := c.now

	remaining := c.timers[:0]
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.deadline.After(now) {
			due = append(due, t)
		} else {
			remaining = append(remaining, t)
		}
	}
	c.timers = remaining
	c.lock.Unlock()

	sort.SliceStable(due, func(i, j int) bool {
		return due[i].deadline.Before(due[j].deadline)
	})

	for _, t := range due {
		t.fire(now)
	}
}

// NewTimer returns a timer that fires when the clock reaches now+d.  A
// nonpositive duration fires immediately, matching time.NewTimer.
func (c *Clock) NewTimer(d time.Duration) clock.Timer {
	t := &fakeTimer{
		clock: c,
		c:     make(chan time.Time, 1),
	}

	c.lock.Lock()
	t.deadline = c.now.Add(d)
	if d <= 0 {
		now := c.now
		c.lock.Unlock()
		t.fire(now)
		return t
	}

	c.timers = append(c.timers, t)
	c.lock.Unlock()
	return t
}

// NewTicker returns a ticker that ticks once each time Advance crosses its
// period.  The fake reschedules the underlying timer after each tick.
func (c *Clock) NewTicker(d time.Duration) clock.Ticker {
	t := &fakeTicker{
		clock:  c,
		period: d,
		c:      make(chan time.Time, 1),
	}

	c.lock.Lock()
	t.timer = &fakeTimer{
		clock:    c,
		c:        t.c,
		deadline: c.now.Add(d),
		onFire:   t.reschedule,
	}
	c.timers = append(c.timers, t.timer)
	c.lock.Unlock()

	return t
}

// removeTimer detaches a pending timer, returning whether it was found.
func (c *Clock) removeTimer(t *fakeTimer) bool {
	c.lock.Lock()
	defer c.lock.Unlock()

	for i, candidate := range c.timers {
		if candidate == t {
			c.timers = append(c.timers[:i], c.timers[i+1:]...)
			return true
		}
	}

	return false
}

type fakeTimer struct {
	clock    *Clock
	c        chan time.Time
	deadline time.Time
	onFire   func()
}

var _ clock.Timer = (*fakeTimer)(nil)

func (t *fakeTimer) C() <-chan time.Time {
	return t.c
}

func (t *fakeTimer) fire(now time.Time) {
	select {
	case t.c <- now:
	default:
	}

	if t.onFire != nil {
		t.onFire()
	}
}

func (t *fakeTimer) Stop() bool {
	return t.clock.removeTimer(t)
}

func (t *fakeTimer) Reset(d time.Duration) bool {
	active := t.clock.removeTimer(t)

	t.clock.lock.Lock()
	t.deadline = t.clock.now.Add(d)
	t.clock.timers = append(t.clock.timers, t)
	t.clock.lock.Unlock()

	return active
}

type fakeTicker struct {
	clock  *Clock
	period time.Duration
	c      chan time.Time
	timer  *fakeTimer
}

var _ clock.Ticker = (*fakeTicker)(nil)

func (t *fakeTicker) C() <-chan time.Time {
	return t.c
}

func (t *fakeTicker) reschedule() {
	t.clock.lock.Lock()
	t.timer.deadline = t.clock.now.Add(t.period)
	t.clock.timers = append(t.clock.timers, t.timer)
	t.clock.lock.Unlock()
}

func (t *fakeTicker) Stop() {
	t.clock.removeTimer(t.timer)
}
