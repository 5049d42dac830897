package dispatch

import (
	"errors"
	"sync"
	"time"

	"github.com/xmidt-org/sallust"
	"go.uber.org/zap"

	"github.com/pharos-hub/pharos/clock"
	"github.com/pharos-hub/pharos/device"
	"github.com/pharos-hub/pharos/frame"
)

var (
	// ErrorInvalidCorrelationKey indicates a registration with an empty
	// device or correlation id.  Such a waiter could never be resolved by
	// an acknowledgement.
	ErrorInvalidCorrelationKey = errors.New("waiter keys must be non-empty strings")

	// ErrorWaitersClosed indicates a registration against a table that has
	// been shut down.
	ErrorWaitersClosed = errors.New("pending-ack table closed")
)

// Waiter is one in-flight acknowledgement-required dispatch.  The result
// slot is written exactly once, no matter how many resolution paths race:
// terminal ack, timeout, device teardown, cancellation, and table shutdown
// all funnel through the same once-guarded resolve.
type Waiter struct {
	deviceID      device.ID
	correlationID string
	progress      chan<- Update

	done   chan struct{}
	once   sync.Once
	result Result

	timer clock.Timer
}

// Done is closed once the waiter's result slot has been written.
func (w *Waiter) Done() <-chan struct{} {
	return w.done
}

// Result returns the final result.  Valid only after Done is closed.
func (w *Waiter) Result() Result {
	return w.result
}

// resolve writes the result slot.  The first caller wins; every other call
// is a no-op.  Returns whether this call was the winner.
func (w *Waiter) resolve(r Result) (won bool) {
	w.once.Do(func() {
		w.result = r
		close(w.done)
		won = true
	})

	return
}

// emitProgress forwards a progress update to the waiter's sink, if any.
// The send never blocks: a slow progress consumer loses intermediate
// updates rather than stalling the acknowledgement hot path.  Nothing is
// emitted once the result slot is written.
func (w *Waiter) emitProgress(u Update) {
	if w.progress == nil {
		return
	}

	select {
	case <-w.done:
		return
	default:
	}

	select {
	case w.progress <- u:
	default:
	}
}

// WaitersOptions configures a pending-ack table.
type WaitersOptions struct {
	// Kind is the stream kind this table serves, used for logging and the
	// pending gauge label.
	Kind frame.Kind

	// Clock drives waiter timeouts.  If nil, the system clock is used.
	Clock clock.Interface

	// Logger is the output sink for log messages.  If nil, the sallust
	// default logger is used.
	Logger *zap.Logger

	// Measures holds the dispatch metrics.  The zero value discards.
	Measures Measures
}

// Waiters is the pending-ack table for one stream kind: every in-flight
// acknowledgement-required dispatch has exactly one Waiter here, keyed by
// device id and correlation id.  Instances are safe for concurrent access.
type Waiters struct {
	kind   frame.Kind
	clock  clock.Interface
	logger *zap.Logger

	pending adder
	lock    sync.Mutex
	waiters map[device.ID]map[string]*Waiter
	closed  bool
}

// adder is the minimal gauge behavior the table needs.
type adder interface {
	Add(float64)
}

type discardAdder struct{}

func (discardAdder) Add(float64) {}

// NewWaiters constructs an empty pending-ack table.
func NewWaiters(o WaitersOptions) *Waiters {
	c := o.Clock
	if c == nil {
		c = clock.System()
	}

	logger := o.Logger
	if logger == nil {
		logger = sallust.Default()
	}

	var pending adder = discardAdder{}
	if o.Measures.Pending != nil {
		pending = o.Measures.Pending.With("kind", o.Kind.String())
	}

	return &Waiters{
		kind:    o.Kind,
		clock:   c,
		logger:  logger.With(zap.String("kind", o.Kind.String())),
		pending: pending,
		waiters: make(map[device.ID]map[string]*Waiter),
	}
}

// Len returns the count of pending waiters across all devices.
func (t *Waiters) Len() int {
	t.lock.Lock()
	defer t.lock.Unlock()

	total := 0
	for _, forDevice := range t.waiters {
		total += len(forDevice)
	}

	return total
}

// Keys returns the pending correlation ids for one device.
func (t *Waiters) Keys(id device.ID) []string {
	t.lock.Lock()
	defer t.lock.Unlock()

	forDevice := t.waiters[id]
	keys := make([]string, 0, len(forDevice))
	for key := range forDevice {
		keys = append(keys, key)
	}

	return keys
}

// Register inserts a waiter for the given dispatch and starts its timeout
// clock.  The timeout counts from registration, not from the first
// acknowledgement, and progress acknowledgements do not reset it.
//
// If a waiter already exists for the same device and correlation id, the
// new registration replaces it and the incumbent resolves cancelled: a
// colliding correlation id indicates a misbehaving caller, and the newer
// intent wins.
func (t *Waiters) Register(id device.ID, correlationID string, timeout time.Duration, progress chan<- Update) (*Waiter, error) {
	if len(id) == 0 || len(correlationID) == 0 {
		return nil, ErrorInvalidCorrelationKey
	}

	if timeout < 0 {
		timeout = 0
	}

	w := &Waiter{
		deviceID:      id,
		correlationID: correlationID,
		progress:      progress,
		done:          make(chan struct{}),
	}

	t.lock.Lock()
	if t.closed {
		t.lock.Unlock()
		return nil, ErrorWaitersClosed
	}

	forDevice := t.waiters[id]
	if forDevice == nil {
		forDevice = make(map[string]*Waiter)
		t.waiters[id] = forDevice
	}

	replaced := forDevice[correlationID]
	forDevice[correlationID] = w
	w.timer = t.clock.NewTimer(timeout)
	t.lock.Unlock()

	t.pending.Add(1.0)
	if replaced != nil {
		t.pending.Add(-1.0)
		t.logger.Error("replacing duplicate waiter",
			zap.String("id", string(id)),
			zap.String("correlationID", correlationID),
		)

		replaced.resolve(Result{
			DeviceID:      id,
			CorrelationID: correlationID,
			Outcome:       OutcomeCancelled,
			Message:       "superseded by a newer dispatch",
		})
	}

	go t.awaitTimeout(w)
	return w, nil
}

// awaitTimeout resolves the waiter when its timer fires first.  The timer
// and every other resolution path race; exactly one writes the result slot.
func (t *Waiters) awaitTimeout(w *Waiter) {
	select {
	case <-w.timer.C():
		if t.remove(w) {
			w.resolve(Result{
				DeviceID:      w.deviceID,
				CorrelationID: w.correlationID,
				Outcome:       OutcomeTimeout,
				Message:       "no terminal acknowledgement within the timeout",
				TimedOut:      true,
			})
		}

	case <-w.done:
		w.timer.Stop()
	}
}

// remove deletes the waiter from the table if it is still the registered
// holder of its key.  Pointer-matched so that late resolution of a replaced
// waiter never evicts its successor.
func (t *Waiters) remove(w *Waiter) bool {
	t.lock.Lock()
	defer t.lock.Unlock()

	forDevice := t.waiters[w.deviceID]
	if existing, ok := forDevice[w.correlationID]; ok && existing == w {
		delete(forDevice, w.correlationID)
		if len(forDevice) == 0 {
			delete(t.waiters, w.deviceID)
		}

		t.pending.Add(-1.0)
		return true
	}

	return false
}

// get returns the registered waiter for the given key, if any.
func (t *Waiters) get(id device.ID, correlationID string) (*Waiter, bool) {
	t.lock.Lock()
	defer t.lock.Unlock()

	w, ok := t.waiters[id][correlationID]
	return w, ok
}

// Deliver routes one acknowledgement to its waiter.  The return value
// indicates whether a waiter consumed the acknowledgement; stale, duplicate,
// and post-terminal acknowledgements find no waiter and are non-fatal.
//
// Non-final acknowledgements leave the waiter pending and echo a progress
// update on its sink.  Final acknowledgements write the result slot and
// remove the waiter, so any later acknowledgement for the same correlation
// id falls through as unmatched.
func (t *Waiters) Deliver(id device.ID, ack frame.Ack) bool {
	w, ok := t.get(id, ack.CorrelationID())
	if !ok {
		return false
	}

	if !ack.Final() {
		w.emitProgress(Update{
			Type:          UpdateProgress,
			DeviceID:      id,
			CorrelationID: ack.CorrelationID(),
			Status:        ack.StatusText(),
			Message:       ack.Note(),
			Progress:      ack.Snapshot(),
		})
		return true
	}

	if !t.remove(w) {
		return false
	}

	outcome := outcomeFromAck(ack)
	w.resolve(Result{
		DeviceID:      id,
		CorrelationID: ack.CorrelationID(),
		Outcome:       outcome,
		Message:       ack.Note(),
		Ack:           ack,
	})

	return true
}

// outcomeFromAck maps a terminal acknowledgement status onto the outcome
// taxonomy.  Completed is the only success.
func outcomeFromAck(ack frame.Ack) Outcome {
	if ack.Succeeded() {
		return OutcomeCompleted
	}

	switch ack.StatusText() {
	case string(frame.CommandStatusRejected):
		return OutcomeRejected
	case string(frame.ContentStatusPartial):
		return OutcomePartial
	default:
		return OutcomeFailed
	}
}

// Cancel resolves the identified waiter as cancelled, if it is still
// pending.  Cancelling an already-resolved or unknown waiter is a no-op.
func (t *Waiters) Cancel(id device.ID, correlationID string) bool {
	w, ok := t.get(id, correlationID)
	if !ok {
		return false
	}

	return t.fail(w, OutcomeCancelled, "cancelled by caller")
}

// fail removes the waiter and writes the given hub-side outcome into its
// result slot.  A simultaneous acknowledgement completion wins.
func (t *Waiters) fail(w *Waiter, outcome Outcome, message string) bool {
	if !t.remove(w) {
		return false
	}

	return w.resolve(Result{
		DeviceID:      w.deviceID,
		CorrelationID: w.correlationID,
		Outcome:       outcome,
		Message:       message,
	})
}

// FailAllForDevice resolves every pending waiter for the given device with
// the supplied outcome.  The session teardown path uses this to guarantee
// no waiter outlives its device's session.
func (t *Waiters) FailAllForDevice(id device.ID, outcome Outcome, message string) int {
	t.lock.Lock()
	forDevice := t.waiters[id]
	delete(t.waiters, id)
	t.lock.Unlock()

	for _, w := range forDevice {
		t.pending.Add(-1.0)
		w.resolve(Result{
			DeviceID:      w.deviceID,
			CorrelationID: w.correlationID,
			Outcome:       outcome,
			Message:       message,
		})
	}

	return len(forDevice)
}

// Close resolves every pending waiter as shutting down and rejects all
// subsequent registrations.
func (t *Waiters) Close() error {
	t.lock.Lock()
	if t.closed {
		t.lock.Unlock()
		return ErrorWaitersClosed
	}

	t.closed = true
	all := t.waiters
	t.waiters = make(map[device.ID]map[string]*Waiter)
	t.lock.Unlock()

	for _, forDevice := range all {
		for _, w := range forDevice {
			t.pending.Add(-1.0)
			w.resolve(Result{
				DeviceID:      w.deviceID,
				CorrelationID: w.correlationID,
				Outcome:       OutcomeShuttingDown,
				Message:       "hub shutting down",
			})
		}
	}

	return nil
}

// DisconnectListener adapts this table to the session event fabric: when a
// session is torn down, every waiter for that device resolves disconnected
// rather than waiting out its timeout.
func (t *Waiters) DisconnectListener() device.Listener {
	return func(e *device.Event) {
		if e.Type != device.Disconnect {
			return
		}

		if failed := t.FailAllForDevice(e.Device.ID(), OutcomeDisconnected, "device disconnected"); failed > 0 {
			t.logger.Info("resolved waiters for disconnected device",
				zap.String("id", string(e.Device.ID())),
				zap.Int("count", failed),
			)
		}
	}
}
