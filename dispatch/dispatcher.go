package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/xmidt-org/sallust"
	"go.uber.org/zap"

	"github.com/pharos-hub/pharos/clock"
	"github.com/pharos-hub/pharos/device"
	"github.com/pharos-hub/pharos/fleet"
	"github.com/pharos-hub/pharos/frame"
	"github.com/pharos-hub/pharos/gate"
	"github.com/pharos-hub/pharos/semaphore"
)

// DefaultMaxConcurrent is the fan-out concurrency bound applied when the
// options don't supply one.
const DefaultMaxConcurrent = 256

// Builder produces the frame for one target device of a fan-out.  Invoked
// once per device so the caller can stamp a fresh correlation id for each;
// correlation ids must be pairwise distinct within a single fan-out.
type Builder func(device.ID) (frame.Frame, error)

// Stream couples the session manager and pending-ack table of one stream
// kind.
type Stream struct {
	Manager device.Manager
	Waiters *Waiters
}

// Options configures a Dispatcher.
type Options struct {
	// Commands and Content are the two streams the dispatcher serves.
	Commands Stream
	Content  Stream

	// Fleets expands named groups into device id lists.  Required for the
	// group send operations; the others work without it.
	Fleets fleet.Resolver

	// Gate guards dispatch acceptance.  A lowered gate makes every send
	// resolve shutting-down immediately.  If nil, an always-open gate is
	// used and Close lowers it.
	Gate gate.Interface

	// MaxConcurrent bounds the number of simultaneous per-device sends
	// during a fan-out.  If unset, DefaultMaxConcurrent is used.
	MaxConcurrent int

	// Logger is the output sink for log messages.  If nil, the sallust
	// default logger is used.
	Logger *zap.Logger

	// Measures holds the dispatch metrics.  The zero value discards.
	Measures Measures

	// Clock supplies the time source for dispatch duration observations.
	// If nil, the system clock is used.
	Clock clock.Interface
}

// Dispatcher translates administrative send intents into session writes and
// pending-ack waiters, and shapes the returned results.  One instance
// serves both stream kinds.
type Dispatcher struct {
	streams  map[frame.Kind]Stream
	fleets   fleet.Resolver
	gate     gate.Interface
	limit    semaphore.Interface
	logger   *zap.Logger
	measures Measures
	clock    clock.Interface
}

// New constructs a Dispatcher from the given options.
func New(o Options) *Dispatcher {
	logger := o.Logger
	if logger == nil {
		logger = sallust.Default()
	}

	g := o.Gate
	if g == nil {
		g = gate.New()
	}

	maxConcurrent := o.MaxConcurrent
	if maxConcurrent < 1 {
		maxConcurrent = DefaultMaxConcurrent
	}

	c := o.Clock
	if c == nil {
		c = clock.System()
	}

	return &Dispatcher{
		streams: map[frame.Kind]Stream{
			frame.Command: o.Commands,
			frame.Content: o.Content,
		},
		fleets:   o.Fleets,
		gate:     g,
		limit:    semaphore.New(maxConcurrent),
		logger:   logger,
		measures: o.Measures,
		clock:    c,
	}
}

// Send dispatches one frame to one device and blocks until the dispatch
// resolves: terminal acknowledgement, timeout, teardown, cancellation, or
// shutdown.  Every condition is data in the Result.
func (d *Dispatcher) Send(ctx context.Context, kind frame.Kind, id device.ID, f frame.Frame, timeout time.Duration) Result {
	start := d.clock.Now()
	r := d.send(ctx, kind, id, f, timeout, nil)
	d.measures.countDispatch(kind.String(), r.Outcome.String())
	d.measures.observeDuration(kind.String(), d.clock.Now().Sub(start).Seconds())
	return r
}

// send is the shared unary path.  When progress is non-nil it is attached
// to the waiter so non-final acknowledgements are echoed to it.
func (d *Dispatcher) send(ctx context.Context, kind frame.Kind, id device.ID, f frame.Frame, timeout time.Duration, progress chan<- Update) Result {
	correlationID := ""
	if f != nil {
		correlationID = f.CorrelationID()
	}

	r := Result{DeviceID: id, CorrelationID: correlationID}

	if !d.gate.IsOpen() {
		r.Outcome = OutcomeShuttingDown
		r.Message = "hub shutting down"
		return r
	}

	if f == nil {
		r.Outcome = OutcomeFailed
		r.Message = "nil frame"
		return r
	}

	if err := f.Validate(); err != nil {
		r.Outcome = OutcomeFailed
		r.Message = err.Error()
		return r
	}

	st, ok := d.streams[kind]
	if !ok || st.Manager == nil {
		r.Outcome = OutcomeFailed
		r.Message = "unknown stream kind: " + kind.String()
		return r
	}

	s, ok := st.Manager.Get(id)
	if !ok || s.Closed() {
		r.Outcome = OutcomeNotConnected
		r.Message = "device not connected"
		return r
	}

	request := (&device.Request{Frame: f}).WithContext(ctx)

	if !f.NeedsAck() {
		if err := s.Send(request); err != nil {
			r.Outcome, r.Message = enqueueOutcome(err)
			return r
		}

		st.Manager.MarkActivity(id)
		r.Outcome = OutcomeCompleted
		return r
	}

	// Register before writing: an acknowledgement that beats the write's
	// return still finds its waiter.
	w, err := st.Waiters.Register(id, correlationID, timeout, progress)
	if err != nil {
		r.Outcome, r.Message = registerOutcome(err)
		return r
	}

	if err := s.Send(request); err != nil {
		outcome, message := enqueueOutcome(err)
		st.Waiters.fail(w, outcome, message)
		<-w.Done()
		return w.Result()
	}

	st.Manager.MarkActivity(id)

	select {
	case <-w.Done():
	case <-ctx.Done():
		// best effort: a simultaneous acknowledgement completion wins
		st.Waiters.fail(w, OutcomeCancelled, "cancelled by caller")
		<-w.Done()
	}

	return w.Result()
}

func enqueueOutcome(err error) (Outcome, string) {
	switch err {
	case context.Canceled, context.DeadlineExceeded:
		return OutcomeCancelled, err.Error()
	default:
		// busy, closed, or an I/O failure: the session is torn down in
		// every case
		return OutcomeDisconnected, err.Error()
	}
}

func registerOutcome(err error) (Outcome, string) {
	if err == ErrorWaitersClosed {
		return OutcomeShuttingDown, err.Error()
	}

	return OutcomeFailed, err.Error()
}

// targets snapshots the connected device ids for one stream kind.
func (d *Dispatcher) targets(kind frame.Kind) []device.ID {
	st, ok := d.streams[kind]
	if !ok || st.Manager == nil {
		return nil
	}

	ids := make([]device.ID, 0, st.Manager.Len())
	st.Manager.VisitAll(func(s device.Interface) bool {
		ids = append(ids, s.ID())
		return true
	})

	return ids
}

// SendAll dispatches one frame per connected device of the given kind and
// collects every per-device result.  The aggregate never fails because
// individual devices failed.
func (d *Dispatcher) SendAll(ctx context.Context, kind frame.Kind, build Builder, timeout time.Duration) GroupResult {
	return d.fanout(ctx, kind, "", d.targets(kind), build, timeout)
}

// SendGroup dispatches to the named fleet's members.  An unknown fleet is
// the single out-of-band failure of the engine: fleet.ErrNotFound is
// returned and no outbound write occurs.  Members without a live session
// yield not-connected results.
func (d *Dispatcher) SendGroup(ctx context.Context, kind frame.Kind, group string, build Builder, timeout time.Duration) (GroupResult, error) {
	ids, err := d.members(ctx, group)
	if err != nil {
		return GroupResult{}, err
	}

	return d.fanout(ctx, kind, group, ids, build, timeout), nil
}

func (d *Dispatcher) members(ctx context.Context, group string) ([]device.ID, error) {
	if d.fleets == nil {
		return nil, fleet.ErrNotFound
	}

	// membership may change concurrently; one snapshot per fan-out
	return d.fleets.MembersOf(ctx, group)
}

// fanout runs one concurrent per-device send for each target, bounded by
// the semaphore, and aggregates the results.
func (d *Dispatcher) fanout(ctx context.Context, kind frame.Kind, group string, ids []device.ID, build Builder, timeout time.Duration) GroupResult {
	d.measures.countFanout(kind.String())

	gr := GroupResult{
		Group:         group,
		TargetDevices: len(ids),
		Results:       make([]Result, 0, len(ids)),
	}

	var (
		wg      sync.WaitGroup
		results = make(chan Result)
	)

	for _, id := range ids {
		wg.Add(1)
		go func(id device.ID) {
			defer wg.Done()
			results <- d.dispatchOne(ctx, kind, id, build, timeout, nil)
		}(id)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	for r := range results {
		gr.add(r)
	}

	return gr
}

// dispatchOne is one device's slice of a fan-out.
func (d *Dispatcher) dispatchOne(ctx context.Context, kind frame.Kind, id device.ID, build Builder, timeout time.Duration, progress chan<- Update) Result {
	if err := d.limit.AcquireCtx(ctx); err != nil {
		return Result{DeviceID: id, Outcome: OutcomeCancelled, Message: err.Error()}
	}
	defer d.limit.Release()

	f, err := build(id)
	if err != nil {
		return Result{DeviceID: id, Outcome: OutcomeFailed, Message: err.Error()}
	}

	r := d.send(ctx, kind, id, f, timeout, progress)
	d.measures.countDispatch(kind.String(), r.Outcome.String())
	return r
}

// SendStream is the streaming variant of Send.  The returned channel
// delivers zero or more progress updates, then exactly one terminal result
// update, and closes.  Consumer cancellation via ctx cancels the waiter;
// a racing acknowledgement completion wins.
func (d *Dispatcher) SendStream(ctx context.Context, kind frame.Kind, id device.ID, f frame.Frame, timeout time.Duration) <-chan Update {
	var (
		out      = make(chan Update, 16)
		progress = make(chan Update, 16)
	)

	go func() {
		defer close(out)

		resultc := make(chan Result, 1)
		go func() {
			r := d.send(ctx, kind, id, f, timeout, progress)
			d.measures.countDispatch(kind.String(), r.Outcome.String())
			resultc <- r
		}()

		for {
			select {
			case u := <-progress:
				emit(ctx, out, u)

			case r := <-resultc:
				// progress buffered behind the terminal still precedes it
				// on the stream
				drainProgress(ctx, out, progress)
				emit(ctx, out, resultUpdate(r))
				return
			}
		}
	}()

	return out
}

// SendAllStream is the streaming variant of SendAll.
func (d *Dispatcher) SendAllStream(ctx context.Context, kind frame.Kind, build Builder, timeout time.Duration) <-chan Update {
	return d.fanoutStream(ctx, kind, "", d.targets(kind), build, timeout)
}

// SendGroupStream is the streaming variant of SendGroup.
func (d *Dispatcher) SendGroupStream(ctx context.Context, kind frame.Kind, group string, build Builder, timeout time.Duration) (<-chan Update, error) {
	ids, err := d.members(ctx, group)
	if err != nil {
		return nil, err
	}

	return d.fanoutStream(ctx, kind, group, ids, build, timeout), nil
}

// fanoutStream emits one started meta event, an interleaved sequence of
// per-device updates tagged with completion counts, and one complete meta
// event.  No cross-device ordering is guaranteed for the per-device
// updates.  Zero targets yield started then complete immediately.
func (d *Dispatcher) fanoutStream(ctx context.Context, kind frame.Kind, group string, ids []device.ID, build Builder, timeout time.Duration) <-chan Update {
	d.measures.countFanout(kind.String())

	out := make(chan Update, 64)
	go func() {
		defer close(out)

		total := len(ids)
		emit(ctx, out, Update{Type: UpdateStarted, TotalDevices: total})

		var (
			wg       sync.WaitGroup
			progress = make(chan Update, 4*total+16)
			results  = make(chan Result)
		)

		for _, id := range ids {
			wg.Add(1)
			go func(id device.ID) {
				defer wg.Done()
				results <- d.dispatchOne(ctx, kind, id, build, timeout, progress)
			}(id)
		}

		go func() {
			wg.Wait()
			close(results)
		}()

		var completed, successful, failed int
		for results != nil {
			select {
			case u := <-progress:
				u.TotalDevices = total
				u.CompletedDevices = completed
				emit(ctx, out, u)

			case r, ok := <-results:
				if !ok {
					results = nil
					continue
				}

				completed++
				if r.Outcome.Success() {
					successful++
				} else {
					failed++
				}

				u := resultUpdate(r)
				u.TotalDevices = total
				u.CompletedDevices = completed
				emit(ctx, out, u)
			}
		}

		// progress buffered behind the last result still precedes the
		// complete meta event
	drain:
		for {
			select {
			case u := <-progress:
				u.TotalDevices = total
				u.CompletedDevices = completed
				emit(ctx, out, u)
			default:
				break drain
			}
		}

		emit(ctx, out, Update{
			Type:             UpdateComplete,
			TotalDevices:     total,
			CompletedDevices: completed,
			Successful:       successful,
			Failed:           failed,
		})
	}()

	return out
}

// resultUpdate shapes a per-device Result as a terminal stream element.
func resultUpdate(r Result) Update {
	return Update{
		Type:          UpdateResult,
		DeviceID:      r.DeviceID,
		CorrelationID: r.CorrelationID,
		Status:        r.Outcome.String(),
		Message:       r.Message,
		Result:        &r,
	}
}

// emit writes one update to the stream unless the consumer has gone away.
func emit(ctx context.Context, out chan<- Update, u Update) {
	select {
	case out <- u:
	case <-ctx.Done():
	}
}

// drainProgress flushes any buffered progress updates without blocking.
func drainProgress(ctx context.Context, out chan<- Update, progress <-chan Update) {
	for {
		select {
		case u := <-progress:
			emit(ctx, out, u)
		default:
			return
		}
	}
}

// Close lowers the gate and resolves every pending waiter as shutting
// down.  No new dispatches are accepted afterward.
func (d *Dispatcher) Close() error {
	d.gate.Lower()
	for _, st := range d.streams {
		if st.Waiters != nil {
			st.Waiters.Close()
		}
	}

	d.logger.Info("dispatcher closed")
	return nil
}
