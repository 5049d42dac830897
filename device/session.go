package device

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xmidt-org/sallust"
	"go.uber.org/zap"

	"github.com/pharos-hub/pharos/frame"
)

const (
	stateOpen int32 = iota
	stateClosed
)

// Request carries one outbound frame through a session's queue.
type Request struct {
	// Frame is the frame to deliver.  Required unless Contents is set.
	Frame frame.Frame

	// Format is the encoding of Contents.  Ignored when Contents is empty.
	Format frame.Format

	// Contents optionally carries the pre-encoded frame.  When set and in
	// Msgpack format it is written to the device as is; otherwise the write
	// pump encodes Frame itself.
	Contents []byte

	ctx context.Context
}

// Context returns the context associated with this request, never nil.
func (r *Request) Context() context.Context {
	if r.ctx != nil {
		return r.ctx
	}

	return context.Background()
}

// WithContext associates a context with this request and returns the request.
func (r *Request) WithContext(ctx context.Context) *Request {
	r.ctx = ctx
	return r
}

// envelope is a tuple of a Request and a send-only channel for errors.  The
// write pump uses the complete channel to communicate the result of the
// write operation.
type envelope struct {
	request  *Request
	complete chan<- error
}

// Interface is the core type of this package: one live stream session held
// by a connected device.
//
// Instances are mostly immutable and have a strict lifecycle.  Sessions are
// initially open, and once closed cannot be reused or reopened.  A device
// must reconnect to obtain a new session.
//
// Each session is serviced by a pair of goroutines within the enclosing
// manager, referred to as pumps.  The write pump services the outbound
// queue used by Send; the read pump decodes inbound acknowledgements and
// hands them to the manager's listeners.
//
// The String() method will always return a valid JSON representation
// of this session.
type Interface interface {
	fmt.Stringer
	json.Marshaler

	// ID returns the canonicalized device identifier for this session.
	// At most one open session exists per ID within a manager.
	ID() ID

	// Kind returns the stream kind this session serves.
	Kind() frame.Kind

	// SessionID returns the unique identifier assigned at connect time.
	// Unlike ID, this value never repeats across reconnects.
	SessionID() string

	// Pending returns the count of queued outbound frames for this session.
	Pending() int

	// Closed tests if this session is closed.  When this method returns
	// true, any attempt to send frames to this device will result in an
	// error.
	Closed() bool

	// Send enqueues an outbound frame and waits for the write pump to
	// report the write outcome.  A full queue marks the device as a slow
	// consumer: the session begins closing and ErrorDeviceBusy is returned.
	//
	// This method honors the request context's cancellation semantics for
	// the waiting portion; the frame may still be written after the caller
	// gives up.
	Send(*Request) error

	// Statistics returns the tracked Statistics instance for this session
	Statistics() Statistics

	// Metadata returns the session's metadata, including the device's
	// self-reported properties.
	Metadata() Metadata

	// ResumeHint returns the opaque last-received-delivery marker the
	// device presented at connect time, or the empty string.  The hub
	// stores this value for operators; it performs no replay.
	ResumeHint() string

	// CloseReason returns the metadata explaining why a session was closed.
	// If this session is not closed, this method's return is undefined.
	CloseReason() CloseReason
}

// session is the internal Interface implementation.
type session struct {
	id   ID
	kind frame.Kind

	logger *zap.Logger

	statistics Statistics
	metadata   Metadata
	resumeHint string

	state int32

	shutdown chan struct{}
	messages chan *envelope

	// disconnectOnce guards the manager's one-time teardown work for this
	// session: deregistration and the Disconnect event.
	disconnectOnce sync.Once

	closeReason atomic.Value
}

type sessionOptions struct {
	ID          ID
	Kind        frame.Kind
	QueueSize   int
	ConnectedAt time.Time
	Logger      *zap.Logger
	Metadata    Metadata
	ResumeHint  string
	Now         func() time.Time
}

// newSession is an internal factory function for sessions
func newSession(o sessionOptions) *session {
	if o.ConnectedAt.IsZero() {
		o.ConnectedAt = time.Now()
	}

	if o.Logger == nil {
		o.Logger = sallust.Default()
	}

	if o.QueueSize < 1 {
		o.QueueSize = DefaultQueueSize
	}

	if o.Metadata == nil {
		o.Metadata = NewMetadata()
	}

	return &session{
		id:         o.ID,
		kind:       o.Kind,
		logger:     o.Logger.With(zap.String("id", string(o.ID)), zap.String("kind", o.Kind.String())),
		statistics: NewStatistics(o.Now, o.ConnectedAt),
		metadata:   o.Metadata,
		resumeHint: o.ResumeHint,
		state:      stateOpen,
		shutdown:   make(chan struct{}),
		messages:   make(chan *envelope, o.QueueSize),
	}
}

// String returns the JSON representation of this session
func (s *session) String() string {
	data, _ := s.MarshalJSON()
	return string(data)
}

func (s *session) MarshalJSON() ([]byte, error) {
	var output bytes.Buffer
	_, err := fmt.Fprintf(
		&output,
		`{"id": "%s", "kind": "%s", "sessionID": "%s", "pending": %d, "statistics": %s}`,
		s.id,
		s.kind,
		s.metadata.SessionID(),
		len(s.messages),
		s.statistics,
	)

	return output.Bytes(), err
}

// requestClose transitions this session to the closed state, recording the
// first reason supplied.  Idempotent; only the winning call's reason is kept.
func (s *session) requestClose(reason CloseReason) {
	if atomic.CompareAndSwapInt32(&s.state, stateOpen, stateClosed) {
		if len(reason.Text) == 0 {
			reason.Text = "unknown"
		}

		s.closeReason.Store(reason)
		close(s.shutdown)
	}
}

func (s *session) ID() ID {
	return s.id
}

func (s *session) Kind() frame.Kind {
	return s.kind
}

func (s *session) SessionID() string {
	return s.metadata.SessionID()
}

func (s *session) Pending() int {
	return len(s.messages)
}

func (s *session) Closed() bool {
	return atomic.LoadInt32(&s.state) != stateOpen
}

func (s *session) Send(request *Request) error {
	if s.Closed() {
		return ErrorDeviceClosed
	}

	var (
		complete = make(chan error, 1)
		e        = &envelope{
			request:  request,
			complete: complete,
		}
	)

	// A full queue means the device is not draining its stream.  Begin
	// closing the session rather than blocking or silently dropping.
	select {
	case s.messages <- e:
	case <-s.shutdown:
		return ErrorDeviceClosed
	default:
		s.logger.Error("slow consumer, closing session",
			zap.Int("pending", len(s.messages)),
		)
		s.requestClose(CloseReason{Err: ErrorDeviceBusy, Text: "slow-consumer"})
		return ErrorDeviceBusy
	}

	// once enqueued, wait until the context is cancelled, the session
	// closes, or the write pump reports a result
	select {
	case <-request.Context().Done():
		return request.Context().Err()
	case <-s.shutdown:
		return ErrorDeviceClosed
	case err := <-complete:
		return err
	}
}

func (s *session) Statistics() Statistics {
	return s.statistics
}

func (s *session) Metadata() Metadata {
	return s.metadata
}

func (s *session) ResumeHint() string {
	return s.resumeHint
}

func (s *session) CloseReason() CloseReason {
	if v, ok := s.closeReason.Load().(CloseReason); ok {
		return v
	}

	return CloseReason{}
}
