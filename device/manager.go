package device

import (
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pharos-hub/pharos/frame"
)

// emptyBuffer is solely used as an address of a global empty buffer.  This
// sentinel value resets pointers held by the write pump's encoder so the gc
// can clean things up.
var emptyBuffer = []byte{}

// Connector is a strategy interface for managing device connections to a server.
// Implementations are responsible for upgrading websocket connections and providing
// for explicit disconnection.
type Connector interface {
	// Connect upgrades an HTTP connection to a websocket and begins
	// concurrent management of the resulting session.  The request context
	// must carry a device ID, normally placed there by the UseID middleware.
	//
	// If the device already holds a live session of this manager's kind,
	// that incumbent session is completely torn down, with its Disconnect
	// event dispatched, before the new session is registered.
	Connect(http.ResponseWriter, *http.Request, http.Header) (Interface, error)

	// Disconnect closes and deregisters the session for the given id.
	// If a session was found, this method returns true.
	Disconnect(ID, CloseReason) bool

	// DisconnectIf iterates over all sessions known to this manager,
	// applying the given predicate and disconnecting any session for which
	// it returns true.  This method returns the number of sessions
	// disconnected.
	//
	// No methods on this Manager should be called from within the predicate
	// function, or a deadlock will likely occur.
	DisconnectIf(func(ID) (CloseReason, bool)) int

	// DisconnectAll disconnects all sessions from this manager, returning
	// the count of sessions disconnected.
	DisconnectAll(CloseReason) int
}

// Registry is the strategy interface for querying the set of live sessions.
// Methods in this interface follow the Visitor pattern and are typically
// executed under a read lock.
type Registry interface {
	// Len returns the count of sessions currently in this registry
	Len() int

	// Get returns the session associated with the given ID, if any
	Get(ID) (Interface, bool)

	// VisitAll applies the given visitor function to each session known to
	// this manager until the visitor returns false, returning the number of
	// sessions visited.
	//
	// No methods on this Manager should be called from within the visitor
	// function, or a deadlock will likely occur.
	VisitAll(func(Interface) bool) int
}

// Manager supplies a hub for connecting and disconnecting device sessions of
// one stream kind, as well as an access point for obtaining session metadata.
type Manager interface {
	Connector
	Registry

	// Kind returns the stream kind this manager serves.
	Kind() frame.Kind

	// MaxDevices returns the configured session limit, zero meaning none.
	MaxDevices() int

	// MarkActivity advances the activity timestamp of the identified
	// device's session, returning false if no session exists.
	MarkActivity(ID) bool
}

// NewManager constructs a Manager from a set of options.
func NewManager(o *Options) Manager {
	return &manager{
		kind:          o.kind(),
		logger:        o.logger().With(zap.String("kind", o.kind().String())),
		upgrader:      o.upgrader(),
		sessions:      newRegistry(o.shards(), o.maxDevices()),
		queueSize:     o.queueSize(),
		pingPeriod:    o.pingPeriod(),
		readDeadline:  NewDeadline(o.idlePeriod(), o.now()),
		writeDeadline: NewDeadline(o.writeTimeout(), o.now()),
		now:           o.now(),
		listeners:     o.listeners(),
		measures:      NewMeasures(o.metricsProvider(), o.kind()),
	}
}

// manager is the internal Manager implementation.
type manager struct {
	kind   frame.Kind
	logger *zap.Logger

	upgrader *websocket.Upgrader
	sessions *registry

	queueSize  int
	pingPeriod time.Duration

	readDeadline  func() time.Time
	writeDeadline func() time.Time
	now           func() time.Time

	listeners []Listener
	measures  Measures
}

func (m *manager) Kind() frame.Kind {
	return m.kind
}

func (m *manager) MaxDevices() int {
	return m.sessions.limit
}

func (m *manager) dispatch(e *Event) {
	for _, listener := range m.listeners {
		listener(e)
	}
}

func (m *manager) Connect(response http.ResponseWriter, request *http.Request, responseHeader http.Header) (Interface, error) {
	m.logger.Debug("device connect", zap.Any("url", request.URL))

	ctx := request.Context()
	id, ok := GetID(ctx)
	if !ok {
		writeError(response, http.StatusInternalServerError, ErrorMissingDeviceNameContext)
		return nil, ErrorMissingDeviceNameContext
	}

	metadata, ok := GetMetadata(ctx)
	if !ok {
		metadata = NewMetadata()
	}

	// courtesy rejection while the response can still carry a status; the
	// registry enforces the limit authoritatively after upgrade
	if limit := m.sessions.limit; limit > 0 && m.sessions.len() >= limit {
		m.measures.LimitReached.Inc()
		response.Header().Set(DeviceLimitHeader, itoa(limit))
		writeError(response, http.StatusServiceUnavailable, ErrorDeviceLimitReached)
		return nil, ErrorDeviceLimitReached
	}

	s := newSession(sessionOptions{
		ID:         id,
		Kind:       m.kind,
		QueueSize:  m.queueSize,
		Metadata:   metadata,
		ResumeHint: request.Header.Get(LastDeliveryHeader),
		Logger:     m.logger,
		Now:        m.now,
	})

	c, err := m.upgrader.Upgrade(response, request, responseHeader)
	if err != nil {
		s.logger.Error("failed websocket upgrade", zap.Error(err))
		return nil, err
	}

	s.logger.Debug("websocket upgrade complete", zap.String("remoteAddress", c.RemoteAddr().String()))

	// The incumbent, if any, is fully torn down before the new session
	// becomes visible, so that anything keyed on the device observes a
	// clean disconnect-then-connect sequence.
	for {
		existing, err := m.sessions.add(s)
		if err != nil {
			m.measures.LimitReached.Inc()
			s.logger.Error("unable to register session", zap.Error(err))
			c.Close()
			return nil, err
		}

		if existing == nil {
			break
		}

		m.closeSession(existing, CloseReason{Text: "replaced"})
	}

	m.measures.Device.Add(1.0)
	m.measures.Connect.Inc()
	m.dispatch(&Event{
		Type:   Connect,
		Device: s,
		Kind:   m.kind,
	})

	pinger := NewPinger(c, m.measures.Ping, s.id.Bytes(), m.writeDeadline)
	SetPongHandler(c, m.measures.Pong, m.readDeadline)

	closeOnce := new(sync.Once)
	go m.readPump(s, InstrumentReader(c, s.statistics), closeOnce)
	go m.writePump(s, InstrumentWriter(c, s.statistics, m.writeDeadline), pinger, closeOnce)

	s.logger.Info("session connected",
		zap.String("sessionID", s.SessionID()),
		zap.String("remoteAddress", c.RemoteAddr().String()),
	)

	return s, nil
}

// closeSession performs the one-time teardown of a session: transition to
// the closed state, deregistration, and the Disconnect event.  Safe to call
// from any goroutine, any number of times.
func (m *manager) closeSession(s *session, reason CloseReason) {
	s.requestClose(reason)

	if m.sessions.removeSession(s) {
		m.measures.Device.Add(-1.0)
	}

	s.disconnectOnce.Do(func() {
		m.measures.Disconnect.Inc()
		s.logger.Info("session closed",
			zap.String("reason", s.CloseReason().Text),
			zap.Error(s.CloseReason().Err),
		)

		m.dispatch(&Event{
			Type:   Disconnect,
			Device: s,
			Kind:   m.kind,
		})
	})
}

// pumpClose handles the proper shutdown and logging of a session's pumps.
// This method should be executed within a sync.Once, so that it only
// executes once for a given session.
func (m *manager) pumpClose(s *session, c io.Closer, reason CloseReason) {
	m.closeSession(s, reason)

	closeError := c.Close()
	s.logger.Debug("connection closed",
		zap.NamedError("closeError", closeError),
		zap.String("reason", reason.Text),
		zap.String("finalStatistics", s.Statistics().String()),
	)
}

// readPump is the goroutine which handles the stream of acknowledgements
// from a device.  This goroutine exits when any error occurs on the
// connection.
func (m *manager) readPump(s *session, r ReadCloser, closeOnce *sync.Once) {
	s.logger.Debug("readPump starting")
	defer s.logger.Debug("readPump exiting")

	var readError error

	// all the read pump has to do is ensure the session and the connection
	// are closed; the write pump is responsible for further cleanup
	defer func() {
		closeOnce.Do(func() { m.pumpClose(s, r, CloseReason{Err: readError, Text: "read-error"}) })
	}()

	for {
		messageType, data, err := r.ReadMessage()
		if err != nil {
			readError = err
			return
		}

		format := frame.Msgpack
		if messageType == websocket.TextMessage {
			format = frame.JSON
		}

		ack, err := frame.DecodeAck(m.kind, format, data)
		if err != nil {
			m.measures.MalformedAck.Inc()
			s.logger.Error("skipping malformed acknowledgement", zap.Error(err))
			continue
		}

		m.measures.AckReceived.Inc()
		m.dispatch(&Event{
			Type:     AckReceived,
			Device:   s,
			Kind:     m.kind,
			Ack:      ack,
			Format:   format,
			Contents: data,
		})
	}
}

// writePump is the goroutine which services frames addressed to a device.
// This goroutine exits when either an explicit shutdown is requested or any
// error occurs on the connection.
func (m *manager) writePump(s *session, w WriteCloser, pinger func() error, closeOnce *sync.Once) {
	s.logger.Debug("writePump starting")
	defer s.logger.Debug("writePump exiting")

	var (
		e          *envelope
		encoder    = frame.NewEncoder(nil, frame.Msgpack)
		writeError error

		pingTicker = time.NewTicker(m.pingPeriod)
	)

	// cleanup: ensure the session and connection are closed, then dispatch
	// FrameFailed events for anything still queued.  The envelopes' complete
	// channels are deliberately left untouched here; senders unblock via the
	// session's shutdown channel and report ErrorDeviceClosed.
	defer func() {
		pingTicker.Stop()
		closeOnce.Do(func() { m.pumpClose(s, w, CloseReason{Err: writeError, Text: "write-error"}) })

		if e != nil {
			m.measures.FrameFailed.Inc()
			m.dispatch(&Event{
				Type:     FrameFailed,
				Device:   s,
				Kind:     m.kind,
				Frame:    e.request.Frame,
				Format:   e.request.Format,
				Contents: e.request.Contents,
				Error:    writeError,
			})
		}

		for {
			select {
			case undeliverable := <-s.messages:
				s.logger.Error("undeliverable frame", zap.String("correlationID", correlationOf(undeliverable.request)))
				m.measures.FrameFailed.Inc()
				m.dispatch(&Event{
					Type:     FrameFailed,
					Device:   s,
					Kind:     m.kind,
					Frame:    undeliverable.request.Frame,
					Format:   undeliverable.request.Format,
					Contents: undeliverable.request.Contents,
				})
			default:
				return
			}
		}
	}()

	for writeError == nil {
		e = nil

		select {
		case <-s.shutdown:
			s.logger.Debug("explicit shutdown")
			writeError = w.Close()
			return

		case e = <-s.messages:
			var contents []byte
			if e.request.Format == frame.Msgpack && len(e.request.Contents) > 0 {
				contents = e.request.Contents
			} else {
				// the request either carried no encoded form or carried one
				// in another format; encode the frame for the wire here
				encoder.ResetBytes(&contents)
				writeError = encoder.Encode(e.request.Frame)
				encoder.ResetBytes(&emptyBuffer)
			}

			if writeError == nil {
				writeError = w.WriteMessage(websocket.BinaryMessage, contents)
			}

			event := Event{
				Device:   s,
				Kind:     m.kind,
				Frame:    e.request.Frame,
				Format:   frame.Msgpack,
				Contents: contents,
				Error:    writeError,
			}

			if writeError != nil {
				e.complete <- writeError
				event.Type = FrameFailed
				m.measures.FrameFailed.Inc()
			} else {
				event.Type = FrameSent
				m.measures.FrameSent.Inc()
			}

			close(e.complete)
			e = nil
			m.dispatch(&event)

		case <-pingTicker.C:
			writeError = pinger()
		}
	}
}

func (m *manager) Disconnect(id ID, reason CloseReason) bool {
	s, ok := m.sessions.get(id)
	if ok {
		m.closeSession(s, reason)
	}

	return ok
}

func (m *manager) DisconnectIf(filter func(ID) (CloseReason, bool)) int {
	type match struct {
		s      *session
		reason CloseReason
	}

	var matched []match
	m.sessions.visit(func(s *session) bool {
		if reason, ok := filter(s.id); ok {
			matched = append(matched, match{s, reason})
		}
		return true
	})

	for _, mt := range matched {
		m.closeSession(mt.s, mt.reason)
	}

	return len(matched)
}

func (m *manager) DisconnectAll(reason CloseReason) int {
	all := m.sessions.snapshot()
	for _, s := range all {
		m.closeSession(s, reason)
	}

	return len(all)
}

func (m *manager) Len() int {
	return m.sessions.len()
}

func (m *manager) Get(id ID) (Interface, bool) {
	s, ok := m.sessions.get(id)
	if !ok {
		return nil, false
	}

	return s, true
}

func (m *manager) VisitAll(visitor func(Interface) bool) int {
	return m.sessions.visit(func(s *session) bool {
		return visitor(s)
	})
}

func (m *manager) MarkActivity(id ID) bool {
	s, ok := m.sessions.get(id)
	if ok {
		s.statistics.MarkActivity(m.now())
	}

	return ok
}

func correlationOf(r *Request) string {
	if r != nil && r.Frame != nil {
		return r.Frame.CorrelationID()
	}

	return ""
}
