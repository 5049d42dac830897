package dispatch

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/pharos-hub/pharos/device"
	"github.com/pharos-hub/pharos/frame"
)

// mockSession is a scriptable device.Interface for exercising the dispatcher
// without a live websocket.
type mockSession struct {
	id   device.ID
	kind frame.Kind

	lock    sync.Mutex
	closed  bool
	sendErr error
	sent    []*device.Request
}

var _ device.Interface = (*mockSession)(nil)

func newMockSession(id device.ID, kind frame.Kind) *mockSession {
	return &mockSession{id: id, kind: kind}
}

func (m *mockSession) ID() device.ID                 { return m.id }
func (m *mockSession) Kind() frame.Kind              { return m.kind }
func (m *mockSession) SessionID() string             { return "session-" + string(m.id) }
func (m *mockSession) Pending() int                  { return 0 }
func (m *mockSession) Statistics() device.Statistics { return device.NewStatistics(nil, time.Time{}) }
func (m *mockSession) Metadata() device.Metadata     { return device.NewMetadata() }
func (m *mockSession) ResumeHint() string            { return "" }
func (m *mockSession) CloseReason() device.CloseReason {
	return device.CloseReason{}
}

func (m *mockSession) Closed() bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.closed
}

func (m *mockSession) close() {
	m.lock.Lock()
	m.closed = true
	m.lock.Unlock()
}

func (m *mockSession) failSends(err error) {
	m.lock.Lock()
	m.sendErr = err
	m.lock.Unlock()
}

func (m *mockSession) Send(request *device.Request) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.closed {
		return device.ErrorDeviceClosed
	}

	if m.sendErr != nil {
		return m.sendErr
	}

	m.sent = append(m.sent, request)
	return nil
}

func (m *mockSession) sentFrames() []frame.Frame {
	m.lock.Lock()
	defer m.lock.Unlock()

	frames := make([]frame.Frame, 0, len(m.sent))
	for _, request := range m.sent {
		frames = append(frames, request.Frame)
	}

	return frames
}

func (m *mockSession) String() string {
	return string(m.id)
}

func (m *mockSession) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{"id": m.id})
}

// mockManager is a map-backed device.Manager.  Connect is unsupported;
// sessions are injected directly.
type mockManager struct {
	kind frame.Kind

	lock     sync.Mutex
	sessions map[device.ID]*mockSession
	activity map[device.ID]int
}

var _ device.Manager = (*mockManager)(nil)

func newMockManager(kind frame.Kind) *mockManager {
	return &mockManager{
		kind:     kind,
		sessions: make(map[device.ID]*mockSession),
		activity: make(map[device.ID]int),
	}
}

func (m *mockManager) add(s *mockSession) *mockSession {
	m.lock.Lock()
	m.sessions[s.id] = s
	m.lock.Unlock()
	return s
}

func (m *mockManager) activityCount(id device.ID) int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.activity[id]
}

func (m *mockManager) Connect(http.ResponseWriter, *http.Request, http.Header) (device.Interface, error) {
	return nil, errors.New("mockManager does not support Connect")
}

func (m *mockManager) Disconnect(id device.ID, _ device.CloseReason) bool {
	m.lock.Lock()
	defer m.lock.Unlock()

	s, ok := m.sessions[id]
	if ok {
		s.close()
		delete(m.sessions, id)
	}

	return ok
}

func (m *mockManager) DisconnectIf(f func(device.ID) (device.CloseReason, bool)) int {
	m.lock.Lock()
	defer m.lock.Unlock()

	count := 0
	for id, s := range m.sessions {
		if _, ok := f(id); ok {
			s.close()
			delete(m.sessions, id)
			count++
		}
	}

	return count
}

func (m *mockManager) DisconnectAll(device.CloseReason) int {
	m.lock.Lock()
	defer m.lock.Unlock()

	count := len(m.sessions)
	for id, s := range m.sessions {
		s.close()
		delete(m.sessions, id)
	}

	return count
}

func (m *mockManager) Len() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return len(m.sessions)
}

func (m *mockManager) Get(id device.ID) (device.Interface, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, false
	}

	return s, true
}

func (m *mockManager) VisitAll(f func(device.Interface) bool) int {
	m.lock.Lock()
	defer m.lock.Unlock()

	visited := 0
	for _, s := range m.sessions {
		visited++
		if !f(s) {
			break
		}
	}

	return visited
}

func (m *mockManager) Kind() frame.Kind { return m.kind }
func (m *mockManager) MaxDevices() int  { return 0 }

func (m *mockManager) MarkActivity(id device.ID) bool {
	m.lock.Lock()
	defer m.lock.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return false
	}

	m.activity[id]++
	return true
}
