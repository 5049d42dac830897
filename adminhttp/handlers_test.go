package adminhttp

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharos-hub/pharos/device"
	"github.com/pharos-hub/pharos/dispatch"
	"github.com/pharos-hub/pharos/fleet"
	"github.com/pharos-hub/pharos/frame"
)

// testSession is a minimal device.Interface that records outbound frames.
type testSession struct {
	id   device.ID
	kind frame.Kind

	lock sync.Mutex
	sent []frame.Frame
}

var _ device.Interface = (*testSession)(nil)

func (s *testSession) ID() device.ID                   { return s.id }
func (s *testSession) Kind() frame.Kind                { return s.kind }
func (s *testSession) SessionID() string               { return "session-" + string(s.id) }
func (s *testSession) Pending() int                    { return 0 }
func (s *testSession) Closed() bool                    { return false }
func (s *testSession) Statistics() device.Statistics   { return device.NewStatistics(nil, time.Time{}) }
func (s *testSession) Metadata() device.Metadata       { return device.NewMetadata() }
func (s *testSession) ResumeHint() string              { return "" }
func (s *testSession) CloseReason() device.CloseReason { return device.CloseReason{} }
func (s *testSession) String() string                  { return string(s.id) }
func (s *testSession) MarshalJSON() ([]byte, error)    { return json.Marshal(string(s.id)) }

func (s *testSession) Send(request *device.Request) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.sent = append(s.sent, request.Frame)
	return nil
}

func (s *testSession) sentFrames() []frame.Frame {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]frame.Frame{}, s.sent...)
}

// testManager is a map-backed device.Manager for ingress tests.
type testManager struct {
	kind frame.Kind

	lock     sync.Mutex
	sessions map[device.ID]*testSession
}

var _ device.Manager = (*testManager)(nil)

func newTestManager(kind frame.Kind) *testManager {
	return &testManager{kind: kind, sessions: make(map[device.ID]*testSession)}
}

func (m *testManager) add(id device.ID) *testSession {
	s := &testSession{id: id, kind: m.kind}
	m.lock.Lock()
	m.sessions[id] = s
	m.lock.Unlock()
	return s
}

func (m *testManager) Connect(http.ResponseWriter, *http.Request, http.Header) (device.Interface, error) {
	return nil, errors.New("testManager does not support Connect")
}

func (m *testManager) Disconnect(id device.ID, _ device.CloseReason) bool {
	m.lock.Lock()
	defer m.lock.Unlock()

	_, ok := m.sessions[id]
	delete(m.sessions, id)
	return ok
}

func (m *testManager) DisconnectIf(func(device.ID) (device.CloseReason, bool)) int { return 0 }
func (m *testManager) DisconnectAll(device.CloseReason) int                        { return 0 }

func (m *testManager) Len() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return len(m.sessions)
}

func (m *testManager) Get(id device.ID) (device.Interface, bool) {
	m.lock.Lock()
	defer m.lock.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, false
	}

	return s, true
}

func (m *testManager) VisitAll(f func(device.Interface) bool) int {
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

func (m *testManager) Kind() frame.Kind            { return m.kind }
func (m *testManager) MaxDevices() int             { return 0 }
func (m *testManager) MarkActivity(device.ID) bool { return true }

type ingressFixture struct {
	commands *testManager
	content  *testManager
	fleets   *fleet.InMemory
	router   *mux.Router
}

func newIngressFixture(t *testing.T) *ingressFixture {
	fix := &ingressFixture{
		commands: newTestManager(frame.Command),
		content:  newTestManager(frame.Content),
		fleets:   fleet.NewInMemory(),
	}

	d := dispatch.New(dispatch.Options{
		Commands: dispatch.Stream{
			Manager: fix.commands,
			Waiters: dispatch.NewWaiters(dispatch.WaitersOptions{Kind: frame.Command}),
		},
		Content: dispatch.Stream{
			Manager: fix.content,
			Waiters: dispatch.NewWaiters(dispatch.WaitersOptions{Kind: frame.Content}),
		},
		Fleets: fix.fleets,
	})

	fix.router = mux.NewRouter()
	handler := &Handler{
		Dispatcher: d,
		Registries: map[frame.Kind]device.Registry{
			frame.Command: fix.commands,
			frame.Content: fix.content,
		},
	}

	handler.Register(fix.router)
	return fix
}

func postJSON(target, body string) *http.Request {
	request := httptest.NewRequest("POST", target, strings.NewReader(body))
	request.Header.Set("Content-Type", "application/json")
	return request
}

func testIngressUnaryCompleted(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)

		fix = newIngressFixture(t)
		s   = fix.commands.add("mac:112233445566")
	)

	response := httptest.NewRecorder()
	fix.router.ServeHTTP(response, postJSON(
		"/devices/mac:112233445566/commands?requireAck=false",
		`{"request_reboot": {}}`,
	))

	require.Equal(http.StatusOK, response.Code)

	var result dispatch.Result
	require.NoError(json.Unmarshal(response.Body.Bytes(), &result))
	assert.Equal(dispatch.OutcomeCompleted, result.Outcome)

	// the ingress stamps the correlation id; callers never supply one
	assert.True(strings.HasPrefix(result.CorrelationID, "cmd-"))
	require.Len(s.sentFrames(), 1)
	assert.Equal(result.CorrelationID, s.sentFrames()[0].CorrelationID())
}

func testIngressUnaryNotConnected(t *testing.T) {
	assert := assert.New(t)
	fix := newIngressFixture(t)

	response := httptest.NewRecorder()
	fix.router.ServeHTTP(response, postJSON(
		"/devices/mac:112233445566/commands?requireAck=false",
		`{"request_reboot": {}}`,
	))

	assert.Equal(http.StatusNotFound, response.Code)
}

func testIngressUnaryTimeout(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)

		fix = newIngressFixture(t)
	)

	fix.commands.add("mac:112233445566")

	// requireAck defaults to true and the device never answers
	response := httptest.NewRecorder()
	fix.router.ServeHTTP(response, postJSON(
		"/devices/mac:112233445566/commands?timeout=50ms",
		`{"request_reboot": {}}`,
	))

	require.Equal(http.StatusGatewayTimeout, response.Code)

	var result dispatch.Result
	require.NoError(json.Unmarshal(response.Body.Bytes(), &result))
	assert.Equal(dispatch.OutcomeTimeout, result.Outcome)
	assert.True(result.TimedOut)
}

func testIngressUnaryBadRequests(t *testing.T) {
	assert := assert.New(t)
	fix := newIngressFixture(t)
	fix.commands.add("mac:112233445566")

	// malformed device id
	response := httptest.NewRecorder()
	fix.router.ServeHTTP(response, postJSON("/devices/not!valid/commands", `{}`))
	assert.Equal(http.StatusBadRequest, response.Code)

	// malformed payload
	response = httptest.NewRecorder()
	fix.router.ServeHTTP(response, postJSON("/devices/mac:112233445566/commands", `{not json`))
	assert.Equal(http.StatusBadRequest, response.Code)

	// unknown stream kind never matches a route
	response = httptest.NewRecorder()
	fix.router.ServeHTTP(response, postJSON("/devices/mac:112233445566/telemetry", `{}`))
	assert.Equal(http.StatusNotFound, response.Code)
}

func testIngressBroadcast(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)

		fix    = newIngressFixture(t)
		first  = fix.commands.add("mac:112233445566")
		second = fix.commands.add("mac:112233445577")
	)

	response := httptest.NewRecorder()
	fix.router.ServeHTTP(response, postJSON("/commands?requireAck=false", `{"request_reboot": {}}`))
	require.Equal(http.StatusOK, response.Code)

	var gr dispatch.GroupResult
	require.NoError(json.Unmarshal(response.Body.Bytes(), &gr))
	assert.Equal(2, gr.TargetDevices)
	assert.Equal(2, gr.Successful)

	// each target received its own correlation id
	require.Len(first.sentFrames(), 1)
	require.Len(second.sentFrames(), 1)
	assert.NotEqual(first.sentFrames()[0].CorrelationID(), second.sentFrames()[0].CorrelationID())
}

func testIngressGroup(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)

		fix = newIngressFixture(t)
	)

	fix.commands.add("mac:112233445566")
	require.NoError(fix.fleets.Upsert(httptest.NewRequest("GET", "/", nil).Context(), fleet.Fleet{
		Name:    "lobby",
		Members: []string{"mac:112233445566", "mac:112233445577"},
	}))

	response := httptest.NewRecorder()
	fix.router.ServeHTTP(response, postJSON("/fleets/lobby/commands?requireAck=false", `{"request_reboot": {}}`))
	require.Equal(http.StatusOK, response.Code)

	var gr dispatch.GroupResult
	require.NoError(json.Unmarshal(response.Body.Bytes(), &gr))
	assert.Equal("lobby", gr.Group)
	assert.Equal(2, gr.TargetDevices)
	assert.Equal(1, gr.Successful)
	assert.Equal(1, gr.Failed)
}

func testIngressGroupNotFound(t *testing.T) {
	assert := assert.New(t)
	fix := newIngressFixture(t)

	response := httptest.NewRecorder()
	fix.router.ServeHTTP(response, postJSON("/fleets/missing/commands", `{"request_reboot": {}}`))
	assert.Equal(http.StatusNotFound, response.Code)

	response = httptest.NewRecorder()
	fix.router.ServeHTTP(response, postJSON("/fleets/missing/commands/stream", `{"request_reboot": {}}`))
	assert.Equal(http.StatusNotFound, response.Code)
}

func testIngressContentDelivery(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)

		fix = newIngressFixture(t)
		s   = fix.content.add("mac:112233445566")
	)

	response := httptest.NewRecorder()
	fix.router.ServeHTTP(response, postJSON(
		"/devices/mac:112233445566/content?requireAck=false",
		`{"content": {"playlist": "spring"}, "media": [{"id": "m1", "url": "https://cdn/m1"}]}`,
	))

	require.Equal(http.StatusOK, response.Code)

	var result dispatch.Result
	require.NoError(json.Unmarshal(response.Body.Bytes(), &result))
	assert.True(strings.HasPrefix(result.CorrelationID, "dlv-"))
	require.Len(s.sentFrames(), 1)
}

func testIngressUnaryStream(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)

		fix = newIngressFixture(t)
	)

	fix.commands.add("mac:112233445566")

	response := httptest.NewRecorder()
	fix.router.ServeHTTP(response, postJSON(
		"/devices/mac:112233445566/commands/stream?requireAck=false",
		`{"request_reboot": {}}`,
	))

	require.Equal(http.StatusOK, response.Code)
	assert.Equal("text/event-stream", response.Header().Get("Content-Type"))

	body := response.Body.String()
	assert.Contains(body, "event: result\n")
	assert.Contains(body, `"outcome":"completed"`)
}

func testIngressBroadcastStream(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)

		fix = newIngressFixture(t)
	)

	fix.commands.add("mac:112233445566")

	response := httptest.NewRecorder()
	fix.router.ServeHTTP(response, postJSON("/commands/stream?requireAck=false", `{"request_reboot": {}}`))
	require.Equal(http.StatusOK, response.Code)

	body := response.Body.String()
	assert.Contains(body, "event: started\n")
	assert.Contains(body, "event: result\n")
	assert.Contains(body, "event: complete\n")
}

func testIngressDevices(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)

		fix = newIngressFixture(t)
	)

	fix.commands.add("mac:112233445566")
	fix.content.add("mac:112233445577")

	response := httptest.NewRecorder()
	fix.router.ServeHTTP(response, httptest.NewRequest("GET", "/devices", nil))
	require.Equal(http.StatusOK, response.Code)

	var listing struct {
		Kind    frame.Kind           `json:"kind"`
		Devices []device.SessionInfo `json:"devices"`
	}

	require.NoError(json.Unmarshal(response.Body.Bytes(), &listing))
	assert.Equal(frame.Command, listing.Kind)
	require.Len(listing.Devices, 1)
	assert.Equal(device.ID("mac:112233445566"), listing.Devices[0].ID)

	response = httptest.NewRecorder()
	fix.router.ServeHTTP(response, httptest.NewRequest("GET", "/devices?kind=content", nil))
	require.Equal(http.StatusOK, response.Code)
	require.NoError(json.Unmarshal(response.Body.Bytes(), &listing))
	assert.Equal(frame.Content, listing.Kind)

	response = httptest.NewRecorder()
	fix.router.ServeHTTP(response, httptest.NewRequest("GET", "/devices?kind=bogus", nil))
	assert.Equal(http.StatusBadRequest, response.Code)
}

func TestIngress(t *testing.T) {
	t.Run("UnaryCompleted", testIngressUnaryCompleted)
	t.Run("UnaryNotConnected", testIngressUnaryNotConnected)
	t.Run("UnaryTimeout", testIngressUnaryTimeout)
	t.Run("UnaryBadRequests", testIngressUnaryBadRequests)
	t.Run("Broadcast", testIngressBroadcast)
	t.Run("Group", testIngressGroup)
	t.Run("GroupNotFound", testIngressGroupNotFound)
	t.Run("ContentDelivery", testIngressContentDelivery)
	t.Run("UnaryStream", testIngressUnaryStream)
	t.Run("BroadcastStream", testIngressBroadcastStream)
	t.Run("Devices", testIngressDevices)
}
