package device

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharos-hub/pharos/frame"
)

// managerFixture wires a Manager into an httptest server and captures every
// event the manager dispatches.
type managerFixture struct {
	manager Manager
	events  chan *Event
	server  *httptest.Server
}

func newManagerFixture(t *testing.T, o *Options) *managerFixture {
	f := &managerFixture{
		events: make(chan *Event, 100),
	}

	if o == nil {
		o = new(Options)
	}

	o.Listeners = append(o.Listeners, func(e *Event) {
		copied := *e
		f.events <- &copied
	})

	f.manager = NewManager(o)
	f.server = httptest.NewServer(UseID(&ConnectHandler{Connector: f.manager}))
	t.Cleanup(f.server.Close)
	t.Cleanup(func() { f.manager.DisconnectAll(CloseReason{Text: "test-cleanup"}) })

	return f
}

func (f *managerFixture) dial(t *testing.T, id string) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(f.server.URL, "http")
	c, _, err := websocket.DefaultDialer.Dial(url, http.Header{
		DeviceNameHeader: []string{id},
	})

	require.NoError(t, err)
	return c
}

func (f *managerFixture) expectEvent(t *testing.T, expected EventType) *Event {
	select {
	case e := <-f.events:
		require.Equal(t, expected, e.Type, "unexpected event")
		return e
	case <-time.After(5 * time.Second):
		require.FailNow(t, "timed out waiting for event", "expected %s", expected)
		return nil
	}
}

func testManagerConnectAndDisconnect(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)

		f = newManagerFixture(t, &Options{Kind: frame.Command})
	)

	c := f.dial(t, "d1")
	connect := f.expectEvent(t, Connect)
	assert.Equal(ID("d1"), connect.Device.ID())
	assert.Equal(frame.Command, connect.Kind)
	assert.Equal(1, f.manager.Len())

	s, ok := f.manager.Get(ID("d1"))
	require.True(ok)
	assert.False(s.Closed())
	assert.NotEmpty(s.SessionID())

	c.Close()
	f.expectEvent(t, Disconnect)

	require.Eventually(
		func() bool { return f.manager.Len() == 0 },
		5*time.Second, 10*time.Millisecond,
	)
}

func testManagerSendDeliversFrame(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)

		f = newManagerFixture(t, &Options{Kind: frame.Command})
	)

	c := f.dial(t, "d1")
	defer c.Close()
	f.expectEvent(t, Connect)

	s, ok := f.manager.Get(ID("d1"))
	require.True(ok)

	sent := &frame.CommandFrame{
		CommandID:     "C1",
		RequiresAck:   true,
		RequestReboot: &frame.RequestReboot{DelaySeconds: 5},
	}

	require.NoError(s.Send(&Request{Frame: sent}))
	f.expectEvent(t, FrameSent)

	messageType, data, err := c.ReadMessage()
	require.NoError(err)
	assert.Equal(websocket.BinaryMessage, messageType)

	var received frame.CommandFrame
	require.NoError(frame.NewDecoderBytes(data, frame.Msgpack).Decode(&received))
	assert.Equal("C1", received.CommandID)
	assert.True(received.RequiresAck)
	require.NotNil(received.RequestReboot)
	assert.Equal(5, received.RequestReboot.DelaySeconds)
}

func testManagerAckReceived(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)

		f = newManagerFixture(t, &Options{Kind: frame.Command})
	)

	c := f.dial(t, "d1")
	defer c.Close()
	f.expectEvent(t, Connect)

	require.NoError(c.WriteMessage(
		websocket.TextMessage,
		[]byte(`{"command_id": "C1", "status": "completed", "message": "done"}`),
	))

	e := f.expectEvent(t, AckReceived)
	require.NotNil(e.Ack)
	assert.Equal("C1", e.Ack.CorrelationID())
	assert.True(e.Ack.Final())
	assert.True(e.Ack.Succeeded())
	assert.Equal("done", e.Ack.Note())
}

func testManagerMalformedAckSkipped(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)

		f = newManagerFixture(t, &Options{Kind: frame.Command})
	)

	c := f.dial(t, "d1")
	defer c.Close()
	f.expectEvent(t, Connect)

	// no correlation id: skipped without closing the session
	require.NoError(c.WriteMessage(websocket.TextMessage, []byte(`{"status": "completed"}`)))
	require.NoError(c.WriteMessage(
		websocket.TextMessage,
		[]byte(`{"command_id": "C2", "status": "received"}`),
	))

	e := f.expectEvent(t, AckReceived)
	assert.Equal("C2", e.Ack.CorrelationID())
	assert.False(e.Ack.Final())
}

func testManagerReplacement(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)

		f = newManagerFixture(t, &Options{Kind: frame.Content})
	)

	first := f.dial(t, "d3")
	defer first.Close()
	f.expectEvent(t, Connect)

	firstSession, ok := f.manager.Get(ID("d3"))
	require.True(ok)

	// reconnect with the same id: the incumbent is torn down completely
	// before the new session becomes visible
	second := f.dial(t, "d3")
	defer second.Close()

	disconnect := f.expectEvent(t, Disconnect)
	assert.Equal("replaced", disconnect.Device.CloseReason().Text)
	f.expectEvent(t, Connect)

	assert.Equal(1, f.manager.Len())
	replacement, ok := f.manager.Get(ID("d3"))
	require.True(ok)
	assert.NotEqual(firstSession.SessionID(), replacement.SessionID())
	assert.True(firstSession.Closed())
	assert.False(replacement.Closed())
}

func testManagerDisconnect(t *testing.T) {
	var (
		assert = assert.New(t)

		f = newManagerFixture(t, &Options{Kind: frame.Command})
	)

	c := f.dial(t, "d1")
	defer c.Close()
	f.expectEvent(t, Connect)

	assert.True(f.manager.Disconnect(ID("d1"), CloseReason{Text: "operator"}))
	f.expectEvent(t, Disconnect)
	assert.False(f.manager.Disconnect(ID("d1"), CloseReason{Text: "operator"}))
}

func testManagerMarkActivity(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)

		f = newManagerFixture(t, &Options{Kind: frame.Command})
	)

	c := f.dial(t, "d1")
	defer c.Close()
	f.expectEvent(t, Connect)

	s, ok := f.manager.Get(ID("d1"))
	require.True(ok)

	before := s.Statistics().LastActivity()
	require.Eventually(
		func() bool {
			f.manager.MarkActivity(ID("d1"))
			return s.Statistics().LastActivity().After(before)
		},
		5*time.Second, 10*time.Millisecond,
	)

	assert.False(f.manager.MarkActivity(ID("nosuch")))
}

func testManagerMaxDevices(t *testing.T) {
	var (
		assert = assert.New(t)

		f = newManagerFixture(t, &Options{Kind: frame.Command, MaxDevices: 1})
	)

	c := f.dial(t, "d1")
	defer c.Close()
	f.expectEvent(t, Connect)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http")
	_, response, err := websocket.DefaultDialer.Dial(url, http.Header{
		DeviceNameHeader: []string{"d2"},
	})

	assert.Error(err)
	assert.Equal(http.StatusServiceUnavailable, response.StatusCode)
	assert.Equal("1", response.Header.Get(DeviceLimitHeader))
}

func TestManager(t *testing.T) {
	t.Run("ConnectAndDisconnect", testManagerConnectAndDisconnect)
	t.Run("SendDeliversFrame", testManagerSendDeliversFrame)
	t.Run("AckReceived", testManagerAckReceived)
	t.Run("MalformedAckSkipped", testManagerMalformedAckSkipped)
	t.Run("Replacement", testManagerReplacement)
	t.Run("Disconnect", testManagerDisconnect)
	t.Run("MarkActivity", testManagerMarkActivity)
	t.Run("MaxDevices", testManagerMaxDevices)
}
