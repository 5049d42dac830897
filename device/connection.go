package device

import (
	"io"
	"time"

	"github.com/go-kit/kit/metrics"
	"github.com/gorilla/websocket"
)

// Reader is the subset of websocket behavior the read pump requires.
type Reader interface {
	ReadMessage() (int, []byte, error)
}

// Writer is the subset of websocket behavior the write pump requires.
type Writer interface {
	WriteMessage(messageType int, data []byte) error
}

// ReadCloser is implemented by instrumented reader wrappers.
type ReadCloser interface {
	Reader
	io.Closer
}

// WriteCloser is implemented by instrumented writer wrappers.
type WriteCloser interface {
	Writer
	io.Closer
}

// NewDeadline produces a deadline closure over the given period.  A
// nonpositive period yields zero deadlines, disabling enforcement.
func NewDeadline(period time.Duration, now func() time.Time) func() time.Time {
	if now == nil {
		now = time.Now
	}

	if period > 0 {
		return func() time.Time {
			return now().Add(period)
		}
	}

	return func() time.Time {
		return time.Time{}
	}
}

// NewPinger produces a closure that sends a ping control frame carrying the
// given data, counting each attempt.
func NewPinger(c *websocket.Conn, counter metrics.Counter, data []byte, deadline func() time.Time) func() error {
	return func() error {
		counter.Add(1.0)
		return c.WriteControl(websocket.PingMessage, data, deadline())
	}
}

// SetPongHandler establishes the read deadline policy on the given
// connection: the initial deadline is set immediately, and each pong from
// the device both counts and extends it.  A device that stops ponging for
// the full idle period fails the next read.
func SetPongHandler(c *websocket.Conn, counter metrics.Counter, deadline func() time.Time) {
	c.SetReadDeadline(deadline())
	c.SetPongHandler(func(string) error {
		counter.Add(1.0)
		return c.SetReadDeadline(deadline())
	})
}

// InstrumentReader wraps a websocket connection so that received frames and
// bytes are tracked in the given statistics.
func InstrumentReader(c *websocket.Conn, s Statistics) ReadCloser {
	return &instrumentedReader{c: c, statistics: s}
}

type instrumentedReader struct {
	c          *websocket.Conn
	statistics Statistics
}

func (ir *instrumentedReader) ReadMessage() (int, []byte, error) {
	messageType, data, err := ir.c.ReadMessage()
	if err == nil {
		ir.statistics.AddFramesReceived(1)
		ir.statistics.AddBytesReceived(uint32(len(data)))
	}

	return messageType, data, err
}

func (ir *instrumentedReader) Close() error {
	return ir.c.Close()
}

// InstrumentWriter wraps a websocket connection so that sent frames and
// bytes are tracked in the given statistics.  The write deadline is applied
// before each frame.
func InstrumentWriter(c *websocket.Conn, s Statistics, deadline func() time.Time) WriteCloser {
	return &instrumentedWriter{c: c, statistics: s, deadline: deadline}
}

type instrumentedWriter struct {
	c          *websocket.Conn
	statistics Statistics
	deadline   func() time.Time
}

func (iw *instrumentedWriter) WriteMessage(messageType int, data []byte) error {
	if err := iw.c.SetWriteDeadline(iw.deadline()); err != nil {
		return err
	}

	err := iw.c.WriteMessage(messageType, data)
	if err == nil {
		iw.statistics.AddFramesSent(1)
		iw.statistics.AddBytesSent(uint32(len(data)))
	}

	return err
}

func (iw *instrumentedWriter) Close() error {
	return iw.c.Close()
}
