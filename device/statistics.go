package device

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Statistics represents a set of session statistics.
type Statistics interface {
	fmt.Stringer
	json.Marshaler

	// BytesReceived returns the total bytes received since this instance was created
	BytesReceived() uint32

	// AddBytesReceived adds a certain number of bytes to the BytesReceived count.
	// Implementations will always be safe for concurrent access.
	AddBytesReceived(uint32)

	// FramesReceived returns the total frames received since this instance was created
	FramesReceived() uint32

	// AddFramesReceived adds a certain number of frames to the FramesReceived count.
	// Implementations will always be safe for concurrent access.
	AddFramesReceived(uint32)

	// BytesSent returns the total bytes sent since this instance was created
	BytesSent() uint32

	// AddBytesSent adds a certain number of bytes to the BytesSent count.
	// Implementations will always be safe for concurrent access.
	AddBytesSent(uint32)

	// FramesSent returns the total frames sent since this instance was created
	FramesSent() uint32

	// AddFramesSent adds a certain number of frames to the FramesSent count.
	// Implementations will always be safe for concurrent access.
	AddFramesSent(uint32)

	// ConnectedAt returns the connection time at which this statistics began tracking
	ConnectedAt() time.Time

	// UpTime computes the duration for which the device has been connected
	UpTime() time.Duration

	// LastActivity returns the time of the most recent acknowledgement from
	// the device.  Before any acknowledgement arrives this is ConnectedAt.
	LastActivity() time.Time

	// MarkActivity advances LastActivity to the given time.  The activity
	// timestamp never moves backward; stale marks are ignored.
	MarkActivity(time.Time)
}

// NewStatistics creates a Statistics instance with the given connection time.
// If now is nil, this method uses time.Now.
func NewStatistics(now func() time.Time, connectedAt time.Time) Statistics {
	if now == nil {
		now = time.Now
	}

	connectedAt = connectedAt.UTC()
	return &statistics{
		now:                  now,
		connectedAt:          connectedAt,
		lastActivity:         connectedAt,
		formattedConnectedAt: connectedAt.Format(time.RFC3339),
	}
}

// statistics is the internal Statistics implementation
type statistics struct {
	lock sync.RWMutex

	bytesReceived  uint32
	bytesSent      uint32
	framesReceived uint32
	framesSent     uint32

	lastActivity time.Time

	now                  func() time.Time
	connectedAt          time.Time
	formattedConnectedAt string
}

func (s *statistics) BytesReceived() uint32 {
	s.lock.RLock()
	var result = s.bytesReceived
	s.lock.RUnlock()

	return result
}

func (s *statistics) AddBytesReceived(delta uint32) {
	s.lock.Lock()
	s.bytesReceived += delta
	s.lock.Unlock()
}

func (s *statistics) BytesSent() uint32 {
	s.lock.RLock()
	var result = s.bytesSent
	s.lock.RUnlock()

	return result
}

func (s *statistics) AddBytesSent(delta uint32) {
	s.lock.Lock()
	s.bytesSent += delta
	s.lock.Unlock()
}

func (s *statistics) FramesReceived() uint32 {
	s.lock.RLock()
	var result = s.framesReceived
	s.lock.RUnlock()

	return result
}

func (s *statistics) AddFramesReceived(delta uint32) {
	s.lock.Lock()
	s.framesReceived += delta
	s.lock.Unlock()
}

func (s *statistics) FramesSent() uint32 {
	s.lock.RLock()
	var result = s.framesSent
	s.lock.RUnlock()

	return result
}

func (s *statistics) AddFramesSent(delta uint32) {
	s.lock.Lock()
	s.framesSent += delta
	s.lock.Unlock()
}

func (s *statistics) ConnectedAt() time.Time {
	return s.connectedAt
}

func (s *statistics) UpTime() time.Duration {
	return s.now().Sub(s.connectedAt)
}

func (s *statistics) LastActivity() time.Time {
	s.lock.RLock()
	var result = s.lastActivity
	s.lock.RUnlock()

	return result
}

func (s *statistics) MarkActivity(t time.Time) {
	t = t.UTC()

	s.lock.Lock()
	if t.After(s.lastActivity) {
		s.lastActivity = t
	}
	s.lock.Unlock()
}

func (s *statistics) String() string {
	data, _ := s.MarshalJSON()
	return string(data)
}

func (s *statistics) MarshalJSON() ([]byte, error) {
	output := bytes.NewBuffer(make([]byte, 0, 180))
	s.lock.RLock()
	fmt.Fprintf(
		output,
		`{"bytesSent": %d, "framesSent": %d, "bytesReceived": %d, "framesReceived": %d, "connectedAt": "%s", "upTime": "%s", "lastActivity": "%s"}`,
		s.bytesSent,
		s.framesSent,
		s.bytesReceived,
		s.framesReceived,
		s.formattedConnectedAt,
		s.UpTime(),
		s.lastActivity.Format(time.RFC3339),
	)

	s.lock.RUnlock()
	return output.Bytes(), nil
}
