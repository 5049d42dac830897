package device

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testStatisticsCounts(t *testing.T) {
	assert := assert.New(t)

	s := NewStatistics(nil, time.Now())
	s.AddBytesReceived(100)
	s.AddFramesReceived(1)
	s.AddBytesSent(250)
	s.AddFramesSent(2)

	assert.Equal(uint32(100), s.BytesReceived())
	assert.Equal(uint32(1), s.FramesReceived())
	assert.Equal(uint32(250), s.BytesSent())
	assert.Equal(uint32(2), s.FramesSent())
}

func testStatisticsActivityMonotonic(t *testing.T) {
	var (
		assert = assert.New(t)

		connectedAt = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
		s           = NewStatistics(func() time.Time { return connectedAt }, connectedAt)
	)

	assert.Equal(connectedAt, s.LastActivity())

	later := connectedAt.Add(time.Minute)
	s.MarkActivity(later)
	assert.Equal(later, s.LastActivity())

	// a stale mark never moves the activity timestamp backward
	s.MarkActivity(connectedAt.Add(time.Second))
	assert.Equal(later, s.LastActivity())
}

func testStatisticsUpTime(t *testing.T) {
	var (
		assert = assert.New(t)

		connectedAt = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
		now         = connectedAt.Add(15 * time.Minute)
		s           = NewStatistics(func() time.Time { return now }, connectedAt)
	)

	assert.Equal(15*time.Minute, s.UpTime())
}

func testStatisticsString(t *testing.T) {
	assert := assert.New(t)

	s := NewStatistics(nil, time.Now())
	assert.Contains(s.String(), "connectedAt")
	assert.Contains(s.String(), "lastActivity")
}

func TestStatistics(t *testing.T) {
	t.Run("Counts", testStatisticsCounts)
	t.Run("ActivityMonotonic", testStatisticsActivityMonotonic)
	t.Run("UpTime", testStatisticsUpTime)
	t.Run("String", testStatisticsString)
}
