package analytics

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharos-hub/pharos/clock/clocktest"
)

func id16(b byte) []byte {
	return bytes.Repeat([]byte{b}, IDLength)
}

func newTestIngestor(t *testing.T, policy Policy, ringSize int) (*Ingestor, *clocktest.Clock) {
	c := clocktest.New(time.Now())
	return NewIngestor(IngestorOptions{
		Policy: policy,
		Store:  NewStore(ringSize),
		Clock:  c,
	}), c
}

func testIngestInvalidBatchID(t *testing.T) {
	assert := assert.New(t)
	i, _ := newTestIngestor(t, DefaultPolicy(), 0)

	receipt := i.Ingest(Batch{
		BatchID: []byte{1, 2, 3},
		Events:  []Event{{EventID: id16(1), Kind: "heartbeat"}},
	})

	assert.False(receipt.Accepted)
	assert.Empty(receipt.RejectedEventIDs)
	assert.Zero(i.Store().Summary().TotalEvents)
}

func testIngestBatchTooLarge(t *testing.T) {
	assert := assert.New(t)
	i, _ := newTestIngestor(t, Policy{MaxBatchSize: 2}, 0)

	events := make([]Event, 3)
	for n := range events {
		events[n] = Event{EventID: id16(byte(n)), Kind: "heartbeat"}
	}

	receipt := i.Ingest(Batch{BatchID: id16(9), Events: events})
	assert.False(receipt.Accepted)
	assert.Zero(i.Store().Summary().TotalEvents)
}

func testIngestPerEventRejection(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)

		i, _ = newTestIngestor(t, Policy{MaxPayloadBytes: 8}, 0)
	)

	receipt := i.Ingest(Batch{
		BatchID:           id16(9),
		DeviceFingerprint: 42,
		Events: []Event{
			{EventID: id16(1), Kind: "playback.completed"},
			{EventID: []byte{1, 2, 3}, Kind: "short-id"},
			{EventID: id16(2), Kind: "oversized", Payload: bytes.Repeat([]byte{0}, 9)},
			{EventID: id16(3), Kind: "playback.error"},
		},
	})

	// invalid events are rejected individually, valid siblings still land
	assert.True(receipt.Accepted)
	require.Len(receipt.RejectedEventIDs, 2)
	assert.Equal([]byte{1, 2, 3}, receipt.RejectedEventIDs[0])
	assert.Equal(id16(2), receipt.RejectedEventIDs[1])

	summary := i.Store().Summary()
	assert.Equal(int64(2), summary.TotalEvents)
	assert.Equal(int64(2), summary.RejectedEvents)
	assert.Equal(int64(1), summary.EventsByKind["playback.completed"])
}

func testIngestDuplicateBatch(t *testing.T) {
	assert := assert.New(t)
	i, _ := newTestIngestor(t, DefaultPolicy(), 0)

	b := Batch{
		BatchID:           id16(9),
		DeviceFingerprint: 42,
		Events:            []Event{{EventID: id16(1), Kind: "heartbeat"}},
	}

	first := i.Ingest(b)
	assert.True(first.Accepted)

	// the retransmission is acknowledged but nothing is stored twice
	second := i.Ingest(b)
	assert.True(second.Accepted)
	assert.Equal(int64(1), i.Store().Summary().TotalEvents)
	assert.Equal(int64(1), i.Store().Summary().TotalBatches)
}

func testIngestThrottle(t *testing.T) {
	var (
		assert = assert.New(t)

		policy = Policy{ThrottleAfter: 2, Throttle: time.Minute}
		i, c   = newTestIngestor(t, policy, 0)
	)

	send := func(batch byte) Receipt {
		return i.Ingest(Batch{
			BatchID:           id16(batch),
			DeviceFingerprint: 42,
			Events:            []Event{{EventID: id16(batch), Kind: "heartbeat"}},
		})
	}

	assert.Zero(send(1).ThrottleMillis)
	assert.Zero(send(2).ThrottleMillis)

	// the third batch inside the window draws a backoff request
	c.Advance(10 * time.Second)
	third := send(3)
	assert.True(third.Accepted)
	assert.Equal((50 * time.Second).Milliseconds(), third.ThrottleMillis)

	// other devices are unaffected
	other := i.Ingest(Batch{
		BatchID:           id16(4),
		DeviceFingerprint: 43,
		Events:            []Event{{EventID: id16(4), Kind: "heartbeat"}},
	})
	assert.Zero(other.ThrottleMillis)

	// a fresh window clears the backoff
	c.Advance(time.Minute)
	assert.Zero(send(5).ThrottleMillis)
}

func testIngestQueueStatus(t *testing.T) {
	assert := assert.New(t)
	i, _ := newTestIngestor(t, DefaultPolicy(), 0)

	i.Ingest(Batch{
		BatchID:           id16(1),
		DeviceFingerprint: 42,
		Events:            []Event{{EventID: id16(1), Kind: "heartbeat"}},
		QueueStatus:       &QueueStatus{Depth: 7, Dropped: 3},
	})

	assert.Equal(int64(3), i.Store().Summary().DroppedByDevices)
}

func TestIngest(t *testing.T) {
	t.Run("InvalidBatchID", testIngestInvalidBatchID)
	t.Run("BatchTooLarge", testIngestBatchTooLarge)
	t.Run("PerEventRejection", testIngestPerEventRejection)
	t.Run("DuplicateBatch", testIngestDuplicateBatch)
	t.Run("Throttle", testIngestThrottle)
	t.Run("QueueStatus", testIngestQueueStatus)
}

func testStoreRingEviction(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)

		i, _ = newTestIngestor(t, DefaultPolicy(), 2)
	)

	for n := byte(1); n <= 3; n++ {
		i.Ingest(Batch{
			BatchID:           id16(n),
			DeviceFingerprint: 42,
			Events:            []Event{{EventID: id16(n), Kind: "heartbeat"}},
		})
	}

	// newest wins: the ring retains the last two events, newest first
	events := i.Store().DeviceEvents(42, 0)
	require.Len(events, 2)
	assert.Equal(id16(3), events[0].EventID)
	assert.Equal(id16(2), events[1].EventID)

	summary := i.Store().Summary()
	assert.Equal(int64(3), summary.TotalEvents)
	assert.Equal(2, summary.StoredEvents)
	assert.Equal(1, summary.Devices)
}

func testStoreDeviceEventsLimit(t *testing.T) {
	var (
		assert  = assert.New(t)
		require = require.New(t)

		i, _ = newTestIngestor(t, DefaultPolicy(), 16)
	)

	events := make([]Event, 5)
	for n := range events {
		events[n] = Event{EventID: id16(byte(n)), Kind: "heartbeat"}
	}

	i.Ingest(Batch{BatchID: id16(9), DeviceFingerprint: 42, Events: events})

	limited := i.Store().DeviceEvents(42, 2)
	require.Len(limited, 2)
	assert.Equal(id16(4), limited[0].EventID)
	assert.Equal(id16(3), limited[1].EventID)

	assert.Empty(i.Store().DeviceEvents(999, 10))
	assert.Equal([]uint32{42}, i.Store().Fingerprints())
}

func TestStore(t *testing.T) {
	t.Run("RingEviction", testStoreRingEviction)
	t.Run("DeviceEventsLimit", testStoreDeviceEventsLimit)
}
