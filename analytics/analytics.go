// Package analytics is the hub's telemetry intake.  Devices upload batches
// of locally queued playback and health events; the hub validates, throttles,
// deduplicates, and stores them for the read-side aggregation endpoints.
//
// This package is deliberately isolated from the session layer: an analytics
// upload neither requires nor touches a live stream session.
package analytics

import (
	"errors"
	"fmt"
	"time"
)

// IDLength is the exact byte length of batch and event identifiers.
const IDLength = 16

var (
	// ErrorInvalidBatchID indicates a batch id that is not exactly IDLength
	// bytes.  The whole batch is rejected.
	ErrorInvalidBatchID = fmt.Errorf("batch id must be exactly %d bytes", IDLength)

	// ErrorBatchTooLarge indicates more events than the policy allows in one
	// batch.  The whole batch is rejected.
	ErrorBatchTooLarge = errors.New("batch exceeds the maximum event count")
)

// Event is one device-recorded occurrence: a playback report, an error, a
// heartbeat.  Payloads are opaque to the hub.
type Event struct {
	// EventID is the device-assigned unique id, exactly IDLength bytes.
	EventID []byte `json:"event_id"`

	// Kind names the event taxonomy entry, e.g. "playback.completed".
	Kind string `json:"kind"`

	// RecordedAtMillis is the device-local recording time in Unix millis.
	RecordedAtMillis int64 `json:"recorded_at_millis"`

	// Payload is the opaque event body.
	Payload []byte `json:"payload,omitempty"`
}

// QueueStatus reports the state of the device's local upload queue at send
// time.  Dropped counts events the device discarded before upload; the hub
// records it but cannot recover them.
type QueueStatus struct {
	Depth   int `json:"depth"`
	Dropped int `json:"dropped"`
}

// Batch is one upload: a set of events queued on a single device.
type Batch struct {
	// BatchID is the device-assigned unique id, exactly IDLength bytes.
	// Retransmissions reuse the id, which is how the hub deduplicates.
	BatchID []byte `json:"batch_id"`

	// DeviceFingerprint identifies the uploading device.  Analytics uses a
	// stable hash rather than the full device id so uploads remain valid
	// even when a device has no provisioned identity yet.
	DeviceFingerprint uint32 `json:"device_fingerprint"`

	Events []Event `json:"events"`

	QueueStatus *QueueStatus `json:"queue_status,omitempty"`

	// SentAtMillis is the device-local send time in Unix millis.
	SentAtMillis int64 `json:"sent_at_millis"`
}

// Receipt is the hub's reply to an ingest call.  A rejected batch or event
// is not an error at the transport level: the receipt carries the verdict so
// the device can drop the affected items from its queue.
type Receipt struct {
	BatchID []byte `json:"batch_id"`

	// Accepted indicates whether the batch as a whole was taken.  Individual
	// event rejections do not clear this flag.
	Accepted bool `json:"accepted"`

	// RejectedEventIDs echoes the ids of events rejected individually.  The
	// device should discard these rather than retransmit them.
	RejectedEventIDs [][]byte `json:"rejected_event_ids,omitempty"`

	// ThrottleMillis, when positive, asks the device to wait this long
	// before its next upload.
	ThrottleMillis int64 `json:"throttle_millis,omitempty"`

	// Policy echoes the hub's current limits so devices can size batches.
	Policy Policy `json:"policy"`
}

// Policy is the hub-side ingest limit set, echoed on every receipt.
type Policy struct {
	// MaxBatchSize bounds the events per batch.
	MaxBatchSize int `json:"max_batch_size"`

	// MaxPayloadBytes bounds each event's payload.
	MaxPayloadBytes int `json:"max_payload_bytes"`

	// ThrottleAfter is the number of batches a device may upload within one
	// Throttle window before the hub starts asking it to back off.
	ThrottleAfter int `json:"throttle_after"`

	// Throttle is the backoff window.
	Throttle time.Duration `json:"throttle"`
}

// DefaultPolicy returns the limits applied when configuration supplies none.
func DefaultPolicy() Policy {
	return Policy{
		MaxBatchSize:    500,
		MaxPayloadBytes: 64 * 1024,
		ThrottleAfter:   10,
		Throttle:        time.Minute,
	}
}

func (p Policy) maxBatchSize() int {
	if p.MaxBatchSize > 0 {
		return p.MaxBatchSize
	}

	return DefaultPolicy().MaxBatchSize
}

func (p Policy) maxPayloadBytes() int {
	if p.MaxPayloadBytes > 0 {
		return p.MaxPayloadBytes
	}

	return DefaultPolicy().MaxPayloadBytes
}

// validEvent applies the per-event checks.  Invalid events are rejected
// individually; their siblings still land.
func (p Policy) validEvent(e Event) bool {
	return len(e.EventID) == IDLength && len(e.Payload) <= p.maxPayloadBytes()
}

// validateBatch applies the whole-batch checks.
func (p Policy) validateBatch(b Batch) error {
	if len(b.BatchID) != IDLength {
		return ErrorInvalidBatchID
	}

	if len(b.Events) > p.maxBatchSize() {
		return ErrorBatchTooLarge
	}

	return nil
}
