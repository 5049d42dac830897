package dispatch

import (
	"github.com/pharos-hub/pharos/device"
	"github.com/pharos-hub/pharos/frame"
)

// UpdateType discriminates the elements of a dispatch stream.
type UpdateType string

const (
	// UpdateStarted is the first element of a fan-out stream, carrying the
	// target device count.
	UpdateStarted UpdateType = "started"

	// UpdateProgress echoes a non-final acknowledgement from one device.
	UpdateProgress UpdateType = "progress"

	// UpdateResult carries one device's terminal Result.  A unary stream
	// ends after its single UpdateResult.
	UpdateResult UpdateType = "result"

	// UpdateComplete is the last element of a fan-out stream, carrying the
	// aggregate counts.
	UpdateComplete UpdateType = "complete"
)

// Update is one element of a dispatch stream: a progress echo, a per-device
// terminal result, or a fan-out meta event.
type Update struct {
	Type UpdateType `json:"type"`

	// DeviceID and CorrelationID identify the dispatch this update belongs
	// to.  Unset on meta events.
	DeviceID      device.ID `json:"deviceID,omitempty"`
	CorrelationID string    `json:"correlationID,omitempty"`

	// Status and Message echo the acknowledgement, for progress updates.
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`

	// Progress is the per-media snapshot riding a content acknowledgement,
	// when present.
	Progress *frame.Progress `json:"progress,omitempty"`

	// Result is set on UpdateResult elements.
	Result *Result `json:"result,omitempty"`

	// Fan-out bookkeeping.  TotalDevices is set on every element of a
	// fan-out stream; CompletedDevices counts terminal results emitted so
	// far.  Successful and Failed are set on UpdateComplete.
	TotalDevices     int `json:"totalDevices,omitempty"`
	CompletedDevices int `json:"completedDevices,omitempty"`
	Successful       int `json:"successful,omitempty"`
	Failed           int `json:"failed,omitempty"`
}
