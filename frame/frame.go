package frame

import (
	"errors"
	"fmt"
)

var (
	// ErrorMissingCorrelationID indicates a frame with no command or
	// delivery identifier.  Such a frame could never be acknowledged.
	ErrorMissingCorrelationID = errors.New("frame: missing correlation id")

	// ErrorMissingDeviceID indicates an acknowledgement with no device
	// identifier on a path that requires one.
	ErrorMissingDeviceID = errors.New("frame: missing device id")
)

// Frame is anything the hub can push down a device stream.  CommandFrame
// and ContentFrame implement it.
type Frame interface {
	// CorrelationID returns the identifier acknowledgements for this frame
	// will carry: the command id or the delivery id.
	CorrelationID() string

	// NeedsAck indicates whether the sender asked for an acknowledgement.
	NeedsAck() bool

	// Kind returns the stream this frame travels on.
	Kind() Kind

	// Validate performs the structural checks the hub applies before
	// dispatch.  Payloads are opaque and are not inspected.
	Validate() error
}

// Ack is a device's acknowledgement of a previously delivered frame.
// CommandAck and ContentAck implement it.
type Ack interface {
	// Device returns the acknowledging device's identifier, when the
	// transport requires it in-band.  The websocket path derives the device
	// from the session instead.
	Device() string

	// CorrelationID returns the command or delivery id being acknowledged.
	CorrelationID() string

	// Final indicates whether the carried status is terminal.
	Final() bool

	// Succeeded indicates whether the carried status reports success.
	Succeeded() bool

	// StatusText returns the carried status as its wire string.
	StatusText() string

	// Note returns the optional human-readable message, if any.
	Note() string

	// Snapshot returns the progress snapshot riding this acknowledgement,
	// or nil.  Command acknowledgements always return nil.
	Snapshot() *Progress

	// Validate checks that the acknowledgement is well formed: a
	// correlation id is present and the status parses.
	Validate() error
}

// AckReceipt is the hub's reply to an acknowledge call.  Accepted is true
// even for late or duplicate acknowledgements; the hub acknowledges receipt,
// not usefulness.  RetryAfterSeconds is nonzero only when the hub wants the
// device to back off before its next attempt.
type AckReceipt struct {
	Accepted          bool `json:"accepted"`
	RetryAfterSeconds int  `json:"retry_after_seconds"`
}

// DecodeAck decodes and validates a single acknowledgement of the given
// stream kind from source.
func DecodeAck(kind Kind, f Format, source []byte) (Ack, error) {
	var ack Ack
	switch kind {
	case Command:
		ack = new(CommandAck)
	case Content:
		ack = new(ContentAck)
	default:
		return nil, fmt.Errorf("invalid stream kind: %q", kind)
	}

	if err := NewDecoderBytes(source, f).Decode(ack); err != nil {
		return nil, err
	}

	return ack, ack.Validate()
}
