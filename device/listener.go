package device

import (
	"github.com/pharos-hub/pharos/frame"
)

// EventType is the type of session-related event
type EventType uint8

const (
	// Connect indicates a device session was established and registered.
	Connect EventType = iota

	// Disconnect indicates a session was closed and deregistered, whether by
	// the device, an I/O failure, replacement, or an explicit disconnect.
	Disconnect

	// FrameSent indicates a frame was successfully written to a device.
	FrameSent

	// FrameFailed indicates a frame could not be written to a device, either
	// because of an I/O error or because the session closed with the frame
	// still queued.
	FrameFailed

	// AckReceived indicates a well-formed acknowledgement arrived on a
	// device's websocket.
	AckReceived

	InvalidEventString string = "!!INVALID SESSION EVENT TYPE!!"
)

func (et EventType) String() string {
	switch et {
	case Connect:
		return "Connect"
	case Disconnect:
		return "Disconnect"
	case FrameSent:
		return "FrameSent"
	case FrameFailed:
		return "FrameFailed"
	case AckReceived:
		return "AckReceived"
	default:
		return InvalidEventString
	}
}

// Event represents a single occurrence of interest on a device session.
// Instances of Event should be considered immutable by application code, and
// should not be stored across calls to a listener, as the infrastructure is
// free to reuse Event instances.
type Event struct {
	// Type describes the kind of this event.  This field is always set.
	Type EventType

	// Device refers to the session, possibly closed, for which this event is
	// being dispatched.  This field is always set.
	Device Interface

	// Kind is the stream kind of the owning manager.  This field is always set.
	Kind frame.Kind

	// Frame is the outbound frame relevant to this event.  Only set for
	// FrameSent and FrameFailed events.
	Frame frame.Frame

	// Ack is the decoded acknowledgement.  Only set for AckReceived events.
	Ack frame.Ack

	// Contents is the encoded representation of Frame or Ack, when available.
	//
	// Never assume it is safe to use this byte slice outside the listener
	// invocation.  Make a copy if it is needed by other goroutines or as
	// part of a long-lived data structure.
	Contents []byte

	// Format is the encoding format of the Contents field.
	Format frame.Format

	// Error is the failure that occurred while sending, for FrameFailed
	// events caused by actual I/O errors.  For FrameFailed events raised
	// when a session closed with frames still queued, this field is nil.
	Error error
}

// Listener is an event sink.  Listeners must not modify events and must not
// store them for later use.  Listeners are invoked synchronously from the
// manager's goroutines; an expensive listener delays the session it observes.
type Listener func(*Event)
