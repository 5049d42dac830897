package device

import "errors"

var (
	// ErrorDeviceClosed indicates an operation against a session that has
	// already been closed.  Sessions cannot be reopened; a device must
	// reconnect to obtain a new one.
	ErrorDeviceClosed = errors.New("device session closed")

	// ErrorDeviceBusy indicates a session whose outbound queue was full at
	// enqueue time.  The session is closed as a slow consumer when this
	// error is returned.
	ErrorDeviceBusy = errors.New("device outbound queue full")

	// ErrorDeviceNotFound indicates no live session for the requested ID.
	ErrorDeviceNotFound = errors.New("no session for device")

	// ErrorDeviceLimitReached indicates a connection attempt while the
	// manager is at its configured session limit.
	ErrorDeviceLimitReached = errors.New("connected device limit reached")

	// ErrorMissingDeviceNameHeader indicates a connection or acknowledgement
	// request without the device name header.
	ErrorMissingDeviceNameHeader = errors.New("missing device name header")

	// ErrorMissingDeviceNameContext indicates that Connect was invoked on a
	// request whose context carried no device ID.  This is a wiring error:
	// the UseID middleware was not applied.
	ErrorMissingDeviceNameContext = errors.New("no device id in request context")
)
