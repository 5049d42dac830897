package device

// CloseReason exposes metadata around why a particular session was closed
type CloseReason struct {
	// Err is the optional underlying error, such as an I/O error.  If nil,
	// the close was due to application logic, e.g. replacement or shutdown.
	Err error

	// Text is the required JSON-friendly value describing the reason for
	// closure.
	Text string
}

func (c CloseReason) String() string {
	errText := "*no error*"
	if c.Err != nil {
		errText = c.Err.Error()
	}

	return errText + ":" + c.Text
}
