package frame

import "fmt"

// CommandStatus is a device's report of where a command stands.  Received is
// the only non-terminal status; a command acknowledgement carrying any other
// status is final and releases whoever is waiting on the command.
type CommandStatus string

const (
	CommandStatusUnspecified CommandStatus = ""
	CommandStatusReceived    CommandStatus = "received"
	CommandStatusCompleted   CommandStatus = "completed"
	CommandStatusFailed      CommandStatus = "failed"
	CommandStatusRejected    CommandStatus = "rejected"
)

// ParseCommandStatus returns the CommandStatus named by value.  The empty
// string and unknown values are both errors: a command acknowledgement must
// carry a concrete status.
func ParseCommandStatus(value string) (CommandStatus, error) {
	switch CommandStatus(value) {
	case CommandStatusReceived, CommandStatusCompleted, CommandStatusFailed, CommandStatusRejected:
		return CommandStatus(value), nil
	default:
		return CommandStatusUnspecified, fmt.Errorf("invalid command status: %q", value)
	}
}

// Terminal indicates whether this status ends the command's lifecycle.
func (s CommandStatus) Terminal() bool {
	switch s {
	case CommandStatusCompleted, CommandStatusFailed, CommandStatusRejected:
		return true
	default:
		return false
	}
}

// Success indicates whether this status reports successful execution.
// Completed is the only success; Rejected in particular is terminal but
// never successful.
func (s CommandStatus) Success() bool {
	return s == CommandStatusCompleted
}

func (s CommandStatus) String() string {
	return string(s)
}

// ContentStatus is a device's report of where a content delivery stands.
// Received and InProgress are non-terminal; InProgress acknowledgements
// usually carry a Progress snapshot.  Partial means some media landed and
// some did not: terminal, but not a success.
type ContentStatus string

const (
	ContentStatusUnspecified ContentStatus = ""
	ContentStatusReceived    ContentStatus = "received"
	ContentStatusInProgress  ContentStatus = "in_progress"
	ContentStatusCompleted   ContentStatus = "completed"
	ContentStatusPartial     ContentStatus = "partial"
	ContentStatusFailed      ContentStatus = "failed"
)

// ParseContentStatus returns the ContentStatus named by value.  The empty
// string and unknown values are both errors.
func ParseContentStatus(value string) (ContentStatus, error) {
	switch ContentStatus(value) {
	case ContentStatusReceived, ContentStatusInProgress, ContentStatusCompleted, ContentStatusPartial, ContentStatusFailed:
		return ContentStatus(value), nil
	default:
		return ContentStatusUnspecified, fmt.Errorf("invalid content status: %q", value)
	}
}

// Terminal indicates whether this status ends the delivery's lifecycle.
func (s ContentStatus) Terminal() bool {
	switch s {
	case ContentStatusCompleted, ContentStatusPartial, ContentStatusFailed:
		return true
	default:
		return false
	}
}

// Success indicates whether this status reports a fully successful delivery.
// Completed is the only success.
func (s ContentStatus) Success() bool {
	return s == ContentStatusCompleted
}

func (s ContentStatus) String() string {
	return string(s)
}
