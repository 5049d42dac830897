package frame

import "fmt"

// Kind identifies which of the hub's delivery streams a frame travels on.
// A connected device holds at most one live session per Kind.
type Kind string

const (
	// Command is the stream kind carrying operational command frames.
	Command Kind = "commands"

	// Content is the stream kind carrying content deployment frames.
	Content Kind = "content"
)

// ParseKind returns the Kind named by the given value, typically taken
// from a URL path segment or query parameter.
func ParseKind(value string) (Kind, error) {
	switch Kind(value) {
	case Command:
		return Command, nil
	case Content:
		return Content, nil
	default:
		return Kind(""), fmt.Errorf("invalid stream kind: %q", value)
	}
}

func (k Kind) String() string {
	return string(k)
}
