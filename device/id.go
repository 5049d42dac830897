package device

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ID represents a normalized identifier for a device, e.g. "lobby-north-01".
type ID string

func (id ID) Bytes() []byte {
	return []byte(id)
}

const (
	// MaxIDLength is the maximum number of characters in a device identifier.
	MaxIDLength = 255

	idSeparators = "-._:"
)

var (
	invalidID = ID("")

	errEmptyID = errors.New("empty device id")
)

// ParseID normalizes and validates a raw device identifier, typically taken
// from the device name header at connect time.  Identifiers are trimmed,
// lowercased, and restricted to letters, digits, and the separators "-._:".
func ParseID(value string) (ID, error) {
	value = strings.TrimSpace(value)
	if len(value) == 0 {
		return invalidID, errEmptyID
	}

	if len(value) > MaxIDLength {
		return invalidID, fmt.Errorf("device id exceeds %d characters", MaxIDLength)
	}

	var invalidCharacter rune = -1
	normalized := strings.Map(
		func(r rune) rune {
			switch {
			case unicode.IsLetter(r) || unicode.IsDigit(r):
				return unicode.ToLower(r)
			case strings.ContainsRune(idSeparators, r):
				return r
			default:
				invalidCharacter = r
				return -1
			}
		},
		value,
	)

	if invalidCharacter != -1 {
		return invalidID, fmt.Errorf("invalid character in device id: %q", invalidCharacter)
	}

	return ID(normalized), nil
}
