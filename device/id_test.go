package device

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func testParseIDValid(t *testing.T) {
	assert := assert.New(t)

	testData := []struct {
		value    string
		expected ID
	}{
		{"lobby-north-01", ID("lobby-north-01")},
		{"LOBBY-North-01", ID("lobby-north-01")},
		{"  kiosk_7  ", ID("kiosk_7")},
		{"floor2.west:display", ID("floor2.west:display")},
		{"A", ID("a")},
	}

	for _, record := range testData {
		actual, err := ParseID(record.value)
		assert.NoError(err)
		assert.Equal(record.expected, actual)
	}
}

func testParseIDInvalid(t *testing.T) {
	assert := assert.New(t)

	testData := []string{
		"",
		"   ",
		"has space",
		"tab\tseparated",
		"emoji-⚡",
		"slash/slash",
		strings.Repeat("x", MaxIDLength+1),
	}

	for _, value := range testData {
		actual, err := ParseID(value)
		assert.Error(err, "value: %q", value)
		assert.Equal(invalidID, actual)
	}
}

func TestParseID(t *testing.T) {
	t.Run("Valid", testParseIDValid)
	t.Run("Invalid", testParseIDInvalid)
}
