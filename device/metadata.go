package device

import (
	"encoding/json"

	"github.com/segmentio/ksuid"
	"github.com/spf13/cast"
)

// Reserved metadata keys
const (
	PropertiesKey = "properties"
	SessionIDKey  = "session-id"
)

// Well-known property keys devices commonly report at connect time.
const (
	ModelPropertyKey    = "model"
	FirmwarePropertyKey = "firmware"
	LocationPropertyKey = "location"
)

var reservedMetadataKeys = map[string]bool{
	PropertiesKey: true, SessionIDKey: true,
}

func init() {
	ksuid.SetRand(ksuid.FastRander)
}

// Metadata contains session-scoped information about a device: the unique
// session identifier assigned at connect time plus whatever properties the
// device reported in its properties header.
type Metadata map[string]interface{}

// Properties returns a deep copy of the properties the device reported at
// connect time.  If none were reported, an empty map is initialized.
func (m Metadata) Properties() Properties {
	if properties, ok := m[PropertiesKey].(Properties); ok {
		return deepCopyMap(properties)
	}
	return deepCopyMap(m.initProperties())
}

// SetProperties replaces the device-reported properties.
func (m Metadata) SetProperties(properties Properties) {
	m[PropertiesKey] = properties
}

// SessionID returns the identifier assigned to the device's current session.
func (m Metadata) SessionID() string {
	if sessionID, ok := m[SessionIDKey].(string); ok {
		return sessionID
	}

	return m.initSessionID()
}

func (m Metadata) initSessionID() string {
	sessionID := ksuid.New().String()
	m[SessionIDKey] = sessionID
	return sessionID
}

func (m Metadata) initProperties() Properties {
	properties := Properties(make(map[string]interface{}))
	m.SetProperties(properties)
	return properties
}

// Load allows retrieving values from a session's metadata
func (m Metadata) Load(key string) interface{} {
	return m[key]
}

// Store allows writing values into the session's metadata given a key.
// The boolean result indicates whether the operation was successful.
// Operations fail for reserved keys.
func (m Metadata) Store(key string, value interface{}) bool {
	if reservedMetadataKeys[key] {
		return false
	}
	m[key] = value
	return true
}

// NewMetadata returns a metadata object ready for use.
func NewMetadata() Metadata {
	return NewMetadataWithProperties(make(map[string]interface{}))
}

// NewMetadataWithProperties returns a metadata object ready for use with the
// given device-reported properties.
func NewMetadataWithProperties(properties map[string]interface{}) Metadata {
	m := make(Metadata)
	m.SetProperties(deepCopyMap(properties))
	m.initSessionID()
	return m
}

// Properties holds the self-reported attributes of a device, such as its
// hardware model and firmware revision.
type Properties map[string]interface{}

// Model returns the device's reported hardware model, if any.
func (p Properties) Model() string {
	if model, ok := p[ModelPropertyKey].(string); ok {
		return model
	}
	return ""
}

// Firmware returns the device's reported firmware revision, if any.
func (p Properties) Firmware() string {
	if firmware, ok := p[FirmwarePropertyKey].(string); ok {
		return firmware
	}
	return ""
}

// Location returns the device's reported physical location, if any.
func (p Properties) Location() string {
	if location, ok := p[LocationPropertyKey].(string); ok {
		return location
	}
	return ""
}

// MarshalJSON allows easy JSON representation of the underlying properties map.
func (p Properties) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}(p))
}

func deepCopyMap(m map[string]interface{}) map[string]interface{} {
	deepCopy := make(map[string]interface{})
	for key, val := range m {
		switch val.(type) {
		case map[interface{}]interface{}:
			val = cast.ToStringMap(val)
			deepCopy[key] = deepCopyMap(val.(map[string]interface{}))
		case map[string]interface{}:
			deepCopy[key] = deepCopyMap(val.(map[string]interface{}))
		default:
			deepCopy[key] = val
		}

	}
	return deepCopy
}
