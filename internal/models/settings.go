package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

// RawSettings is a provider config or credentials blob as stored by the
// registry. It may hold a JSON object or a JSON string whose contents are a
// JSON object; both forms decode to the same map.
type RawSettings []byte

// ErrInvalidSettings is returned when a settings blob is neither an object
// nor a string encoding an object.
var ErrInvalidSettings = errors.New("invalid settings")

// NewRawSettings marshals a map into RawSettings.
func NewRawSettings(m map[string]any) (RawSettings, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return RawSettings(b), nil
}

// MustRawSettings is NewRawSettings for static values. It panics on error.
func MustRawSettings(m map[string]any) RawSettings {
	s, err := NewRawSettings(m)
	if err != nil {
		panic(err)
	}
	return s
}

// Decode normalizes the blob into a map. Empty and null blobs decode to an
// empty map.
func (s RawSettings) Decode() (map[string]any, error) {
	trimmed := bytes.TrimSpace(s)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return map[string]any{}, nil
	}

	// String form: the registry stored the object serialized as text.
	if trimmed[0] == '"' {
		var inner string
		if err := json.Unmarshal(trimmed, &inner); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
		}
		return RawSettings(inner).decodeObject()
	}

	return RawSettings(trimmed).decodeObject()
}

func (s RawSettings) decodeObject() (map[string]any, error) {
	trimmed := bytes.TrimSpace(s)
	if len(trimmed) == 0 {
		return map[string]any{}, nil
	}
	if trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: expected JSON object", ErrInvalidSettings)
	}

	var out map[string]any
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// MarshalJSON emits the blob verbatim so string and object forms survive a
// round trip.
func (s RawSettings) MarshalJSON() ([]byte, error) {
	if len(s) == 0 {
		return []byte("null"), nil
	}
	return s, nil
}

// UnmarshalJSON keeps the raw bytes; normalization is deferred to Decode.
func (s *RawSettings) UnmarshalJSON(data []byte) error {
	if s == nil {
		return errors.New("RawSettings: UnmarshalJSON on nil pointer")
	}
	*s = append((*s)[0:0], data...)
	return nil
}

// Value implements driver.Valuer for text and jsonb columns.
func (s RawSettings) Value() (driver.Value, error) {
	if len(s) == 0 {
		return nil, nil
	}
	return []byte(s), nil
}

// Scan implements sql.Scanner. Drivers hand back jsonb as []byte and text as
// string; both are accepted.
func (s *RawSettings) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*s = nil
	case []byte:
		*s = append(RawSettings(nil), v...)
	case string:
		*s = RawSettings(v)
	default:
		return fmt.Errorf("RawSettings: expected []byte or string, got %T", value)
	}
	return nil
}
