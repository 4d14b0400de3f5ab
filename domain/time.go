package domain

import (
	"bytes"
	"fmt"
	"strconv"
	"time"
)

// Timestamp is a point in time as exchanged with the task API.
// It is encoded as RFC 3339 in UTC and decodes zone-less ISO-8601 values as UTC.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// NewTimestamp wraps t, normalised to UTC.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC()}
}

// ParseTimestamp accepts RFC 3339, zone-less date-times and bare dates.
func ParseTimestamp(s string) (Timestamp, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return NewTimestamp(t), nil
		}
	}
	return Timestamp{}, fmt.Errorf("invalid timestamp %q", s)
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.Quote(t.UTC().Format(time.RFC3339Nano))), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	raw, err := strconv.Unquote(string(data))
	if err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	parsed, err := ParseTimestamp(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Equal reports whether both timestamps denote the same instant.
func (t Timestamp) Equal(other Timestamp) bool {
	return t.Time.Equal(other.Time)
}

// OptionalTime distinguishes an absent value from an explicit null.
// Set is false when the field was never assigned; Set with a nil Value means "clear".
type OptionalTime struct {
	Set   bool
	Value *Timestamp
}

// SetTime returns an OptionalTime carrying t.
func SetTime(t Timestamp) OptionalTime {
	return OptionalTime{Set: true, Value: &t}
}

// ClearTime returns an OptionalTime that encodes as an explicit null.
func ClearTime() OptionalTime {
	return OptionalTime{Set: true}
}

// IsNull reports whether the value was explicitly cleared.
func (o OptionalTime) IsNull() bool {
	return o.Set && o.Value == nil
}

// MarshalJSON implements json.Marshaler. Callers omit unset values themselves.
func (o OptionalTime) MarshalJSON() ([]byte, error) {
	if o.Value == nil {
		return []byte("null"), nil
	}
	return o.Value.MarshalJSON()
}

// UnmarshalJSON implements json.Unmarshaler. It is only invoked when the key is present.
func (o *OptionalTime) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(data, []byte("null")) {
		o.Value = nil
		return nil
	}
	var ts Timestamp
	if err := ts.UnmarshalJSON(data); err != nil {
		return err
	}
	o.Value = &ts
	return nil
}
