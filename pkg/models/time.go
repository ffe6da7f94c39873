package models

import (
	"bytes"
	"fmt"
	"time"
)

// timestamp layouts the gateway emits for timestamptz and timestamp columns
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// Time is a timestamp that accepts the gateway's zoned and zoneless formats
type Time struct {
	time.Time
}

// NewTime wraps t
func NewTime(t time.Time) Time {
	return Time{Time: t.UTC()}
}

// ParseTime parses any of the accepted timestamp layouts
func ParseTime(s string) (Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Time{Time: t.UTC()}, nil
		}
	}
	return Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// UnmarshalJSON implements json.Unmarshaler
func (t *Time) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) || len(data) < 2 {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := ParseTime(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MarshalJSON implements json.Marshaler
func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + t.UTC().Format(time.RFC3339Nano) + `"`), nil
}
