package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration is a time.Duration written in config files as a Go duration
// string, such as "5s" or "1m30s".
type Duration struct {
	time.Duration
}

// Seconds wraps n seconds; used for defaults
func Seconds(n int) Duration {
	return Duration{time.Duration(n) * time.Second}
}

// MarshalJSON writes the duration as a string
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts only duration strings. Bare numbers are rejected
// because they carry no unit.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string such as \"5s\", got %s", data)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = v
	return nil
}
