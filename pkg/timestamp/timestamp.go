// Package timestamp handles the int64 Unix millisecond timestamps carried on
// the wire.
//
// A value of 0 means "not set"; every function treats it that way.
//
//	ts := timestamp.ToUnixMs(time.Now())
//	t := timestamp.FromUnixMs(ts)
//	display := timestamp.Format(ts)
package timestamp

import (
	"fmt"
	"time"
)

// maxUnixMs is 3000-01-01T00:00:00Z.
const maxUnixMs = 32503680000000

// Now returns the current time as Unix milliseconds.
func Now() int64 {
	return time.Now().UnixMilli()
}

// ToUnixMs converts a time.Time to Unix milliseconds.
func ToUnixMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// FromUnixMs converts Unix milliseconds to time.Time.
// Returns zero time if timestamp is 0.
func FromUnixMs(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// Format converts Unix milliseconds to an RFC3339 string with millisecond
// precision. Returns empty string if timestamp is 0.
func Format(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// IsZero checks if a timestamp is unset (zero).
func IsZero(ms int64) bool {
	return ms == 0
}

// Since returns the duration since the given timestamp.
// Returns 0 if timestamp is zero.
func Since(ms int64) time.Duration {
	if ms == 0 {
		return 0
	}
	return time.Since(time.UnixMilli(ms))
}

// Validate checks if a timestamp is valid (non-negative and reasonable).
func Validate(ms int64) error {
	if ms < 0 {
		return fmt.Errorf("timestamp cannot be negative: %d", ms)
	}
	if ms > maxUnixMs {
		return fmt.Errorf("timestamp too far in future: %d", ms)
	}
	return nil
}
