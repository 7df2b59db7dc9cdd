package libsync

import (
	"time"

	"github.com/pkg/errors"
)

// CheckpointSentinel is the checkpoint used when the installation has never synced.
const CheckpointSentinel = "2000-01-01T00:00:00Z"

// TimeLayout is a fixed-width RFC 3339 layout.
// Formatted timestamps keep their trailing zeros so they sort lexically.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// FormatTime returns the wire representation of t (UTC, ISO-8601).
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a wire timestamp.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "invalid timestamp %q", s)
	}
	return t.UTC(), nil
}

// UnixMillisecond returns a unix timestamp in milliseconds.
func UnixMillisecond(t time.Time) int64 {
	return t.UnixMilli()
}

// FromUnixMillisecond returns a time based on the given unix timestamp in milliseconds.
func FromUnixMillisecond(t int64) time.Time {
	return time.UnixMilli(t).UTC()
}
