package service

import (
	"time"

	"github.com/araddon/dateparse"
	"github.com/pkg/errors"
)

type (
	// M is an arbitrary map.
	M map[string]any

	// A Render is an arbitrary payload serializable in JSON by the API.
	Render any
)

// ParseTime parses a client supplied timestamp.
// Any layout understood by dateparse is accepted, UTC is assumed when no zone is given.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}

	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "invalid timestamp %q", s)
	}
	return t.UTC(), nil
}

func parseTimeOr(s string, fallback time.Time) (time.Time, error) {
	if s == "" {
		return fallback, nil
	}
	return ParseTime(s)
}
