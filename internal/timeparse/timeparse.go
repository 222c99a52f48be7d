// Package timeparse parses the timestamp shapes produced by the upstream
// flight-plan systems: ISO-8601 instants, epoch milliseconds, and the
// bracketed departure/arrival range literal. All parsing happens in UTC.
package timeparse

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidTimestamp is returned for any input that does not parse into a
// usable instant or range.
var ErrInvalidTimestamp = errors.New("invalid timestamp")

// rangeLayout is the fixed pattern inside bracketed range literals, e.g.
// "Thu Jul 10 22:25:00 UTC 2025".
const rangeLayout = "Mon Jan 02 15:04:05 MST 2006"

var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999", // zoneless, read as UTC
}

// ParseInstant parses an ISO-8601 instant (a trailing "+0000" is normalised
// to "Z" first) or a decimal integer string of Unix milliseconds.
func ParseInstant(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty input", ErrInvalidTimestamp)
	}

	if strings.HasSuffix(s, "+0000") {
		s = strings.TrimSuffix(s, "+0000") + "Z"
	}

	for _, layout := range instantLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}

	if millis, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(millis).UTC(), nil
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
}

// ParseMillis parses an instant and returns it as Unix milliseconds.
func ParseMillis(s string) (int64, error) {
	t, err := ParseInstant(s)
	if err != nil {
		return 0, err
	}
	return t.UnixMilli(), nil
}

// FormatInstant renders an instant in the canonical stored form (RFC 3339,
// UTC, second precision).
func FormatInstant(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// ParseRangeMillis parses a bracketed range literal such as
// "[Thu Jul 10 22:25:00 UTC 2025,Fri Jul 11 00:00:00 UTC 2025]" and returns
// arrival minus departure in milliseconds. A negative span or an unparseable
// half is ErrInvalidTimestamp.
func ParseRangeMillis(s string) (int64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")

	dep, arr, found := strings.Cut(s, ",")
	if !found {
		return 0, fmt.Errorf("%w: range %q has no separator", ErrInvalidTimestamp, s)
	}

	depTime, err := time.Parse(rangeLayout, strings.TrimSpace(dep))
	if err != nil {
		return 0, fmt.Errorf("%w: departure %q: %v", ErrInvalidTimestamp, dep, err)
	}
	arrTime, err := time.Parse(rangeLayout, strings.TrimSpace(arr))
	if err != nil {
		return 0, fmt.Errorf("%w: arrival %q: %v", ErrInvalidTimestamp, arr, err)
	}

	millis := arrTime.UTC().Sub(depTime.UTC()).Milliseconds()
	if millis < 0 {
		return 0, fmt.Errorf("%w: negative range %q", ErrInvalidTimestamp, s)
	}
	return millis, nil
}
