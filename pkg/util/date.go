package util

import (
	"strconv"
	"time"
)

// ParseTime tries RFC3339, RFC3339Nano, and unix seconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0), true
	}
	return time.Time{}, false
}

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

// AlignDayRange snaps a range to UTC day boundaries: from rounds down,
// to rounds up to the end of its day so the current session's candle
// stays in range. Aligned ranges are stable within a day, so repeated
// daily candle queries share a provider cache key.
func AlignDayRange(from, to time.Time) (time.Time, time.Time) {
	const day = 24 * time.Hour
	return from.UTC().Truncate(day), to.UTC().Truncate(day).Add(day)
}
