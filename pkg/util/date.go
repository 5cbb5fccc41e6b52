package util

import (
	"strconv"
	"strings"
	"time"
)

// DateLayout is the canonical day format used in responses and storage.
const DateLayout = "2006-01-02"

// dateLayouts are the day formats Brent price files ship with.
var dateLayouts = []string{
	DateLayout,
	"02-Jan-06",
	"2-Jan-06",
	"Jan 02, 2006",
	"Jan 2, 2006",
	"1/2/2006",
	"01/02/2006",
	"2006/01/02",
}

// ParseDate parses a calendar day in any known layout, or an RFC3339 timestamp
// truncated to its UTC day.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return TruncateDay(t), true
	}
	return time.Time{}, false
}

// ParseTime tries RFC3339, RFC3339Nano, the day layouts and unix seconds.
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
	if t, ok := ParseDate(s); ok {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0).UTC(), true
	}
	return time.Time{}, false
}

// TruncateDay drops the time of day, in UTC.
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatDate renders t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}
