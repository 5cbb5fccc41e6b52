package http

import (
	"time"

	xutil "BrentShift/pkg/util"
)

// ParseDateParam parses an optional day query parameter. ok is false only
// when s is non-empty and unparsable.
func ParseDateParam(s string) (t *time.Time, ok bool) {
	if s == "" {
		return nil, true
	}
	d, ok := xutil.ParseDate(s)
	if !ok {
		return nil, false
	}
	return &d, true
}
