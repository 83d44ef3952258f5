package http

import (
	"time"

	xutil "BlockPulse/pkg/util"
)

// ParseTime accepts RFC3339, RFC3339Nano and unix seconds.
func ParseTime(s string) (time.Time, bool) { return xutil.ParseTime(s) }

// ParseOptionalTime returns the zero time for an empty string.
func ParseOptionalTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, true
	}
	return xutil.ParseTime(s)
}
