package core

import (
	"strings"
	"time"
)

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// Millis returns t as epoch milliseconds, the timestamp format of every cached blob.
func Millis(t time.Time) int64 {
	return t.UnixNano() / int64(time.Millisecond)
}
