package util

import (
	"strconv"
	"time"
)

// ParseInt parses a string to an integer, returning defaultValue if parsing fails
func ParseInt(s string, defaultValue int) int {
	if val, err := strconv.Atoi(s); err == nil {
		return val
	}
	return defaultValue
}

// ParseBoundedInt parses s and clamps it to [lo, hi].
func ParseBoundedInt(s string, defaultValue, lo, hi int) int {
	return min(max(ParseInt(s, defaultValue), lo), hi)
}

// ParseDate parses a YYYY-MM-DD date. Empty input returns the zero time.
func ParseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", s)
}
