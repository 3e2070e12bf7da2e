// Package xtime provides the UTC timestamp helpers used throughout the
// ledger and data model. Every stored timestamp is an ISO-8601 string with
// second precision, consistent with ledger ordering.
package xtime

import "time"

const layout = "2006-01-02T15:04:05Z"

// NowISO returns the current UTC time formatted as ISO-8601.
func NowISO() string {
	return time.Now().UTC().Format(layout)
}

// FormatISO formats t as ISO-8601 UTC.
func FormatISO(t time.Time) string {
	return t.UTC().Format(layout)
}

// ParseISO parses an ISO-8601 UTC timestamp produced by FormatISO/NowISO.
func ParseISO(s string) (time.Time, error) {
	return time.Parse(layout, s)
}
