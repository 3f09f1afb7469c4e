package util

import (
	"math"
	"time"
)

// RoundTo rounds val to the given number of decimal places.
func RoundTo(val float64, places int) float64 {
	shift := math.Pow(10, float64(places))
	return math.Round(val*shift) / shift
}

// UTCTimestamp formats t as the ISO-8601 UTC string used in protocol messages.
func UTCTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

// ParseUTCTimestamp parses a protocol timestamp string. It accepts both the
// second-resolution form emitted by this client and RFC 3339 with fractions,
// which some supernode versions return.
func ParseUTCTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02T15:04:05Z", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
