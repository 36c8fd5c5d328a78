// Package integrity detects fixture and mock data that must never reach
// benchmark history.
package integrity

import (
	"encoding/hex"
	"net/url"
	"strings"
)

// SyntheticMarkers are substrings that identify fixture, mock or seeded data.
var SyntheticMarkers = []string{
	"fallback",
	"mock",
	"synthetic",
	"seed",
	"fixture",
	"placeholder",
}

const maxDecodePasses = 3

// FindSyntheticMarker returns the first marker found in value, checking the
// raw text and up to three rounds of percent-decoding. Malformed escapes stay
// literal and do not stop the well-formed ones from being decoded.
func FindSyntheticMarker(value string) (string, bool) {
	current := value
	for pass := 0; pass <= maxDecodePasses; pass++ {
		lowered := strings.ToLower(current)
		for _, marker := range SyntheticMarkers {
			if strings.Contains(lowered, marker) {
				return marker, true
			}
		}
		decoded, err := url.PathUnescape(current)
		if err != nil {
			decoded = unescapeValid(current)
		}
		if decoded == current {
			return "", false
		}
		current = decoded
	}
	return "", false
}

// unescapeValid decodes every well-formed %XX triplet of value and copies
// everything else through unchanged.
func unescapeValid(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for i := 0; i < len(value); i++ {
		if value[i] == '%' && i+2 < len(value) {
			if decoded, err := hex.DecodeString(value[i+1 : i+3]); err == nil {
				b.Write(decoded)
				i += 2
				continue
			}
		}
		b.WriteByte(value[i])
	}
	return b.String()
}

// HasSyntheticMarker reports whether any of the values carries a marker.
func HasSyntheticMarker(values ...string) bool {
	for _, value := range values {
		if _, found := FindSyntheticMarker(value); found {
			return true
		}
	}
	return false
}
