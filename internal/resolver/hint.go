package resolver

import (
	"regexp"
	"strings"

	"github.com/scrypster/pinpoint/internal/similarity"
)

// placeholderHints are names apps give a pin before the user names it.
var placeholderHints = map[string]bool{
	"dropped pin":      true,
	"my location":      true,
	"current location": true,
	"unknown":          true,
	"unknown location": true,
	"pin":              true,
	"location":         true,
	"untitled":         true,
	"new pin":          true,
	"unnamed":          true,
	"marked location":  true,
	"shared location":  true,
}

var coordinatePattern = regexp.MustCompile(`^\s*[-+]?\d{1,3}(\.\d+)?\s*[,;\s]\s*[-+]?\d{1,3}(\.\d+)?\s*$`)

// IsCoordinateString reports whether s is just a "lat, lng" pair.
func IsCoordinateString(s string) bool {
	return coordinatePattern.MatchString(s)
}

// UsefulHint reports whether a user-supplied name can steer resolution: at
// least 3 characters, not a coordinate pair and not a stock placeholder.
func UsefulHint(hint string) bool {
	h := strings.TrimSpace(hint)
	if len([]rune(h)) < 3 {
		return false
	}
	if IsCoordinateString(h) {
		return false
	}
	return !placeholderHints[similarity.Normalize(h)]
}
