package knowledge

import (
	"regexp"
	"strings"

	"github.com/scrypster/pinpoint/internal/resolver"
	"github.com/scrypster/pinpoint/internal/similarity"
	"github.com/scrypster/pinpoint/pkg/types"
)

// MinConfidence is the identity confidence below which the graph is not asked.
const MinConfidence = 0.7

// Reason explains a gate decision (logged and surfaced in CLI output).
type Reason string

const (
	ReasonAttempt        Reason = "attempt"
	ReasonLowConfidence  Reason = "low-confidence"
	ReasonEmptyName      Reason = "empty-name"
	ReasonRoadLike       Reason = "road-like-name"
	ReasonCoordinateName Reason = "coordinate-query"
)

// Decision is the outcome of Decide.
type Decision struct {
	Attempt bool
	Reason  Reason
}

// routeNumber matches bare route designators: N2, R44, M5, A1, 101, I-95.
var routeNumber = regexp.MustCompile(`(?i)^([a-z]{1,2}-?\d{1,4}|\d{1,4})$`)

var roadTokens = map[string]bool{
	"road": true, "rd": true, "street": true, "highway": true, "hwy": true,
	"freeway": true, "motorway": true, "expressway": true,
}

// IsRoadLike reports whether name looks like a road rather than a place.
func IsRoadLike(name string) bool {
	n := strings.TrimSpace(name)
	if routeNumber.MatchString(n) {
		return true
	}
	for _, tok := range strings.Fields(similarity.Normalize(n)) {
		if roadTokens[tok] {
			return true
		}
	}
	return false
}

// Decide is the pure gate in front of the knowledge graph.
func Decide(id types.PlaceIdentity) Decision {
	switch {
	case id.Confidence < MinConfidence:
		return Decision{Reason: ReasonLowConfidence}
	case strings.TrimSpace(id.Name) == "":
		return Decision{Reason: ReasonEmptyName}
	case IsRoadLike(id.Name):
		return Decision{Reason: ReasonRoadLike}
	case resolver.IsCoordinateString(id.CanonicalQuery) || resolver.IsCoordinateString(id.Name):
		return Decision{Reason: ReasonCoordinateName}
	}
	return Decision{Attempt: true, Reason: ReasonAttempt}
}
