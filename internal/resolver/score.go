package resolver

import (
	"github.com/scrypster/pinpoint/internal/similarity"
	"github.com/scrypster/pinpoint/pkg/types"
)

// Scoring weights.
const (
	baseScore       = 0.5
	proximityWeight = 0.3
	hintWeight      = 0.2
	detailBonus     = 0.05
)

// scoreCandidate grades a nearby POI. Proximity falls linearly from 0.3 at the
// query point to 0 at the radius edge.
func scoreCandidate(poi types.POI, radius float64, hint string, useHint bool) float64 {
	score := baseScore

	if radius > 0 {
		closeness := 1 - poi.Distance/radius
		if closeness < 0 {
			closeness = 0
		}
		if closeness > 1 {
			closeness = 1
		}
		score += proximityWeight * closeness
	}

	if useHint {
		score += hintWeight * similarity.Score(poi.Name, hint)
	}

	if poi.Phone != "" {
		score += detailBonus
	}
	if poi.Website != "" {
		score += detailBonus
	}
	if poi.PrimaryCategory() != "" {
		score += detailBonus
	}
	return score
}

type scored struct {
	poi   types.POI
	score float64
}

// pickBest returns the highest-scoring POI at or above threshold. Ties go to
// the nearer POI.
func pickBest(pois []types.POI, radius float64, hint string, useHint bool, threshold float64) (types.POI, float64, bool) {
	var best *scored
	for _, p := range pois {
		s := scoreCandidate(p, radius, hint, useHint)
		if s < threshold {
			continue
		}
		if best == nil || s > best.score || (s == best.score && p.Distance < best.poi.Distance) {
			best = &scored{poi: p, score: s}
		}
	}
	if best == nil {
		return types.POI{}, 0, false
	}
	return best.poi, best.score, true
}
