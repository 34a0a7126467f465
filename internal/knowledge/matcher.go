// Package knowledge looks a resolved place up in a structured knowledge graph
// (Wikidata) and accepts a candidate only on a strict name match. There is no
// "best available" fallback: below the threshold the matcher returns nil.
package knowledge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/scrypster/pinpoint/internal/cache"
	"github.com/scrypster/pinpoint/internal/logger"
	"github.com/scrypster/pinpoint/internal/providers/wikidata"
	"github.com/scrypster/pinpoint/internal/similarity"
	"github.com/scrypster/pinpoint/pkg/types"
)

// Tuning.
const (
	AcceptThreshold = 0.75
	CategoryBonus   = 0.1
	SearchLimit     = 10
	MaxImages       = 3

	containmentScore = 0.8
	matchTTL         = 7 * 24 * time.Hour
)

// rejectTerms in a candidate description mean it is not a place.
var rejectTerms = []string{
	"aircraft", "airliner", "airplane", "aeroplane",
	"person", "human", "politician", "actor", "actress", "singer", "footballer",
	"band", "musical group", "song", "single by", "album",
	"company", "corporation", "business enterprise",
	"model", "car model", "family name", "given name", "surname",
}

// nonPlaceClasses are P31 classes whose instances are never places.
var nonPlaceClasses = map[string]bool{
	"Q5":        true, // human
	"Q215380":   true, // musical group
	"Q482994":   true, // album
	"Q134556":   true, // single
	"Q7366":     true, // song
	"Q11424":    true, // film
	"Q5398426":  true, // television series
	"Q7725634":  true, // literary work
	"Q101352":   true, // family name
	"Q202444":   true, // given name
	"Q4167410":  true, // disambiguation page
	"Q13442814": true, // scholarly article
}

// preferredTerms earn CategoryBonus when present in a description.
var preferredTerms = []string{
	"farm", "winery", "wine estate", "vineyard", "restaurant", "museum",
	"park", "hotel", "garden", "beach", "mountain", "church", "cathedral",
	"castle", "monument", "market", "brewery", "cafe", "zoo", "stadium",
	"theatre", "gallery", "lighthouse", "nature reserve", "waterfall",
}

// Graph is the subset of the knowledge-graph client the matcher needs.
type Graph interface {
	Search(ctx context.Context, query string, limit int) ([]wikidata.Candidate, error)
	Entity(ctx context.Context, id string) (*wikidata.Entity, error)
	Summary(ctx context.Context, title string) (string, error)
}

// Match is an accepted knowledge-graph entity.
type Match struct {
	ID          string   `json:"id"`
	Label       string   `json:"label"`
	Score       float64  `json:"score"`
	Description string   `json:"description,omitempty"`
	Images      []string `json:"images,omitempty"`
	Website     string   `json:"website,omitempty"`
}

// Matcher finds strict matches for resolved places.
type Matcher struct {
	graph Graph
	cache *cache.Tiered
	log   *zap.SugaredLogger
}

// NewMatcher creates a Matcher. c may be nil to disable result caching.
func NewMatcher(graph Graph, c *cache.Tiered) *Matcher {
	return &Matcher{graph: graph, cache: c, log: logger.GetLogger("knowledge")}
}

// Match returns the accepted entity for id, or nil when the gate declines,
// nothing scores at least AcceptThreshold, or the graph is unreachable. The
// error is informational; callers continue without a match either way.
func (m *Matcher) Match(ctx context.Context, id types.PlaceIdentity) (*Match, error) {
	if m == nil || m.graph == nil {
		return nil, nil
	}
	if d := Decide(id); !d.Attempt {
		m.log.Debugw("knowledge graph skipped", "name", id.Name, "reason", d.Reason)
		return nil, nil
	}

	key := cache.KnowledgeKey(id.CanonicalQuery)
	if m.cache != nil {
		var cached Match
		if m.cache.GetJSON(ctx, key, &cached) {
			return &cached, nil
		}
	}

	candidates, err := m.search(ctx, id)
	if err != nil {
		return nil, err
	}

	best, score := pickCandidate(id.Name, candidates)
	if best == nil {
		m.log.Debugw("no knowledge graph candidate above threshold", "name", id.Name, "best_score", score)
		return nil, nil
	}

	match, err := m.expand(ctx, *best, score)
	if err != nil {
		return nil, err
	}
	if match == nil {
		return nil, nil
	}

	if m.cache != nil {
		if err := m.cache.SetJSON(ctx, key, match, matchTTL); err != nil {
			m.log.Warnw("failed to cache knowledge match", "key", key, "error", err)
		}
	}
	return match, nil
}

// search queries name + locality, falling back to the bare name.
func (m *Matcher) search(ctx context.Context, id types.PlaceIdentity) ([]wikidata.Candidate, error) {
	query := id.CanonicalQuery
	if strings.TrimSpace(query) == "" {
		query = id.Name
	}
	candidates, err := m.graph.Search(ctx, query, SearchLimit)
	if err != nil {
		return nil, fmt.Errorf("knowledge: search: %w", err)
	}
	if len(candidates) == 0 && !strings.EqualFold(strings.TrimSpace(query), strings.TrimSpace(id.Name)) {
		candidates, err = m.graph.Search(ctx, id.Name, SearchLimit)
		if err != nil {
			return nil, fmt.Errorf("knowledge: search by name: %w", err)
		}
	}
	return candidates, nil
}

// expand loads the accepted entity's description, images and website. It
// returns nil when the entity turns out to be something other than a place.
func (m *Matcher) expand(ctx context.Context, c wikidata.Candidate, score float64) (*Match, error) {
	entity, err := m.graph.Entity(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("knowledge: load %s: %w", c.ID, err)
	}
	if class, ok := nonPlace(entity); ok {
		m.log.Debugw("knowledge graph candidate is not a place", "id", c.ID, "instance_of", class)
		return nil, nil
	}

	match := &Match{
		ID:          c.ID,
		Label:       firstNonEmpty(entity.Label, c.Label),
		Score:       score,
		Description: firstNonEmpty(entity.Description, c.Description),
		Website:     entity.Website,
	}
	if entity.WikipediaTitle != "" {
		summary, err := m.graph.Summary(ctx, entity.WikipediaTitle)
		if err != nil {
			m.log.Warnw("wikipedia summary failed", "title", entity.WikipediaTitle, "error", err)
		} else if summary != "" {
			match.Description = summary
		}
	}
	for _, img := range entity.Images {
		if len(match.Images) == MaxImages {
			break
		}
		match.Images = append(match.Images, img)
	}
	return match, nil
}

// pickCandidate returns the best-scoring acceptable candidate and its score.
// The returned candidate is nil when nothing reaches AcceptThreshold; the
// score is then the best seen, for logging.
func pickCandidate(name string, candidates []wikidata.Candidate) (*wikidata.Candidate, float64) {
	var (
		best      *wikidata.Candidate
		bestScore float64
	)
	for i := range candidates {
		c := candidates[i]
		if rejected(c.Description) {
			continue
		}
		s := ScoreCandidate(name, c)
		if s > bestScore {
			bestScore = s
			if s >= AcceptThreshold {
				best = &candidates[i]
			}
		}
	}
	return best, bestScore
}

// ScoreCandidate grades a candidate label against the place name: token
// overlap, lifted by strong containment, plus CategoryBonus for a preferred
// category in the description.
func ScoreCandidate(name string, c wikidata.Candidate) float64 {
	score := similarity.Dice(name, c.Label)
	if similarity.Normalize(name) == similarity.Normalize(c.Label) && score > 0 {
		score = 1
	} else if strongContainment(name, c.Label) && score < containmentScore {
		score = containmentScore
	}
	if hasAnyTerm(c.Description, preferredTerms) {
		score += CategoryBonus
	}
	if score > 1 {
		score = 1
	}
	return score
}

// strongContainment holds when the label contains the whole name, or when a
// label found inside the name spans at least two tokens and most of it. A
// single generic word ("wine", "farm") inside a longer name does not count.
func strongContainment(name, label string) bool {
	nn, nl := similarity.Normalize(name), similarity.Normalize(label)
	if nn == "" || nl == "" {
		return false
	}
	if strings.Contains(" "+nl+" ", " "+nn+" ") {
		return true
	}
	if !strings.Contains(" "+nn+" ", " "+nl+" ") {
		return false
	}
	lt, nt := len(similarity.Tokens(label)), len(similarity.Tokens(name))
	return lt >= 2 && 2*lt > nt
}

func nonPlace(e *wikidata.Entity) (string, bool) {
	for _, class := range e.InstanceOf {
		if nonPlaceClasses[class] {
			return class, true
		}
	}
	return "", false
}

func rejected(description string) bool {
	return hasAnyTerm(description, rejectTerms)
}

// hasAnyTerm matches whole words or phrases in normalized text.
func hasAnyTerm(text string, terms []string) bool {
	n := " " + similarity.Normalize(text) + " "
	if n == "  " {
		return false
	}
	for _, t := range terms {
		if strings.Contains(n, " "+t+" ") {
			return true
		}
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
