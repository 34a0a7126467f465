package knowledge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/pinpoint/internal/cache"
	"github.com/scrypster/pinpoint/internal/providers/wikidata"
	"github.com/scrypster/pinpoint/pkg/types"
)

type fakeGraph struct {
	results   map[string][]wikidata.Candidate
	entities  map[string]*wikidata.Entity
	summaries map[string]string
	searchErr error
	queries   []string
}

func (g *fakeGraph) Search(_ context.Context, query string, _ int) ([]wikidata.Candidate, error) {
	g.queries = append(g.queries, query)
	if g.searchErr != nil {
		return nil, g.searchErr
	}
	return g.results[query], nil
}

func (g *fakeGraph) Entity(_ context.Context, id string) (*wikidata.Entity, error) {
	e, ok := g.entities[id]
	if !ok {
		return nil, wikidata.ErrNotFound
	}
	return e, nil
}

func (g *fakeGraph) Summary(_ context.Context, title string) (string, error) {
	return g.summaries[title], nil
}

func spierIdentity() types.PlaceIdentity {
	return types.PlaceIdentity{
		Name:           "Spier Wine Farm",
		Locality:       "Stellenbosch",
		Confidence:     0.85,
		CanonicalQuery: "Spier Wine Farm Stellenbosch",
	}
}

func TestMatch_AcceptsStrictMatch(t *testing.T) {
	g := &fakeGraph{
		results: map[string][]wikidata.Candidate{
			"Spier Wine Farm Stellenbosch": {
				{ID: "Q1", Label: "Spier", Description: "aircraft model"},
				{ID: "Q7577396", Label: "Spier Wine Farm", Description: "wine estate in South Africa"},
			},
		},
		entities: map[string]*wikidata.Entity{
			"Q7577396": {
				ID:             "Q7577396",
				Label:          "Spier Wine Farm",
				Description:    "wine estate in South Africa",
				WikipediaTitle: "Spier Wine Farm",
				Website:        "https://www.spier.co.za",
				Images:         []string{"a", "b", "c"},
			},
		},
		summaries: map[string]string{"Spier Wine Farm": "Spier is one of the oldest wine farms in South Africa."},
	}

	m, err := NewMatcher(g, nil).Match(context.Background(), spierIdentity())
	require.NoError(t, err)
	require.NotNil(t, m)

	assert.Equal(t, "Q7577396", m.ID)
	assert.Equal(t, 1.0, m.Score)
	assert.Equal(t, "Spier is one of the oldest wine farms in South Africa.", m.Description)
	assert.Equal(t, "https://www.spier.co.za", m.Website)
	assert.Len(t, m.Images, 3)
}

func TestMatch_BelowThresholdReturnsNil(t *testing.T) {
	id := types.PlaceIdentity{
		Name:           "Alpha Beta Gamma Delta Epsilon",
		Confidence:     0.85,
		CanonicalQuery: "Alpha Beta Gamma Delta Epsilon",
	}
	g := &fakeGraph{results: map[string][]wikidata.Candidate{
		id.CanonicalQuery: {{ID: "Q9", Label: "Alpha Beta Gamma Zeta Eta", Description: "hiking trail"}},
	}}

	assert.InDelta(t, 0.6, ScoreCandidate(id.Name, g.results[id.CanonicalQuery][0]), 1e-9)

	m, err := NewMatcher(g, nil).Match(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, m, "a 0.6 candidate must never be returned")
}

func TestMatch_FallsBackToNameOnlySearch(t *testing.T) {
	g := &fakeGraph{
		results: map[string][]wikidata.Candidate{
			"Spier Wine Farm": {{ID: "Q7577396", Label: "Spier Wine Farm", Description: "winery"}},
		},
		entities: map[string]*wikidata.Entity{"Q7577396": {ID: "Q7577396", Description: "winery"}},
	}

	m, err := NewMatcher(g, nil).Match(context.Background(), spierIdentity())
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, []string{"Spier Wine Farm Stellenbosch", "Spier Wine Farm"}, g.queries)
	assert.Equal(t, "Spier Wine Farm", m.Label, "label falls back to the search hit")
	assert.Equal(t, "winery", m.Description)
}

func TestMatch_GateDeclines(t *testing.T) {
	g := &fakeGraph{}
	low := spierIdentity()
	low.Confidence = 0.3

	m, err := NewMatcher(g, nil).Match(context.Background(), low)
	require.NoError(t, err)
	assert.Nil(t, m)
	assert.Empty(t, g.queries, "graph must not be queried")
}

func TestMatch_SearchErrorSurfaces(t *testing.T) {
	g := &fakeGraph{searchErr: errors.New("circuit open")}
	m, err := NewMatcher(g, nil).Match(context.Background(), spierIdentity())
	assert.Error(t, err)
	assert.Nil(t, m)
}

func TestMatch_CachesAcceptedMatch(t *testing.T) {
	g := &fakeGraph{
		results: map[string][]wikidata.Candidate{
			"Spier Wine Farm Stellenbosch": {{ID: "Q7577396", Label: "Spier Wine Farm"}},
		},
		entities: map[string]*wikidata.Entity{"Q7577396": {ID: "Q7577396"}},
	}
	c, err := cache.NewTiered(16)
	require.NoError(t, err)
	matcher := NewMatcher(g, c)

	first, err := matcher.Match(context.Background(), spierIdentity())
	require.NoError(t, err)
	second, err := matcher.Match(context.Background(), spierIdentity())
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, g.queries, 1)
}

func TestScoreCandidate(t *testing.T) {
	assert.Equal(t, 1.0, ScoreCandidate("Spier Wine Farm", wikidata.Candidate{Label: "spier wine farm"}))
	assert.Equal(t, 0.8, ScoreCandidate("Spier", wikidata.Candidate{Label: "Spier Wine Farm"}))
	assert.InDelta(t, 0.9, ScoreCandidate("Spier", wikidata.Candidate{Label: "Spier Wine Farm", Description: "winery"}), 1e-9)
	assert.Zero(t, ScoreCandidate("Spier", wikidata.Candidate{Label: "Louvre"}))
}

func TestScoreCandidate_GenericWordInsideNameIsNotLifted(t *testing.T) {
	wine := wikidata.Candidate{ID: "Q282", Label: "wine", Description: "alcoholic drink made from fermented grapes"}
	farm := wikidata.Candidate{ID: "Q131596", Label: "farm", Description: "area of land for farming"}

	assert.Less(t, ScoreCandidate("Spier Wine Farm", wine), AcceptThreshold)
	assert.Less(t, ScoreCandidate("Spier Wine Farm", farm), AcceptThreshold)
	assert.Less(t, ScoreCandidate("Table Mountain", wikidata.Candidate{Label: "Mountain", Description: "landform"}), AcceptThreshold)

	// Multi-token labels covering most of the name still count.
	assert.Equal(t, 0.8, ScoreCandidate("Two Oceans Aquarium Cape Town", wikidata.Candidate{Label: "Two Oceans Aquarium"}))
}

func TestMatch_GenericCandidatesReturnNil(t *testing.T) {
	g := &fakeGraph{
		results: map[string][]wikidata.Candidate{
			"Spier Wine Farm Stellenbosch": {
				{ID: "Q282", Label: "wine", Description: "alcoholic drink made from fermented grapes"},
				{ID: "Q131596", Label: "farm", Description: "area of land for farming"},
			},
		},
		entities: map[string]*wikidata.Entity{
			"Q282":    {ID: "Q282", Label: "wine", Images: []string{"glass.jpg"}},
			"Q131596": {ID: "Q131596", Label: "farm"},
		},
	}

	m, err := NewMatcher(g, nil).Match(context.Background(), spierIdentity())
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestMatch_RejectsNonPlaceEntity(t *testing.T) {
	id := types.PlaceIdentity{
		Name:           "Jan van Riebeeck",
		Confidence:     0.85,
		CanonicalQuery: "Jan van Riebeeck Cape Town",
	}
	g := &fakeGraph{
		results: map[string][]wikidata.Candidate{
			id.CanonicalQuery: {{ID: "Q380509", Label: "Jan van Riebeeck", Description: "Dutch navigator"}},
		},
		entities: map[string]*wikidata.Entity{
			"Q380509": {ID: "Q380509", Label: "Jan van Riebeeck", InstanceOf: []string{"Q5"}, Images: []string{"portrait.jpg"}},
		},
	}
	c, err := cache.NewTiered(16)
	require.NoError(t, err)
	matcher := NewMatcher(g, c)

	m, err := matcher.Match(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, m)

	// Nothing was cached, so the graph is asked again.
	_, err = matcher.Match(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, g.queries, 2)
}

func TestRejected(t *testing.T) {
	assert.True(t, rejected("American rock band"))
	assert.True(t, rejected("1998 single by Madonna"))
	assert.True(t, rejected("Dutch company"))
	assert.True(t, rejected("aircraft model"))
	assert.False(t, rejected("wine estate in South Africa"))
	assert.False(t, rejected("bandstand in a park"), "whole words only")
	assert.False(t, rejected(""))
}
