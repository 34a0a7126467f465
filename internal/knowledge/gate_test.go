package knowledge

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scrypster/pinpoint/pkg/types"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name string
		id   types.PlaceIdentity
		want Decision
	}{
		{
			name: "confident named place",
			id:   types.PlaceIdentity{Name: "Spier Wine Farm", Confidence: 0.85, CanonicalQuery: "Spier Wine Farm Stellenbosch"},
			want: Decision{Attempt: true, Reason: ReasonAttempt},
		},
		{
			name: "exactly at threshold",
			id:   types.PlaceIdentity{Name: "Spier", Confidence: 0.7, CanonicalQuery: "Spier"},
			want: Decision{Attempt: true, Reason: ReasonAttempt},
		},
		{
			name: "low confidence",
			id:   types.PlaceIdentity{Name: "Table Mountain", Confidence: 0.3, CanonicalQuery: "Table Mountain"},
			want: Decision{Reason: ReasonLowConfidence},
		},
		{
			name: "route number",
			id:   types.PlaceIdentity{Name: "N2", Confidence: 0.85, CanonicalQuery: "N2 Cape Town"},
			want: Decision{Reason: ReasonRoadLike},
		},
		{
			name: "street name",
			id:   types.PlaceIdentity{Name: "Long Street", Confidence: 0.85, CanonicalQuery: "Long Street Cape Town"},
			want: Decision{Reason: ReasonRoadLike},
		},
		{
			name: "coordinate query",
			id:   types.PlaceIdentity{Name: "Somewhere", Confidence: 0.85, CanonicalQuery: "-33.92490, 18.42410"},
			want: Decision{Reason: ReasonCoordinateName},
		},
		{
			name: "blank name",
			id:   types.PlaceIdentity{Name: "  ", Confidence: 0.85},
			want: Decision{Reason: ReasonEmptyName},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.id))
		})
	}
}

func TestIsRoadLike(t *testing.T) {
	for _, name := range []string{"N2", "R44", "101", "I-95", "M5", "Main Road", "Pacific Coast Highway", "Bree St Rd"} {
		assert.True(t, IsRoadLike(name), name)
	}
	for _, name := range []string{"Spier Wine Farm", "St Mary's Cathedral", "Route 62 Farm Stall", "Roadhouse Diner"} {
		assert.False(t, IsRoadLike(name), name)
	}
}
