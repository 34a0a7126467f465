package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/scrypster/pinpoint/pkg/types"
)

func TestTTLPolicy_ForCategory(t *testing.T) {
	p := DefaultTTLPolicy()

	tests := []struct {
		category string
		want     time.Duration
	}{
		{"Restaurant", DefaultCommercialTTL},
		{"Coffee Shop", DefaultCommercialTTL},
		{"Hotel", DefaultCommercialTTL},
		{"Wine Bar", DefaultCommercialTTL},
		{"Monument", DefaultLandmarkTTL},
		{"National Park", DefaultLandmarkTTL},
		{"Museum Shop", DefaultLandmarkTTL},
		{"Barbershop", DefaultUnknownTTL},
		{"Winery", DefaultUnknownTTL},
		{"", DefaultUnknownTTL},
	}
	for _, tt := range tests {
		t.Run(tt.category, func(t *testing.T) {
			assert.Equal(t, tt.want, p.ForCategory(tt.category))
		})
	}
}

func TestTTLPolicy_ZeroFieldsFallBack(t *testing.T) {
	var p TTLPolicy
	assert.Equal(t, DefaultCommercialTTL, p.ForCategory("cafe"))
	assert.Equal(t, DefaultUnknownTTL, p.ForCategory("unknown thing"))
}

func TestKeys(t *testing.T) {
	c := types.Coordinate{Lat: -33.92487, Lng: 18.42406}
	assert.Equal(t, "pin:-33.9249,18.4241", PinKey(c))
	assert.Equal(t, "poi:-33.925,18.424", POIKey(c, 3))
	assert.Equal(t, "geo:-33.925,18.424", GeocodeKey(c, 3))
	assert.Equal(t, "preview:website:https://example.com/a", PreviewKey("website", "https://example.com/a"))
	assert.Equal(t, "robots:https://example.com", RobotsKey("HTTPS", "Example.com"))
	assert.Equal(t, "kg:spier wine farm stellenbosch", KnowledgeKey("  Spier  Wine Farm Stellenbosch"))
}
