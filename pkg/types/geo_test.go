package types_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/pinpoint/pkg/types"
)

func TestCoordinate_Validate(t *testing.T) {
	tests := []struct {
		name    string
		coord   types.Coordinate
		wantErr bool
	}{
		{"cape town", types.Coordinate{Lat: -33.9249, Lng: 18.4241}, false},
		{"poles and antimeridian", types.Coordinate{Lat: 90, Lng: -180}, false},
		{"lat too high", types.Coordinate{Lat: 90.0001, Lng: 0}, true},
		{"lng too low", types.Coordinate{Lat: 0, Lng: -180.5}, true},
		{"nan", types.Coordinate{Lat: math.NaN(), Lng: 0}, true},
		{"inf", types.Coordinate{Lat: 0, Lng: math.Inf(1)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.coord.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, types.ErrInvalidCoordinate))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCoordinate_Key(t *testing.T) {
	c := types.Coordinate{Lat: -33.92494, Lng: 18.42406}
	assert.Equal(t, "-33.9249,18.4241", c.Key(4))
	assert.Equal(t, "-33.92,18.42", c.Key(2))
	assert.Equal(t, c.Key(types.DefaultKeyPrecision), c.Key(0), "out of range precision uses default")

	// Points ~1 m apart share a key.
	near := types.Coordinate{Lat: -33.92491, Lng: 18.42409}
	assert.Equal(t, c.Key(4), near.Key(4))

	zero := types.Coordinate{Lat: -0.00001, Lng: 0.00001}
	assert.Equal(t, "0.0000,0.0000", zero.Key(4))
}

func TestCoordinate_String(t *testing.T) {
	c := types.Coordinate{Lat: -33.9249, Lng: 18.4241}
	assert.Equal(t, "-33.92490, 18.42410", c.String())
}

func TestCoordinate_DistanceTo(t *testing.T) {
	a := types.Coordinate{Lat: -33.9249, Lng: 18.4241}
	b := types.Coordinate{Lat: -33.9249, Lng: 18.4251}

	// 0.001 degrees of longitude at this latitude is roughly 92 m.
	assert.InDelta(t, 92.2, a.DistanceTo(b), 1.0)
	assert.Equal(t, 0.0, a.DistanceTo(a))
}

func TestFallbackIdentity(t *testing.T) {
	c := types.Coordinate{Lat: 1.5, Lng: 2.25}
	id := types.FallbackIdentity(c)

	assert.Equal(t, "1.50000, 2.25000", id.Name)
	assert.Equal(t, 0.1, id.Confidence)
	assert.Equal(t, types.SourceFallback, id.Source)
	assert.Equal(t, id.Name, id.CanonicalQuery)
}

func TestCanonicalQueryFor(t *testing.T) {
	assert.Equal(t, "Spier Wine Farm Stellenbosch", types.CanonicalQueryFor("Spier Wine Farm", "Stellenbosch"))
	assert.Equal(t, "Stellenbosch Museum", types.CanonicalQueryFor("Stellenbosch Museum", "Stellenbosch"))
	assert.Equal(t, "Kiosk", types.CanonicalQueryFor(" Kiosk ", ""))
}
