package types

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// ErrInvalidCoordinate is returned when a latitude/longitude pair is missing,
// non-finite, or out of range.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// DefaultKeyPrecision is the number of decimal places used for cache keys
// (4 decimals is roughly 11 m at the equator).
const DefaultKeyPrecision = 4

const earthRadiusMeters = 6371000.0

// Coordinate is a WGS84 latitude/longitude pair.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate checks that the coordinate is finite and within range.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lng, 0) {
		return fmt.Errorf("%w: lat/lng must be finite numbers", ErrInvalidCoordinate)
	}
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("%w: lat %v out of range [-90, 90]", ErrInvalidCoordinate, c.Lat)
	}
	if c.Lng < -180 || c.Lng > 180 {
		return fmt.Errorf("%w: lng %v out of range [-180, 180]", ErrInvalidCoordinate, c.Lng)
	}
	return nil
}

// String formats the coordinate the way it is shown when no place name is
// known, e.g. "-33.92490, 18.42410".
func (c Coordinate) String() string {
	return fmt.Sprintf("%.5f, %.5f", c.Lat, c.Lng)
}

// Key returns the coordinate rounded to precision decimal places, formatted
// as "lat,lng". A precision outside 1..7 falls back to DefaultKeyPrecision.
func (c Coordinate) Key(precision int) string {
	if precision < 1 || precision > 7 {
		precision = DefaultKeyPrecision
	}
	lat := roundTo(c.Lat, precision)
	lng := roundTo(c.Lng, precision)
	return strconv.FormatFloat(lat, 'f', precision, 64) + "," + strconv.FormatFloat(lng, 'f', precision, 64)
}

// DistanceTo returns the great-circle distance in meters using the haversine
// formula.
func (c Coordinate) DistanceTo(other Coordinate) float64 {
	lat1 := c.Lat * math.Pi / 180
	lat2 := other.Lat * math.Pi / 180
	dLat := (other.Lat - c.Lat) * math.Pi / 180
	dLng := (other.Lng - c.Lng) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// IsZero reports whether both components are zero (usually "not provided").
func (c Coordinate) IsZero() bool {
	return c.Lat == 0 && c.Lng == 0
}

func roundTo(v float64, precision int) float64 {
	p := math.Pow(10, float64(precision))
	r := math.Round(v*p) / p
	if r == 0 {
		// avoid "-0.0000" keys
		return 0
	}
	return r
}
