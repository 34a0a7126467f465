package mapbox

import (
	"strings"

	"github.com/scrypster/pinpoint/pkg/types"
)

type featureCollection struct {
	Features []feature `json:"features"`
}

type feature struct {
	ID         string   `json:"id"`
	PlaceType  []string `json:"place_type"`
	Text       string   `json:"text"`
	PlaceName  string   `json:"place_name"`
	Address    string   `json:"address"`
	Properties struct {
		Address   string `json:"address"`
		ShortCode string `json:"short_code"`
	} `json:"properties"`
	Context []contextItem `json:"context"`
}

type contextItem struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	ShortCode string `json:"short_code"`
}

// normalize maps the first (most specific) feature onto a GeocodeResult,
// reading locality/region/country from the feature's context chain.
func normalize(point types.Coordinate, fc featureCollection) (*types.GeocodeResult, bool) {
	if len(fc.Features) == 0 {
		return nil, false
	}
	f := fc.Features[0]

	res := &types.GeocodeResult{
		Coordinate:       point,
		FormattedAddress: strings.TrimSpace(f.PlaceName),
	}
	if len(f.PlaceType) > 0 {
		res.FeatureType = f.PlaceType[0]
	}

	switch res.FeatureType {
	case "address":
		// "12 Long Street" rather than bare "Long Street"
		if f.Address != "" {
			res.PlaceName = f.Address + " " + f.Text
		} else {
			res.PlaceName = f.Text
		}
	default:
		res.PlaceName = f.Text
	}

	// The feature itself may be the locality, region or country.
	levels := map[string]contextItem{}
	for _, c := range append([]contextItem{{ID: f.ID, Text: f.Text, ShortCode: f.Properties.ShortCode}}, f.Context...) {
		kind := kindOf(c.ID)
		if _, seen := levels[kind]; !seen {
			levels[kind] = c
		}
	}
	// Town (place) wins over suburb-level locality.
	if p, ok := levels["place"]; ok {
		res.Locality = p.Text
	} else if l, ok := levels["locality"]; ok {
		res.Locality = l.Text
	}
	if r, ok := levels["region"]; ok {
		res.Region = r.Text
	}
	if c, ok := levels["country"]; ok {
		res.Country = c.Text
		res.CountryCode = strings.ToUpper(c.ShortCode)
	}
	return res, true
}

func kindOf(id string) string {
	if i := strings.IndexByte(id, '.'); i > 0 {
		return id[:i]
	}
	return id
}
