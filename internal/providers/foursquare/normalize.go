package foursquare

import (
	"strings"

	"github.com/scrypster/pinpoint/pkg/types"
)

type searchResponse struct {
	Results []place `json:"results"`
}

type place struct {
	FsqID      string     `json:"fsq_id"`
	Name       string     `json:"name"`
	Categories []category `json:"categories"`
	Distance   *float64   `json:"distance"`
	Geocodes   struct {
		Main *latLng `json:"main"`
	} `json:"geocodes"`
	Location    location    `json:"location"`
	Tel         string      `json:"tel"`
	Website     string      `json:"website"`
	SocialMedia socialMedia `json:"social_media"`
}

type category struct {
	Name string `json:"name"`
}

type latLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type location struct {
	Address          string `json:"address"`
	FormattedAddress string `json:"formatted_address"`
	Locality         string `json:"locality"`
	Region           string `json:"region"`
	Country          string `json:"country"`
}

type socialMedia struct {
	Instagram  string `json:"instagram"`
	FacebookID string `json:"facebook_id"`
	Twitter    string `json:"twitter"`
}

// normalizeResults converts Places results into POIs. Results without a name
// or coordinate are dropped. A missing distance is computed from origin.
func normalizeResults(origin types.Coordinate, results []place) []types.POI {
	pois := make([]types.POI, 0, len(results))
	for _, r := range results {
		name := strings.TrimSpace(r.Name)
		if name == "" || r.Geocodes.Main == nil {
			continue
		}
		coord := types.Coordinate{Lat: r.Geocodes.Main.Latitude, Lng: r.Geocodes.Main.Longitude}
		if coord.Validate() != nil {
			continue
		}

		poi := types.POI{
			ID:         r.FsqID,
			Name:       name,
			Coordinate: coord,
			Address:    firstNonEmpty(r.Location.Address, r.Location.FormattedAddress),
			Locality:   r.Location.Locality,
			Region:     r.Location.Region,
			Country:    r.Location.Country,
			Phone:      strings.TrimSpace(r.Tel),
			Website:    strings.TrimSpace(r.Website),
			SocialURL:  socialURL(r.SocialMedia),
		}
		for _, c := range r.Categories {
			if c.Name != "" {
				poi.Categories = append(poi.Categories, c.Name)
			}
		}
		if r.Distance != nil {
			poi.Distance = *r.Distance
		} else {
			poi.Distance = origin.DistanceTo(coord)
		}
		pois = append(pois, poi)
	}
	return pois
}

// socialURL builds a profile URL, preferring Instagram, then Facebook, then X.
func socialURL(s socialMedia) string {
	switch {
	case s.Instagram != "":
		return "https://www.instagram.com/" + strings.TrimPrefix(s.Instagram, "@") + "/"
	case s.FacebookID != "":
		return "https://www.facebook.com/" + s.FacebookID
	case s.Twitter != "":
		return "https://x.com/" + strings.TrimPrefix(s.Twitter, "@")
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
