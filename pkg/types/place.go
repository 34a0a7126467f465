package types

import "strings"

// PlaceIdentity is the resolver's answer to "what is at this coordinate".
// It is created once per resolution and never modified afterwards; Confidence
// is the only signal downstream enrichment uses to decide what to attempt.
type PlaceIdentity struct {
	Coordinate Coordinate `json:"coordinate"`
	Name       string     `json:"name"`

	Category  string `json:"category,omitempty"`
	Address   string `json:"address,omitempty"`
	Locality  string `json:"locality,omitempty"`
	Region    string `json:"region,omitempty"`
	Country   string `json:"country,omitempty"`
	Website   string `json:"website,omitempty"`
	SocialURL string `json:"socialUrl,omitempty"`
	Phone     string `json:"phone,omitempty"`

	// Source is the provider that produced the identity (foursquare, mapbox, coordinate).
	Source   string `json:"source"`
	SourceID string `json:"sourceId,omitempty"`

	// Confidence is in [0, 1].
	Confidence float64 `json:"confidence"`

	// CanonicalQuery is name + locality, used to search secondary sources.
	CanonicalQuery string `json:"canonicalQuery"`

	KnowledgeGraphID string `json:"knowledgeGraphId,omitempty"`
}

// CanonicalQueryFor builds the "name locality" string used for secondary
// searches. The locality is omitted when it is already part of the name.
func CanonicalQueryFor(name, locality string) string {
	name = strings.TrimSpace(name)
	locality = strings.TrimSpace(locality)
	if locality == "" || strings.Contains(strings.ToLower(name), strings.ToLower(locality)) {
		return name
	}
	if name == "" {
		return locality
	}
	return name + " " + locality
}

// FallbackIdentity returns the identity used when every provider failed:
// the formatted coordinate as name and a confidence of 0.1.
func FallbackIdentity(c Coordinate) PlaceIdentity {
	name := c.String()
	return PlaceIdentity{
		Coordinate:     c,
		Name:           name,
		Source:         SourceFallback,
		Confidence:     0.1,
		CanonicalQuery: name,
	}
}

// POI is a named, categorized point of interest returned by a nearby or text
// search. Distance is measured from the query point in meters.
type POI struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Categories []string   `json:"categories,omitempty"`
	Distance   float64    `json:"distance"`
	Coordinate Coordinate `json:"coordinate"`

	Address   string `json:"address,omitempty"`
	Locality  string `json:"locality,omitempty"`
	Region    string `json:"region,omitempty"`
	Country   string `json:"country,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Website   string `json:"website,omitempty"`
	SocialURL string `json:"socialUrl,omitempty"`
}

// PrimaryCategory returns the first category or "" when none.
func (p POI) PrimaryCategory() string {
	if len(p.Categories) == 0 {
		return ""
	}
	return p.Categories[0]
}

// GeocodeResult is the normalized reverse-geocode answer for a coordinate.
type GeocodeResult struct {
	Coordinate       Coordinate `json:"coordinate"`
	PlaceName        string     `json:"placeName,omitempty"`        // Name of the matched feature (street, POI or locality)
	FormattedAddress string     `json:"formattedAddress,omitempty"` // Full free-form address
	FeatureType      string     `json:"featureType,omitempty"`      // poi, address, place, locality, region, country
	Locality         string     `json:"locality,omitempty"`
	Region           string     `json:"region,omitempty"`
	Country          string     `json:"country,omitempty"`
	CountryCode      string     `json:"countryCode,omitempty"`
}

// IsNamedFeature reports whether the geocoder matched a named feature
// (a POI or landmark) rather than a bare address or administrative area.
func (g GeocodeResult) IsNamedFeature() bool {
	return g.FeatureType == "poi" && g.PlaceName != ""
}
