// Package types defines the core data structures shared across Pinpoint:
// coordinates, resolved place identities, points of interest, enriched pins
// and cache entries. Provider-specific payloads never leave the provider
// adapters; everything past that boundary speaks these types.
package types

// ImageSource identifies where an image candidate was discovered.
type ImageSource string

// Image source constants
const (
	// ImageSourceWebsite is an image found on the place's official website
	ImageSourceWebsite ImageSource = "website"

	// ImageSourceSocial is an image found on the place's social profile page
	ImageSourceSocial ImageSource = "social"

	// ImageSourceKnowledgeGraph is an image attached to the knowledge-graph entity
	ImageSourceKnowledgeGraph ImageSource = "knowledge-graph"

	// ImageSourceStock is a generic stock photo
	ImageSourceStock ImageSource = "stock"
)

// Provider names recorded in PlaceIdentity.Source.
const (
	SourceFoursquare = "foursquare"
	SourceMapbox     = "mapbox"
	SourceFallback   = "coordinate"
)

// MaxPinImages is the hard cap on hosted images per pin.
const MaxPinImages = 3
