package cache

import (
	"strings"

	"github.com/scrypster/pinpoint/pkg/types"
)

// Key namespaces. Each flow keeps its own prefix so a pin, a POI list and a
// geocode for the same coordinate never collide.
const (
	prefixPin     = "pin:"
	prefixPOI     = "poi:"
	prefixGeocode = "geo:"
	prefixPreview = "preview:"
	prefixRobots  = "robots:"
	prefixKG      = "kg:"
)

// PinKey is the enrichment cache key for a coordinate (4 decimals).
func PinKey(c types.Coordinate) string {
	return prefixPin + c.Key(types.DefaultKeyPrecision)
}

// POIKey is the gateway POI-list key at the requested precision.
func POIKey(c types.Coordinate, precision int) string {
	return prefixPOI + c.Key(precision)
}

// GeocodeKey is the gateway reverse-geocode key at the requested precision.
func GeocodeKey(c types.Coordinate, precision int) string {
	return prefixGeocode + c.Key(precision)
}

// PreviewKey is the key for a page preview. kind is "website" or "social";
// normalizedURL must already be stripped of query and fragment.
func PreviewKey(kind, normalizedURL string) string {
	return prefixPreview + kind + ":" + normalizedURL
}

// RobotsKey is the key for a host's parsed robots.txt rules.
func RobotsKey(scheme, host string) string {
	return prefixRobots + strings.ToLower(scheme) + "://" + strings.ToLower(host)
}

// KnowledgeKey is the key for a knowledge-graph match keyed by canonical query.
func KnowledgeKey(canonicalQuery string) string {
	return prefixKG + strings.ToLower(strings.Join(strings.Fields(canonicalQuery), " "))
}
