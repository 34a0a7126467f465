package handlers

import (
	"github.com/scrypster/pinpoint/internal/gateway"
	"github.com/scrypster/pinpoint/pkg/types"
)

// ErrorResponse is the standard error response format for the API.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// CoordinateRequest carries a raw coordinate. Pointers distinguish a missing
// field from zero, which is a valid latitude or longitude.
type CoordinateRequest struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

// EnrichRequest is the request format for POST /api/enrich.
type EnrichRequest struct {
	CoordinateRequest
	UserHintName string `json:"userHintName,omitempty"`
}

// EnrichResponse is the response format for POST /api/enrich.
type EnrichResponse struct {
	Status string            `json:"status"`
	Data   types.EnrichedPin `json:"data"`
}

// IntelligenceRequest is the request format for POST /api/intelligence.
type IntelligenceRequest struct {
	CoordinateRequest
	Precision *int `json:"precision,omitempty"`
}

// RateMeta reports the caller's remaining quota.
type RateMeta struct {
	MinuteRemaining int `json:"minuteRemaining"`
	HourRemaining   int `json:"hourRemaining"`
}

// IntelligenceMeta describes how an intelligence response was produced.
type IntelligenceMeta struct {
	Source     string   `json:"source"`
	Cached     bool     `json:"cached"`
	Rate       RateMeta `json:"rate"`
	DurationMS int64    `json:"duration_ms"`
	RequestID  string   `json:"request_id"`
}

// IntelligenceResponse is the response format for POST /api/intelligence.
type IntelligenceResponse struct {
	Meta        IntelligenceMeta     `json:"meta"`
	Geocode     *types.GeocodeResult `json:"geocode"`
	Places      []types.POI          `json:"places"`
	POIMetadata *gateway.POIMetadata `json:"poi_metadata,omitempty"`
}

// StatsResponse is the response format for GET /api/stats.
type StatsResponse struct {
	Cache       CacheStats        `json:"cache"`
	Breakers    map[string]string `json:"breakers"`
	RateLimiter CountStats        `json:"rate_limiter"`
	Idempotency CountStats        `json:"idempotency"`
	WebSocket   CountStats        `json:"websocket"`
}

// CacheStats describes the cache tiers.
type CacheStats struct {
	LocalEntries int  `json:"local_entries"`
	Remote       bool `json:"remote"`
}

// CountStats is a single tracked-entry count.
type CountStats struct {
	Entries int `json:"entries"`
}

// Event is a message pushed to WebSocket subscribers.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// EventPinEnriched is sent after every uncached enrichment.
const EventPinEnriched = "pin.enriched"
