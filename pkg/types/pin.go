package types

import (
	"encoding/json"
	"time"
)

// ImageRecord is a re-hosted image attached to a pin.
type ImageRecord struct {
	URL       string      `json:"url"`       // Hosted URL served by Pinpoint
	Source    ImageSource `json:"source"`    // Where the original was discovered
	SourceURL string      `json:"sourceUrl"` // Original image URL
	FetchedAt time.Time   `json:"fetchedAt"`
}

// EnrichedPin is the final product of the enrichment flow: a place identity,
// an optional short description, and at most MaxPinImages images in priority
// order. Pins are cached by coordinate key and never mutated; a cache miss
// produces a new pin.
type EnrichedPin struct {
	Place       PlaceIdentity `json:"place"`
	Description string        `json:"description,omitempty"`
	Images      []ImageRecord `json:"images"`
	ResolvedAt  time.Time     `json:"resolvedAt"`
}

// CacheEntry is a single cached payload. CreatedAt survives overwrites;
// UpdatedAt and ExpiresAt are replaced on every write.
type CacheEntry struct {
	Key       string          `json:"key"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
	ExpiresAt time.Time       `json:"expiresAt"`
	Payload   json.RawMessage `json:"payload"`
}

// Expired reports whether the entry is no longer servable at now.
func (e CacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}
