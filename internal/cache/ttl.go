package cache

import (
	"strings"
	"time"
)

// Category TTL defaults.
const (
	DefaultCommercialTTL = 24 * time.Hour
	DefaultLandmarkTTL   = 30 * 24 * time.Hour
	DefaultUnknownTTL    = 7 * 24 * time.Hour
)

// commercialTerms mark places whose details churn (menus, closures, owners).
var commercialTerms = []string{
	"restaurant", "cafe", "café", "coffee", "bar", "pub", "bistro", "bakery",
	"fast food", "food", "diner", "pizzeria", "shop", "store", "boutique",
	"market", "mall", "retail", "hotel", "motel", "hostel", "lodging",
	"guest house", "guesthouse", "bed and breakfast", "inn", "resort",
}

// landmarkTerms mark places that rarely change.
var landmarkTerms = []string{
	"monument", "memorial", "landmark", "historic", "park", "garden",
	"museum", "gallery", "castle", "fort", "ruin", "cathedral", "church",
	"mosque", "temple", "synagogue", "shrine", "beach", "mountain", "peak",
	"lake", "waterfall", "nature reserve", "national park", "lighthouse",
	"bridge", "viewpoint", "scenic lookout", "statue", "cemetery",
}

// TTLPolicy maps a resolved category to a cache lifetime.
type TTLPolicy struct {
	Commercial time.Duration
	Landmark   time.Duration
	Default    time.Duration
}

// DefaultTTLPolicy returns the stock durations.
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		Commercial: DefaultCommercialTTL,
		Landmark:   DefaultLandmarkTTL,
		Default:    DefaultUnknownTTL,
	}
}

// ForCategory returns the TTL for a category string. Landmark terms win over
// commercial ones ("museum shop" is still a museum); unknown or empty
// categories get the default.
func (p TTLPolicy) ForCategory(category string) time.Duration {
	c := strings.ToLower(strings.TrimSpace(category))
	if c == "" {
		return p.fallback(p.Default, DefaultUnknownTTL)
	}
	for _, term := range landmarkTerms {
		if strings.Contains(c, term) {
			return p.fallback(p.Landmark, DefaultLandmarkTTL)
		}
	}
	for _, term := range commercialTerms {
		if containsWord(c, term) {
			return p.fallback(p.Commercial, DefaultCommercialTTL)
		}
	}
	return p.fallback(p.Default, DefaultUnknownTTL)
}

func (p TTLPolicy) fallback(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

// containsWord matches term on word boundaries so "bar" does not match
// "barbershop" or "inn" does not match "dinner".
func containsWord(s, term string) bool {
	idx := 0
	for {
		i := strings.Index(s[idx:], term)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(term)
		if (start == 0 || !isWordByte(s[start-1])) && (end == len(s) || !isWordByte(s[end])) {
			return true
		}
		idx = start + 1
		if idx >= len(s) {
			return false
		}
	}
}

func isWordByte(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9') || b >= 0x80
}
