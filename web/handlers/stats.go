package handlers

import (
	"net/http"

	"github.com/scrypster/pinpoint/internal/cache"
	"github.com/scrypster/pinpoint/internal/idempotency"
	"github.com/scrypster/pinpoint/internal/ratelimit"
)

// BreakerStates reports circuit-breaker state per provider.
type BreakerStates interface {
	States() map[string]string
}

// StatsHandler handles statistics endpoint requests.
type StatsHandler struct {
	cache    *cache.Tiered
	breakers BreakerStates
	limiter  *ratelimit.Limiter
	replays  *idempotency.Store
	hub      *WebSocketHub
}

// NewStatsHandler creates a new StatsHandler instance. Any argument may be nil.
func NewStatsHandler(c *cache.Tiered, breakers BreakerStates, limiter *ratelimit.Limiter, replays *idempotency.Store, hub *WebSocketHub) *StatsHandler {
	return &StatsHandler{
		cache:    c,
		breakers: breakers,
		limiter:  limiter,
		replays:  replays,
		hub:      hub,
	}
}

// GetStats handles GET /api/stats - returns runtime statistics.
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{Breakers: map[string]string{}}
	if h.cache != nil {
		resp.Cache = CacheStats{LocalEntries: h.cache.LocalLen(), Remote: h.cache.HasRemote()}
	}
	if h.breakers != nil {
		resp.Breakers = h.breakers.States()
	}
	if h.limiter != nil {
		resp.RateLimiter.Entries = h.limiter.Len()
	}
	if h.replays != nil {
		resp.Idempotency.Entries = h.replays.Len()
	}
	if h.hub != nil {
		resp.WebSocket.Entries = h.hub.ClientCount()
	}
	respondJSON(w, http.StatusOK, resp)
}

// Health handles GET /healthz.
func Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
