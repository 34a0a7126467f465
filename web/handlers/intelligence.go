package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/scrypster/pinpoint/internal/gateway"
	"github.com/scrypster/pinpoint/internal/idempotency"
	"github.com/scrypster/pinpoint/internal/logger"
	"github.com/scrypster/pinpoint/internal/ratelimit"
	"github.com/scrypster/pinpoint/internal/telemetry"
	"github.com/scrypster/pinpoint/pkg/types"
)

// IdempotencyHeader carries the client-supplied replay key.
const IdempotencyHeader = "X-Idempotency-Key"

// Precision bounds for the gateway cache key.
const (
	MinPrecision = 2
	MaxPrecision = 6
)

// Annotator annotates a coordinate with nearby places and a geocode.
type Annotator interface {
	Annotate(ctx context.Context, req gateway.Request) (*gateway.Result, error)
}

// IntelligenceHandler serves POST /api/intelligence behind the per-client
// limiter and the idempotency store.
type IntelligenceHandler struct {
	annotator Annotator
	limiter   *ratelimit.Limiter
	replays   *idempotency.Store
	log       *zap.SugaredLogger
}

// NewIntelligenceHandler creates a new IntelligenceHandler instance.
func NewIntelligenceHandler(annotator Annotator, limiter *ratelimit.Limiter, replays *idempotency.Store) *IntelligenceHandler {
	return &IntelligenceHandler{
		annotator: annotator,
		limiter:   limiter,
		replays:   replays,
		log:       logger.GetLogger("handlers"),
	}
}

// Annotate handles POST /api/intelligence.
//
// A key seen within the idempotency window replays the stored bytes without
// consuming quota or calling any provider. A retry that arrives while the
// first request is still running waits for it. Only 200 responses are
// stored; any other outcome frees the key for the next retry.
func (h *IntelligenceHandler) Annotate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	client := h.limiter.ClientID(r)

	var key string
	if raw := r.Header.Get(IdempotencyHeader); raw != "" {
		k, err := idempotency.NormalizeKey(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid idempotency key", err)
			return
		}
		key = k
		rec, replay, release, err := h.replays.Begin(r.Context(), client, key)
		if err != nil {
			respondError(w, http.StatusRequestTimeout, "request cancelled while awaiting an identical request", err)
			return
		}
		if replay {
			telemetry.IdempotentReplays.Inc()
			w.Header().Set("Content-Type", rec.ContentType)
			w.Header().Set("Idempotent-Replayed", "true")
			w.WriteHeader(rec.Status)
			_, _ = w.Write(rec.Body)
			return
		}
		defer release()
	}

	var req IntelligenceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	point, err := req.coordinate()
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid coordinate", err)
		return
	}
	precision := types.DefaultKeyPrecision
	if req.Precision != nil {
		precision = *req.Precision
		if precision < MinPrecision || precision > MaxPrecision {
			respondError(w, http.StatusBadRequest, "invalid precision",
				errors.New("precision must be between 2 and 6"))
			return
		}
	}

	decision := h.limiter.Allow(client)
	if !decision.Allowed {
		telemetry.RateLimited.Inc()
		retryAfter := int(math.Ceil(decision.RetryAfter.Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		respondJSON(w, http.StatusTooManyRequests, ErrorResponse{
			Error: "rate limit exceeded",
			Code:  "RATE_LIMITED",
			Details: map[string]interface{}{
				"minuteRemaining":   decision.MinuteRemaining,
				"hourRemaining":     decision.HourRemaining,
				"retryAfterSeconds": retryAfter,
			},
		})
		return
	}

	res, err := h.annotator.Annotate(r.Context(), gateway.Request{Coordinate: point, Precision: precision})
	if err != nil {
		switch {
		case isValidationError(err):
			respondError(w, http.StatusBadRequest, "invalid coordinate", err)
		case errors.Is(err, gateway.ErrUpstream):
			h.log.Warnw("intelligence upstream exhausted", "point", point.String(), "error", err)
			respondError(w, http.StatusBadGateway, "upstream providers unavailable", nil)
		default:
			h.log.Errorw("intelligence request failed", "point", point.String(), "error", err)
			respondError(w, http.StatusInternalServerError, "internal error", nil)
		}
		return
	}

	places := res.Places
	if places == nil {
		places = []types.POI{}
	}
	body, err := json.Marshal(IntelligenceResponse{
		Meta: IntelligenceMeta{
			Source: res.Source,
			Cached: res.Cached,
			Rate: RateMeta{
				MinuteRemaining: decision.MinuteRemaining,
				HourRemaining:   decision.HourRemaining,
			},
			DurationMS: time.Since(start).Milliseconds(),
			RequestID:  uuid.NewString(),
		},
		Geocode:     res.Geocode,
		Places:      places,
		POIMetadata: res.POIMetadata,
	})
	if err != nil {
		h.log.Errorw("failed to encode intelligence response", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error", nil)
		return
	}

	if key != "" {
		h.replays.Save(client, key, http.StatusOK, "application/json", body)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
