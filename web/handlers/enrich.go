package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/scrypster/pinpoint/internal/engine"
	"github.com/scrypster/pinpoint/internal/logger"
)

// Enricher produces enriched pins.
type Enricher interface {
	Enrich(ctx context.Context, req engine.Request) (*engine.Result, error)
}

// EnrichHandler serves POST /api/enrich.
type EnrichHandler struct {
	enricher Enricher
	log      *zap.SugaredLogger
}

// NewEnrichHandler creates a new EnrichHandler instance.
func NewEnrichHandler(enricher Enricher) *EnrichHandler {
	return &EnrichHandler{enricher: enricher, log: logger.GetLogger("handlers")}
}

// Enrich handles POST /api/enrich - resolves and enriches one coordinate.
func (h *EnrichHandler) Enrich(w http.ResponseWriter, r *http.Request) {
	var req EnrichRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	point, err := req.coordinate()
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid coordinate", err)
		return
	}

	res, err := h.enricher.Enrich(r.Context(), engine.Request{Coordinate: point, Hint: req.UserHintName})
	if err != nil {
		if isValidationError(err) {
			respondError(w, http.StatusBadRequest, "invalid coordinate", err)
			return
		}
		h.log.Errorw("enrichment failed", "point", point.String(), "error", err)
		respondError(w, http.StatusInternalServerError, "enrichment failed", nil)
		return
	}

	respondJSON(w, http.StatusOK, EnrichResponse{Status: "ok", Data: res.Pin})
}
