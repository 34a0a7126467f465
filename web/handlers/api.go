package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/scrypster/pinpoint/internal/logger"
	"github.com/scrypster/pinpoint/pkg/types"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// coordinate validates a decoded coordinate.
func (c CoordinateRequest) coordinate() (types.Coordinate, error) {
	if c.Lat == nil || c.Lng == nil {
		return types.Coordinate{}, fmt.Errorf("%w: lat and lng are required", types.ErrInvalidCoordinate)
	}
	point := types.Coordinate{Lat: *c.Lat, Lng: *c.Lng}
	if err := point.Validate(); err != nil {
		return types.Coordinate{}, err
	}
	return point, nil
}

// isValidationError reports whether err should surface as a 400.
func isValidationError(err error) bool {
	return errors.Is(err, types.ErrInvalidCoordinate)
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already sent; nothing more to tell the client.
		logger.GetLogger("handlers").Warnw("failed to encode JSON response", "error", err)
	}
}

// respondError writes an error response with the given status code.
func respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	errResp := ErrorResponse{
		Error: message,
		Code:  http.StatusText(statusCode),
	}

	if err != nil {
		errResp.Details = map[string]interface{}{
			"error": err.Error(),
		}
	}

	respondJSON(w, statusCode, errResp)
}
