// Package handlers provides the HTTP handlers and middleware for the Pinpoint
// API: pin enrichment, the intelligence gateway, stats and the event stream.
package handlers

import (
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/scrypster/pinpoint/internal/telemetry"
)

// RateLimiter wraps a rate.Limiter for HTTP middleware. It is a process-wide
// flood guard; per-client quotas live in internal/ratelimit.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a new rate limiter.
// reqPerSec is the sustained rate, burst is the maximum burst size. A
// non-positive rate disables the guard.
func NewRateLimiter(reqPerSec float64, burst int) *RateLimiter {
	if reqPerSec <= 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Every(time.Duration(float64(time.Second)/reqPerSec)), burst),
	}
}

// RateLimitMiddleware enforces rate limiting on HTTP requests.
func RateLimitMiddleware(next http.Handler, rl *RateLimiter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.limiter.Allow() {
			telemetry.RateLimited.Inc()
			w.Header().Set("Retry-After", "1")
			respondJSON(w, http.StatusTooManyRequests, ErrorResponse{
				Error: "server busy",
				Code:  "RATE_LIMITED",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
