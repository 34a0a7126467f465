// Package server provides HTTP server initialization and lifecycle management
// for the Pinpoint API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/cors"

	"github.com/scrypster/pinpoint/internal/cache"
	"github.com/scrypster/pinpoint/internal/config"
	"github.com/scrypster/pinpoint/internal/idempotency"
	"github.com/scrypster/pinpoint/internal/logger"
	"github.com/scrypster/pinpoint/internal/media"
	"github.com/scrypster/pinpoint/internal/ratelimit"
	"github.com/scrypster/pinpoint/internal/telemetry"
	"github.com/scrypster/pinpoint/web/handlers"
)

// Deps are the services the HTTP surface exposes. Enricher and Annotator may
// be nil, which leaves their route unregistered.
type Deps struct {
	Enricher  handlers.Enricher
	Annotator handlers.Annotator
	Cache     *cache.Tiered
	Breakers  handlers.BreakerStates
	Limiter   *ratelimit.Limiter
	Replays   *idempotency.Store
	// MediaDir is served under media.RoutePrefix when set.
	MediaDir string
}

// securityHeadersMiddleware adds security headers to all HTTP responses.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

func newLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(ratelimit.Config{
		PerMinute:      cfg.Limits.PerMinute,
		PerHour:        cfg.Limits.PerHour,
		TrustedProxies: cfg.Server.TrustedProxies,
	})
}

// NewHandler builds the complete middleware-wrapped handler. hub may be nil.
func NewHandler(cfg *config.Config, deps Deps, hub *handlers.WebSocketHub) http.Handler {
	if deps.Limiter == nil {
		deps.Limiter = newLimiter(cfg)
	}
	if deps.Replays == nil {
		deps.Replays = idempotency.New(cfg.Limits.IdempotencyWindow)
	}

	mux := http.NewServeMux()

	if deps.Enricher != nil {
		enrichHandler := handlers.NewEnrichHandler(deps.Enricher)
		mux.Handle("POST /api/enrich", telemetry.Middleware("enrich", http.HandlerFunc(enrichHandler.Enrich)))
	}
	if deps.Annotator != nil {
		intelligenceHandler := handlers.NewIntelligenceHandler(deps.Annotator, deps.Limiter, deps.Replays)
		mux.Handle("POST /api/intelligence", telemetry.Middleware("intelligence", http.HandlerFunc(intelligenceHandler.Annotate)))
	}

	statsHandler := handlers.NewStatsHandler(deps.Cache, deps.Breakers, deps.Limiter, deps.Replays, hub)
	mux.Handle("GET /api/stats", telemetry.Middleware("stats", http.HandlerFunc(statsHandler.GetStats)))

	// Health endpoint, used by load balancers and monitoring
	mux.HandleFunc("GET /healthz", handlers.Health)

	if cfg.Features.EnableMetrics {
		mux.Handle("GET /metrics", telemetry.Handler())
	}

	// WebSocket endpoint (origin validation handles security). Not wrapped in
	// telemetry: the recorder cannot hijack the connection.
	if cfg.Features.EnableWebSocket && hub != nil {
		mux.Handle("GET /ws", hub)
	}

	if deps.MediaDir != "" {
		fs := http.FileServer(http.Dir(deps.MediaDir))
		mux.Handle("GET "+media.RoutePrefix, http.StripPrefix(media.RoutePrefix, fs))
	}

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Content-Length", handlers.IdempotencyHeader},
		ExposedHeaders: []string{"Retry-After", "Idempotent-Replayed"},
	})

	// Wrap entire server with the flood guard, then CORS, then security headers
	handler := handlers.RateLimitMiddleware(mux, handlers.NewRateLimiter(cfg.Server.GlobalRPS, cfg.Server.GlobalBurst))
	handler = c.Handler(handler)
	return securityHeadersMiddleware(handler)
}

// Start initializes and starts the HTTP server.
// Returns the actual address being listened on (useful for testing with port 0)
// and the WebSocketHub for wiring enrichment event broadcasts. The server and
// its background sweeper stop when ctx is cancelled.
func Start(ctx context.Context, cfg *config.Config, deps Deps) (string, *handlers.WebSocketHub, error) {
	log := logger.GetLogger("server")

	if deps.Limiter == nil {
		deps.Limiter = newLimiter(cfg)
	}
	if deps.Replays == nil {
		deps.Replays = idempotency.New(cfg.Limits.IdempotencyWindow)
	}

	var wsHub *handlers.WebSocketHub
	if cfg.Features.EnableWebSocket {
		wsHub = handlers.NewWebSocketHub(cfg.Server.AllowedOrigins)
		go wsHub.Run()
	}

	idle := cfg.Server.IdleTimeout
	if idle <= 0 {
		idle = 120 * time.Second
	}

	// Create server with security timeouts. Writes allow for a full
	// enrichment run.
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           NewHandler(cfg, deps, wsHub),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       idle,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		if wsHub != nil {
			wsHub.Stop()
		}
		return "", nil, fmt.Errorf("server: listen on %s: %w", addr, err)
	}

	actualAddr := listener.Addr().String()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("server error", "error", err)
		}
	}()

	go sweep(ctx, cfg.Limits.SweepInterval, deps.Limiter, deps.Replays)

	// Handle graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warnw("server shutdown error", "error", err)
		}
		if wsHub != nil {
			wsHub.Stop()
		}
	}()

	log.Infow("server listening", "addr", actualAddr)
	return actualAddr, wsHub, nil
}

// sweep periodically drops stale rate-limit and idempotency records. Cache
// entries are not swept; they expire lazily on read.
func sweep(ctx context.Context, interval time.Duration, limiter *ratelimit.Limiter, replays *idempotency.Store) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	log := logger.GetLogger("sweeper")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			clients := limiter.Sweep()
			records := replays.Sweep()
			if clients > 0 || records > 0 {
				log.Debugw("swept stale records", "rate_limit_clients", clients, "idempotency_records", records)
			}
		}
	}
}
