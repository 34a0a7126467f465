// cmd/pinpoint-server runs the Pinpoint HTTP API: pin enrichment, the
// intelligence gateway, hosted media, stats, metrics and the pin event
// stream.
//
// Startup sequence:
//  1. Load configuration from the environment (and an optional .env file).
//  2. Initialize the structured logger.
//  3. Wire caches, providers and the enrichment engine.
//  4. Start the HTTP server and forward enriched pins to WebSocket clients.
//  5. On SIGINT / SIGTERM, drain the server and close the cache.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scrypster/pinpoint/internal/app"
	"github.com/scrypster/pinpoint/internal/config"
	"github.com/scrypster/pinpoint/internal/logger"
	"github.com/scrypster/pinpoint/internal/server"
)

// drainDelay is how long shutdown waits for in-flight requests.
const drainDelay = 5 * time.Second

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "pinpoint-server: failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		fmt.Fprintf(os.Stderr, "pinpoint-server: failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.GetLogger("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, addr, err := startServer(ctx, cfg)
	if err != nil {
		log.Errorw("failed to start", "error", err)
		logger.Sync()
		os.Exit(1)
	}
	log.Infow("pinpoint API running", "addr", "http://"+addr)

	<-ctx.Done()
	log.Infow("shutting down gracefully")
	// The server drains in-flight requests for up to five seconds before the
	// cache underneath them is closed.
	time.Sleep(drainDelay)

	if err := a.Close(); err != nil {
		log.Warnw("error during shutdown", "error", err)
	}
}

// startServer wires the application and starts serving until ctx ends.
func startServer(ctx context.Context, cfg *config.Config) (*app.App, string, error) {
	a, err := app.New(cfg)
	if err != nil {
		return nil, "", err
	}

	addr, hub, err := server.Start(ctx, cfg, server.Deps{
		Enricher:  a.Engine,
		Annotator: a.Gateway,
		Cache:     a.Cache,
		Breakers:  a.Fetcher.Breakers(),
		MediaDir:  a.Media.Dir(),
	})
	if err != nil {
		_ = a.Close()
		return nil, "", err
	}
	if hub != nil {
		a.Engine.OnEnriched(hub.PublishPin)
	}
	return a, addr, nil
}
