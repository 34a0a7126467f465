// Package app assembles Pinpoint's services from configuration. Both the
// HTTP server and the command-line tool build on it.
package app

import (
	"fmt"

	"github.com/scrypster/pinpoint/internal/cache"
	"github.com/scrypster/pinpoint/internal/config"
	"github.com/scrypster/pinpoint/internal/engine"
	"github.com/scrypster/pinpoint/internal/fetcher"
	"github.com/scrypster/pinpoint/internal/gateway"
	"github.com/scrypster/pinpoint/internal/knowledge"
	"github.com/scrypster/pinpoint/internal/logger"
	"github.com/scrypster/pinpoint/internal/media"
	"github.com/scrypster/pinpoint/internal/preview"
	"github.com/scrypster/pinpoint/internal/providers/foursquare"
	"github.com/scrypster/pinpoint/internal/providers/mapbox"
	"github.com/scrypster/pinpoint/internal/providers/wikidata"
	"github.com/scrypster/pinpoint/internal/resolver"
	"github.com/scrypster/pinpoint/internal/storage"
)

// App holds the wired services.
type App struct {
	Config   *config.Config
	Cache    *cache.Tiered
	Fetcher  *fetcher.Fetcher
	Resolver *resolver.Resolver
	Engine   *engine.Engine
	Gateway  *gateway.Gateway
	Rules    *gateway.RuleSet
	Media    *media.FileHost
}

// New wires every service. A provider without credentials is left out, and
// an unreachable remote cache degrades to local-only caching.
func New(cfg *config.Config) (*App, error) {
	log := logger.GetLogger("app")

	opts := []cache.Option{}
	remote, err := storage.OpenRemote(cfg.Cache.RemoteURL)
	switch {
	case err != nil:
		log.Warnw("remote cache unavailable, using local cache only", "error", err)
	case remote != nil:
		opts = append(opts, cache.WithRemote(remote))
	}
	c, err := cache.NewTiered(cfg.Cache.LocalSize, opts...)
	if err != nil {
		return nil, fmt.Errorf("app: create cache: %w", err)
	}

	f := fetcher.New(fetcher.Options{
		UserAgent:        cfg.Providers.UserAgent,
		DefaultTimeout:   cfg.Providers.Timeout,
		RetryDelay:       cfg.Providers.RetryDelay,
		BreakerProviders: []string{foursquare.Provider, mapbox.Provider, wikidata.Provider},
	})

	// Nil interfaces, not typed nils, mark a disabled provider.
	var (
		resolverPOIs resolver.POISearcher
		resolverGeo  resolver.Geocoder
		gatewayPOIs  gateway.POISource
		gatewayGeo   gateway.Geocoder
	)
	if fsq := foursquare.New(f, cfg.Providers.FoursquareBaseURL, cfg.Providers.FoursquareAPIKey); fsq.Enabled() {
		resolverPOIs, gatewayPOIs = fsq, fsq
	} else {
		log.Warnw("foursquare disabled: no API key")
	}
	if mb := mapbox.New(f, cfg.Providers.MapboxBaseURL, cfg.Providers.MapboxToken); mb.Enabled() {
		resolverGeo, gatewayGeo = mb, mb
	} else {
		log.Warnw("mapbox disabled: no access token")
	}

	res := resolver.New(resolverPOIs, resolverGeo, resolver.Options{
		SearchRadius:        cfg.Resolver.SearchRadius,
		MaxHintDistance:     cfg.Resolver.MaxHintDistance,
		AcceptanceThreshold: cfg.Resolver.AcceptanceThreshold,
	})

	wd := wikidata.New(f, cfg.Providers.WikidataBaseURL, cfg.Providers.WikipediaBaseURL)
	matcher := knowledge.NewMatcher(wd, c)

	previews := preview.New(f, c, preview.Options{
		WebsiteTimeout:  cfg.Preview.WebsiteTimeout,
		SocialTimeout:   cfg.Preview.SocialTimeout,
		WebsiteMaxBytes: cfg.Preview.WebsiteMaxBytes,
		SocialMaxBytes:  cfg.Preview.SocialMaxBytes,
		DomainInterval:  cfg.Preview.DomainInterval,
	})

	host, err := media.NewFileHost(f, media.FileHostOptions{
		Dir:           cfg.Media.DataPath,
		PublicBaseURL: cfg.Server.PublicBaseURL,
		MaxBytes:      cfg.Media.MaxBytes,
		Timeout:       cfg.Media.Timeout,
	})
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("app: media host: %w", err)
	}

	eng := engine.New(c, res, matcher, previews, media.NewResolver(host), engine.Config{
		EnrichBudget: cfg.Media.EnrichBudget,
		TTL: cache.TTLPolicy{
			Commercial: cfg.Cache.CommercialTTL,
			Landmark:   cfg.Cache.LandmarkTTL,
			Default:    cfg.Cache.DefaultTTL,
		},
	})

	rules, err := gateway.NewRuleSet(cfg.Gateway.CategoryRulesPath)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("app: category rules: %w", err)
	}
	if err := rules.Watch(); err != nil {
		log.Warnw("category rules will not hot-reload", "path", cfg.Gateway.CategoryRulesPath, "error", err)
	}

	gw := gateway.New(gatewayPOIs, gatewayGeo, c, rules, gateway.Options{
		POITTL:     cfg.Gateway.POITTL,
		GeocodeTTL: cfg.Gateway.GeocodeTTL,
	})

	log.Infow("services ready",
		"remote_cache", c.HasRemote(),
		"foursquare", gatewayPOIs != nil,
		"mapbox", gatewayGeo != nil,
		"media_dir", host.Dir(),
	)

	return &App{
		Config:   cfg,
		Cache:    c,
		Fetcher:  f,
		Resolver: res,
		Engine:   eng,
		Gateway:  gw,
		Rules:    rules,
		Media:    host,
	}, nil
}

// Close stops the rule watcher and releases the cache.
func (a *App) Close() error {
	a.Rules.Close()
	if err := a.Cache.Close(); err != nil {
		return fmt.Errorf("app: close cache: %w", err)
	}
	return nil
}
