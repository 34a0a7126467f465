// Package gateway serves the live map-annotation path: a light, POI-first
// lookup that is called far more often than full pin enrichment.
//
// Nearby POIs and the reverse geocode are fetched concurrently and cached
// independently (POIs churn faster than place names). A POI becomes the
// annotation when it lies within the acceptance radius, which relaxes in
// sparse areas.
package gateway

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/scrypster/pinpoint/internal/cache"
	"github.com/scrypster/pinpoint/internal/logger"
	"github.com/scrypster/pinpoint/pkg/types"
)

// Tuning.
const (
	NearbyRadius     = 1000
	BackfillRadius   = 5000
	AcceptRadius     = 200.0
	SparseRadius     = 300.0
	SparseThreshold  = 3
	BackfillBelow    = 5
	DefaultPOITTL    = 2 * time.Hour
	DefaultGeoTTL    = 6 * time.Hour
	DefaultPrecision = 4
	BackfillBudget   = 3 * time.Second

	nearbyLimit   = 50
	backfillLimit = 10
	maxPlaces     = 25
)

// Source values reported in the response meta.
const (
	SourcePOI     = "poi"
	SourceGeocode = "geocode"
	SourceNone    = "none"
)

// ErrUpstream is returned when every configured provider failed.
var ErrUpstream = errors.New("gateway: all upstream providers failed")

// POISource finds points of interest.
type POISource interface {
	Nearby(ctx context.Context, point types.Coordinate, radius, limit int) ([]types.POI, error)
	Search(ctx context.Context, point types.Coordinate, query string, radius, limit int) ([]types.POI, error)
}

// Geocoder reverse-geocodes a coordinate.
type Geocoder interface {
	Reverse(ctx context.Context, point types.Coordinate) (*types.GeocodeResult, error)
}

// Options tunes the gateway.
type Options struct {
	POITTL     time.Duration
	GeocodeTTL time.Duration

	// BackfillBudget bounds all backfill searches for one lookup together.
	BackfillBudget time.Duration
}

// Request is one annotation. Precision sets the cache-key rounding (2-6
// decimals, default 4).
type Request struct {
	Coordinate types.Coordinate
	Precision  int
}

// POIMetadata describes how the annotation POI was chosen.
type POIMetadata struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Categories       []string `json:"categories,omitempty"`
	Distance         float64  `json:"distance"`
	AcceptanceRadius float64  `json:"acceptance_radius"`
	NearbyCount      int      `json:"nearby_count"`
}

// Result is the gateway's answer before transport metadata is added.
type Result struct {
	Source      string               `json:"-"`
	Cached      bool                 `json:"-"`
	Geocode     *types.GeocodeResult `json:"geocode"`
	Places      []types.POI          `json:"places"`
	POIMetadata *POIMetadata         `json:"poi_metadata,omitempty"`
}

// Gateway annotates coordinates.
type Gateway struct {
	pois  POISource
	geo   Geocoder
	cache *cache.Tiered
	rules *RuleSet
	opts  Options
	log   *zap.SugaredLogger
}

// New creates a Gateway. Either provider may be nil (disabled); rules nil
// means the embedded defaults.
func New(pois POISource, geo Geocoder, c *cache.Tiered, rules *RuleSet, opts Options) *Gateway {
	if opts.POITTL <= 0 {
		opts.POITTL = DefaultPOITTL
	}
	if opts.GeocodeTTL <= 0 {
		opts.GeocodeTTL = DefaultGeoTTL
	}
	if opts.BackfillBudget <= 0 {
		opts.BackfillBudget = BackfillBudget
	}
	if rules == nil {
		rules = &RuleSet{rules: DefaultRules(), log: logger.GetLogger("gateway")}
	}
	return &Gateway{pois: pois, geo: geo, cache: c, rules: rules, opts: opts, log: logger.GetLogger("gateway")}
}

// Annotate returns the filtered nearby places, the reverse geocode, and the
// chosen annotation POI. It fails with ErrUpstream only when no provider
// produced anything.
func (g *Gateway) Annotate(ctx context.Context, req Request) (*Result, error) {
	if err := req.Coordinate.Validate(); err != nil {
		return nil, err
	}
	prec := req.Precision
	if prec < 2 || prec > 6 {
		prec = DefaultPrecision
	}

	var (
		wg                   sync.WaitGroup
		pois                 []types.POI
		geocode              *types.GeocodeResult
		poiErr, geoErr       error
		poiCached, geoCached bool
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		pois, poiCached, poiErr = g.nearby(ctx, req.Coordinate, prec)
	}()
	go func() {
		defer wg.Done()
		geocode, geoCached, geoErr = g.reverse(ctx, req.Coordinate, prec)
	}()
	wg.Wait()

	if poiErr != nil && geoErr != nil {
		g.log.Warnw("annotation failed", "point", req.Coordinate.String(), "poi_error", poiErr, "geocode_error", geoErr)
		return nil, ErrUpstream
	}

	rules := g.rules.Current()
	places := make([]types.POI, 0, len(pois))
	within := 0
	for _, p := range pois {
		// Cached lists are shared by the whole cell; distances are per point.
		if !p.Coordinate.IsZero() {
			p.Distance = req.Coordinate.DistanceTo(p.Coordinate)
		}
		if p.Distance <= NearbyRadius {
			within++
		}
		if rules.Accepts(p) {
			places = append(places, p)
		}
	}
	sort.SliceStable(places, func(i, j int) bool { return places[i].Distance < places[j].Distance })
	if len(places) > maxPlaces {
		places = places[:maxPlaces]
	}

	res := &Result{
		Geocode: geocode,
		Places:  places,
		Cached:  (poiErr != nil || poiCached) && (geoErr != nil || geoCached),
		Source:  SourceNone,
	}

	radius := AcceptanceRadius(within)
	if len(places) > 0 && places[0].Distance <= radius {
		best := places[0]
		res.Source = SourcePOI
		res.POIMetadata = &POIMetadata{
			ID:               best.ID,
			Name:             best.Name,
			Categories:       best.Categories,
			Distance:         best.Distance,
			AcceptanceRadius: radius,
			NearbyCount:      within,
		}
	} else if geocode != nil {
		res.Source = SourceGeocode
	}
	return res, nil
}

// AcceptanceRadius is 200 m, relaxed to 300 m when fewer than three POIs lie
// within 1 km.
func AcceptanceRadius(poisWithin1km int) float64 {
	if poisWithin1km < SparseThreshold {
		return SparseRadius
	}
	return AcceptRadius
}

// nearby returns unfiltered POIs from cache or the provider, backfilling
// sparse results with broadened searches.
func (g *Gateway) nearby(ctx context.Context, point types.Coordinate, prec int) ([]types.POI, bool, error) {
	if g.pois == nil {
		return nil, false, errors.New("gateway: POI provider disabled")
	}
	key := cache.POIKey(point, prec)
	if g.cache != nil {
		var cached []types.POI
		if g.cache.GetJSON(ctx, key, &cached) {
			return cached, true, nil
		}
	}

	pois, err := g.pois.Nearby(ctx, point, NearbyRadius, nearbyLimit)
	if err != nil {
		return nil, false, err
	}
	if len(pois) < BackfillBelow {
		pois = g.backfill(ctx, point, pois)
	}

	if g.cache != nil {
		if err := g.cache.SetJSON(ctx, key, pois, g.opts.POITTL); err != nil {
			g.log.Warnw("failed to cache POIs", "key", key, "error", err)
		}
	}
	return pois, false, nil
}

// backfill runs one proximity-biased search per backfill term, deduplicating
// by id, until maxPlaces candidates are known or the budget runs out. Search
// failures are logged and skipped.
func (g *Gateway) backfill(ctx context.Context, point types.Coordinate, pois []types.POI) []types.POI {
	ctx, cancel := context.WithTimeout(ctx, g.opts.BackfillBudget)
	defer cancel()

	seen := make(map[string]bool, len(pois))
	for _, p := range pois {
		seen[p.ID] = true
	}
	for _, term := range g.rules.Current().BackfillTerms {
		if len(pois) >= maxPlaces {
			break
		}
		if ctx.Err() != nil {
			g.log.Debugw("backfill budget exhausted", "term", term, "found", len(pois))
			break
		}
		extra, err := g.pois.Search(ctx, point, term, BackfillRadius, backfillLimit)
		if err != nil {
			g.log.Debugw("backfill search failed", "term", term, "error", err)
			continue
		}
		for _, p := range extra {
			if p.ID == "" || seen[p.ID] {
				continue
			}
			seen[p.ID] = true
			pois = append(pois, p)
		}
	}
	return pois
}

func (g *Gateway) reverse(ctx context.Context, point types.Coordinate, prec int) (*types.GeocodeResult, bool, error) {
	if g.geo == nil {
		return nil, false, errors.New("gateway: geocoder disabled")
	}
	key := cache.GeocodeKey(point, prec)
	if g.cache != nil {
		var cached types.GeocodeResult
		if g.cache.GetJSON(ctx, key, &cached) {
			return &cached, true, nil
		}
	}

	res, err := g.geo.Reverse(ctx, point)
	if err != nil {
		return nil, false, err
	}
	if g.cache != nil {
		if err := g.cache.SetJSON(ctx, key, res, g.opts.GeocodeTTL); err != nil {
			g.log.Warnw("failed to cache geocode", "key", key, "error", err)
		}
	}
	return res, false, nil
}
