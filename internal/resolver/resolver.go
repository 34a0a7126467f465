// Package resolver turns a coordinate and an optional user hint into a
// scored PlaceIdentity using reverse geocoding and nearby-POI search.
//
// Provider failures never surface as errors: the resolver degrades to a
// geocode-only identity and finally to the formatted coordinate. The only
// error Resolve returns is for an invalid coordinate.
package resolver

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/scrypster/pinpoint/internal/logger"
	"github.com/scrypster/pinpoint/internal/similarity"
	"github.com/scrypster/pinpoint/pkg/types"
)

// Defaults.
const (
	DefaultSearchRadius        = 150.0
	DefaultMaxHintDistance     = 350.0
	DefaultAcceptanceThreshold = 0.55

	nearbyLimit = 20
	searchLimit = 10
)

// Confidence levels assigned to each resolution path.
const (
	ConfidencePOIWithWebsite = 0.85
	ConfidencePOI            = 0.7
	ConfidenceNamedFeature   = 0.3
	ConfidenceAddress        = 0.2
)

// POISearcher finds points of interest around a coordinate.
type POISearcher interface {
	Nearby(ctx context.Context, point types.Coordinate, radius, limit int) ([]types.POI, error)
	Search(ctx context.Context, point types.Coordinate, query string, radius, limit int) ([]types.POI, error)
}

// Geocoder reverse-geocodes a coordinate.
type Geocoder interface {
	Reverse(ctx context.Context, point types.Coordinate) (*types.GeocodeResult, error)
}

// Options tunes resolution.
type Options struct {
	SearchRadius        float64
	MaxHintDistance     float64
	AcceptanceThreshold float64
}

// Request is one resolution. Zero overrides use the resolver's options.
type Request struct {
	Coordinate      types.Coordinate
	Hint            string
	Radius          float64
	MaxHintDistance float64
}

// Resolver resolves place identities.
type Resolver struct {
	pois POISearcher
	geo  Geocoder
	opts Options
	log  *zap.SugaredLogger
}

// New creates a Resolver. Either provider may be nil (disabled).
func New(pois POISearcher, geo Geocoder, opts Options) *Resolver {
	if opts.SearchRadius <= 0 {
		opts.SearchRadius = DefaultSearchRadius
	}
	if opts.MaxHintDistance <= 0 {
		opts.MaxHintDistance = DefaultMaxHintDistance
	}
	if opts.AcceptanceThreshold <= 0 {
		opts.AcceptanceThreshold = DefaultAcceptanceThreshold
	}
	return &Resolver{pois: pois, geo: geo, opts: opts, log: logger.GetLogger("resolver")}
}

// Resolve returns the best identity for req.Coordinate.
func (r *Resolver) Resolve(ctx context.Context, req Request) (types.PlaceIdentity, error) {
	if err := req.Coordinate.Validate(); err != nil {
		return types.PlaceIdentity{}, err
	}
	radius := req.Radius
	if radius <= 0 {
		radius = r.opts.SearchRadius
	}
	maxHint := req.MaxHintDistance
	if maxHint <= 0 {
		maxHint = r.opts.MaxHintDistance
	}

	geocode, nearby := r.lookup(ctx, req.Coordinate, radius)

	useHint := UsefulHint(req.Hint)
	picked, _, ok := pickBest(nearby, radius, req.Hint, useHint, r.opts.AcceptanceThreshold)

	if useHint && (!ok || !similarity.FuzzyMatch(picked.Name, req.Hint)) {
		if match, found := r.searchHint(ctx, req.Coordinate, req.Hint, maxHint); found {
			picked, ok = match, true
		}
	}

	if ok {
		return identityFromPOI(req.Coordinate, picked, geocode), nil
	}
	return identityFromGeocode(req.Coordinate, geocode), nil
}

// lookup runs reverse geocoding and nearby search concurrently. Failures are
// logged and yield nil results.
func (r *Resolver) lookup(ctx context.Context, point types.Coordinate, radius float64) (*types.GeocodeResult, []types.POI) {
	var (
		wg      sync.WaitGroup
		geocode *types.GeocodeResult
		nearby  []types.POI
	)

	if r.geo != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g, err := r.geo.Reverse(ctx, point)
			if err != nil {
				r.log.Warnw("reverse geocode failed", "point", point.String(), "error", err)
				return
			}
			geocode = g
		}()
	}

	if r.pois != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := r.pois.Nearby(ctx, point, int(radius), nearbyLimit)
			if err != nil {
				r.log.Warnw("nearby search failed", "point", point.String(), "error", err)
				return
			}
			nearby = p
		}()
	}

	wg.Wait()
	return geocode, nearby
}

// searchHint text-searches for the hint and returns the nearest result that
// fuzzy-matches it within maxDistance meters.
func (r *Resolver) searchHint(ctx context.Context, point types.Coordinate, hint string, maxDistance float64) (types.POI, bool) {
	if r.pois == nil {
		return types.POI{}, false
	}
	results, err := r.pois.Search(ctx, point, hint, int(maxDistance), searchLimit)
	if err != nil {
		r.log.Warnw("hint search failed", "hint", hint, "error", err)
		return types.POI{}, false
	}

	var best types.POI
	found := false
	for _, p := range results {
		d := point.DistanceTo(p.Coordinate)
		if d > maxDistance || !similarity.FuzzyMatch(p.Name, hint) {
			continue
		}
		p.Distance = d
		if !found || d < best.Distance {
			best, found = p, true
		}
	}
	return best, found
}

func identityFromPOI(point types.Coordinate, poi types.POI, geocode *types.GeocodeResult) types.PlaceIdentity {
	id := types.PlaceIdentity{
		Coordinate: point,
		Name:       poi.Name,
		Category:   poi.PrimaryCategory(),
		Address:    poi.Address,
		Locality:   poi.Locality,
		Region:     poi.Region,
		Country:    poi.Country,
		Website:    poi.Website,
		SocialURL:  poi.SocialURL,
		Phone:      poi.Phone,
		Source:     types.SourceFoursquare,
		SourceID:   poi.ID,
		Confidence: ConfidencePOI,
	}
	if poi.Website != "" {
		id.Confidence = ConfidencePOIWithWebsite
	}
	if geocode != nil {
		if id.Locality == "" {
			id.Locality = geocode.Locality
		}
		if id.Region == "" {
			id.Region = geocode.Region
		}
		if id.Country == "" {
			id.Country = geocode.Country
		}
		if id.Address == "" && geocode.FeatureType == "address" {
			id.Address = geocode.PlaceName
		}
	}
	id.CanonicalQuery = types.CanonicalQueryFor(id.Name, id.Locality)
	return id
}

func identityFromGeocode(point types.Coordinate, geocode *types.GeocodeResult) types.PlaceIdentity {
	if geocode == nil {
		return types.FallbackIdentity(point)
	}
	name := geocode.PlaceName
	if name == "" {
		name = geocode.FormattedAddress
	}
	if name == "" {
		return types.FallbackIdentity(point)
	}

	id := types.PlaceIdentity{
		Coordinate: point,
		Name:       name,
		Address:    geocode.FormattedAddress,
		Locality:   geocode.Locality,
		Region:     geocode.Region,
		Country:    geocode.Country,
		Source:     types.SourceMapbox,
		Confidence: ConfidenceAddress,
	}
	if geocode.IsNamedFeature() {
		id.Confidence = ConfidenceNamedFeature
	}
	id.CanonicalQuery = types.CanonicalQueryFor(id.Name, id.Locality)
	return id
}
