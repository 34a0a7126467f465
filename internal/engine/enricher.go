// Package engine composes resolution, knowledge-graph matching, page
// previews and image hosting into one enriched pin per coordinate, behind the
// pin cache.
//
// Enrichment runs on a context detached from the caller and bounded by
// Config.EnrichBudget: a client that disconnects mid-request does not waste
// the provider calls already in flight, and the next request for the same
// coordinate is served from cache.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/scrypster/pinpoint/internal/cache"
	"github.com/scrypster/pinpoint/internal/knowledge"
	"github.com/scrypster/pinpoint/internal/logger"
	"github.com/scrypster/pinpoint/internal/media"
	"github.com/scrypster/pinpoint/internal/preview"
	"github.com/scrypster/pinpoint/internal/resolver"
	"github.com/scrypster/pinpoint/internal/telemetry"
	"github.com/scrypster/pinpoint/pkg/types"
)

// DefaultEnrichBudget bounds one uncached enrichment run.
const DefaultEnrichBudget = 25 * time.Second

// PlaceResolver resolves a coordinate and hint to an identity.
type PlaceResolver interface {
	Resolve(ctx context.Context, req resolver.Request) (types.PlaceIdentity, error)
}

// KnowledgeMatcher finds a strict knowledge-graph match for an identity.
type KnowledgeMatcher interface {
	Match(ctx context.Context, id types.PlaceIdentity) (*knowledge.Match, error)
}

// PreviewFetcher fetches one website or social page.
type PreviewFetcher interface {
	Website(ctx context.Context, url string) (*preview.Preview, error)
	Social(ctx context.Context, url string) (*preview.Preview, error)
}

// ImageResolver hosts ordered image candidates.
type ImageResolver interface {
	Resolve(ctx context.Context, candidates []media.Candidate) []types.ImageRecord
}

// Config tunes the engine.
type Config struct {
	EnrichBudget time.Duration
	TTL          cache.TTLPolicy
}

// Request is one enrichment.
type Request struct {
	Coordinate types.Coordinate
	Hint       string
}

// Result is an enriched pin and whether it came from cache.
type Result struct {
	Pin      types.EnrichedPin
	Cached   bool
	Decision knowledge.Decision
}

// Engine produces enriched pins. Any collaborator except the cache may be
// nil, which disables that step.
type Engine struct {
	cache    *cache.Tiered
	resolver PlaceResolver
	kg       KnowledgeMatcher
	previews PreviewFetcher
	images   ImageResolver
	cfg      Config
	now      func() time.Time
	log      *zap.SugaredLogger

	mu         sync.RWMutex
	onEnriched []func(types.EnrichedPin)
}

// New creates an Engine.
func New(c *cache.Tiered, r PlaceResolver, kg KnowledgeMatcher, previews PreviewFetcher, images ImageResolver, cfg Config) *Engine {
	if cfg.EnrichBudget <= 0 {
		cfg.EnrichBudget = DefaultEnrichBudget
	}
	return &Engine{
		cache:    c,
		resolver: r,
		kg:       kg,
		previews: previews,
		images:   images,
		cfg:      cfg,
		now:      time.Now,
		log:      logger.GetLogger("engine"),
	}
}

// OnEnriched registers fn to run after every uncached enrichment.
func (e *Engine) OnEnriched(fn func(types.EnrichedPin)) {
	e.mu.Lock()
	e.onEnriched = append(e.onEnriched, fn)
	e.mu.Unlock()
}

// Resolve returns the place identity for req without enrichment.
func (e *Engine) Resolve(ctx context.Context, req Request) (types.PlaceIdentity, error) {
	if e.resolver == nil {
		if err := req.Coordinate.Validate(); err != nil {
			return types.PlaceIdentity{}, err
		}
		return types.FallbackIdentity(req.Coordinate), nil
	}
	return e.resolver.Resolve(ctx, resolver.Request{Coordinate: req.Coordinate, Hint: req.Hint})
}

// Enrich returns the enriched pin for req.Coordinate. A cache hit touches no
// provider. The only errors are invalid input and a missing resolver result.
func (e *Engine) Enrich(ctx context.Context, req Request) (*Result, error) {
	if err := req.Coordinate.Validate(); err != nil {
		return nil, err
	}

	key := cache.PinKey(req.Coordinate)
	if e.cache != nil {
		var pin types.EnrichedPin
		if e.cache.GetJSON(ctx, key, &pin) {
			e.log.Debugw("pin cache hit", "key", key)
			return &Result{Pin: pin, Cached: true}, nil
		}
	}

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.EnrichBudget)
	defer cancel()

	start := time.Now()
	pin, decision, err := e.enrich(runCtx, req)
	if err != nil {
		return nil, err
	}
	telemetry.EnrichDuration.Observe(time.Since(start).Seconds())

	if e.cache != nil && pin.Place.Source != types.SourceFallback {
		ttl := e.cfg.TTL.ForCategory(pin.Place.Category)
		if err := e.cache.SetJSON(runCtx, key, pin, ttl); err != nil {
			e.log.Warnw("failed to cache pin", "key", key, "error", err)
		}
	}

	e.notify(pin)
	return &Result{Pin: pin, Decision: decision}, nil
}

func (e *Engine) enrich(ctx context.Context, req Request) (types.EnrichedPin, knowledge.Decision, error) {
	id, err := e.Resolve(ctx, req)
	if err != nil {
		return types.EnrichedPin{}, knowledge.Decision{}, err
	}
	plan := planEnrichment(id)

	var (
		wg      sync.WaitGroup
		match   *knowledge.Match
		website *preview.Preview
	)
	if plan.Knowledge.Attempt && e.kg != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := e.kg.Match(ctx, id)
			if err != nil {
				e.log.Warnw("knowledge graph lookup failed", "name", id.Name, "error", err)
			}
			match = m
		}()
	}
	if plan.Website != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			website = e.fetchPreview(ctx, preview.KindWebsite, plan.Website)
		}()
	}
	wg.Wait()

	if match != nil {
		id.KnowledgeGraphID = match.ID
		if plan.Pages && plan.Website == "" && match.Website != "" {
			website = e.fetchPreview(ctx, preview.KindWebsite, match.Website)
		}
	}

	var social *preview.Preview
	if plan.Pages {
		socialURL := plan.Social
		if socialURL == "" && website != nil && len(website.SocialLinks) > 0 {
			socialURL = website.SocialLinks[0]
		}
		if socialURL != "" {
			social = e.fetchPreview(ctx, preview.KindSocial, socialURL)
		}
	}

	pin := assemble(id, website, social, match)
	pin.ResolvedAt = e.now().UTC()
	if e.images != nil {
		pin.Images = e.images.Resolve(ctx, imageCandidates(website, social, match))
	}
	if pin.Images == nil {
		pin.Images = []types.ImageRecord{}
	}
	return pin, plan.Knowledge, nil
}

func (e *Engine) fetchPreview(ctx context.Context, kind preview.Kind, url string) *preview.Preview {
	if e.previews == nil {
		return nil
	}
	var (
		p   *preview.Preview
		err error
	)
	if kind == preview.KindSocial {
		p, err = e.previews.Social(ctx, url)
	} else {
		p, err = e.previews.Website(ctx, url)
	}
	if err != nil {
		level := e.log.Warnw
		if errors.Is(err, preview.ErrDisallowedByRobots) || errors.Is(err, preview.ErrUnsupportedURL) {
			level = e.log.Debugw
		}
		level("preview fetch failed", "kind", kind, "url", url, "error", err)
		return nil
	}
	return p
}

// assemble picks the description: the place's own pages first, then the
// knowledge graph.
func assemble(id types.PlaceIdentity, website, social *preview.Preview, match *knowledge.Match) types.EnrichedPin {
	pin := types.EnrichedPin{Place: id}
	for _, text := range []string{pageDescription(website), pageDescription(social), matchDescription(match)} {
		if d := cleanDescription(text); d != "" {
			pin.Description = d
			break
		}
	}
	return pin
}

// imageCandidates orders website, social and knowledge-graph images. Graph
// images are only considered when the pages left the description or images
// missing.
func imageCandidates(website, social *preview.Preview, match *knowledge.Match) []media.Candidate {
	src := media.Sources{}
	if website != nil {
		src.Website = website.Images
	}
	if social != nil {
		src.Social = social.Images
	}
	if match != nil {
		src.Knowledge = match.Images
	}
	pageDesc := cleanDescription(pageDescription(website)) != "" || cleanDescription(pageDescription(social)) != ""
	pageImages := len(src.Website)+len(src.Social) > 0
	src.KnowledgeFillsGaps = !pageDesc || !pageImages
	return media.Order(src)
}

func pageDescription(p *preview.Preview) string {
	if p == nil {
		return ""
	}
	return p.Description
}

func matchDescription(m *knowledge.Match) string {
	if m == nil {
		return ""
	}
	return m.Description
}

func (e *Engine) notify(pin types.EnrichedPin) {
	e.mu.RLock()
	fns := append([]func(types.EnrichedPin){}, e.onEnriched...)
	e.mu.RUnlock()
	for _, fn := range fns {
		fn(pin)
	}
}
