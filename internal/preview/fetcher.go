// Package preview fetches a single page (a place's website or social
// profile) and extracts what it says about itself: title, description,
// photo candidates and linked social profiles. It never crawls.
//
// Website fetches honor robots.txt and are paced per domain. Results are
// cached per normalized URL; fetch failures are not cached.
package preview

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/scrypster/pinpoint/internal/cache"
	"github.com/scrypster/pinpoint/internal/fetcher"
	"github.com/scrypster/pinpoint/internal/logger"
)

// Kind selects the fetch profile.
type Kind string

const (
	KindWebsite Kind = "website"
	KindSocial  Kind = "social"
)

// Defaults.
const (
	DefaultWebsiteTimeout  = 6500 * time.Millisecond
	DefaultSocialTimeout   = 3500 * time.Millisecond
	DefaultWebsiteMaxBytes = 1536 * 1024
	DefaultSocialMaxBytes  = 1024 * 1024
	DefaultSuccessTTL      = 7 * 24 * time.Hour
	DefaultEmptyTTL        = time.Hour
)

var (
	// ErrUnsupportedURL is returned for URLs that are not absolute http(s)
	// or, for social fetches, not profile-shaped.
	ErrUnsupportedURL = errors.New("preview: unsupported URL")
	// ErrDisallowedByRobots is returned when robots.txt forbids the page.
	ErrDisallowedByRobots = errors.New("preview: disallowed by robots.txt")
)

// Preview is the extracted summary of one page.
type Preview struct {
	URL         string    `json:"url"`
	FinalURL    string    `json:"finalUrl,omitempty"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	Images      []string  `json:"images,omitempty"`
	SocialLinks []string  `json:"socialLinks,omitempty"`
	FetchedAt   time.Time `json:"fetchedAt"`
}

// Empty reports whether the page yielded nothing usable for enrichment.
func (p *Preview) Empty() bool {
	return p == nil || (p.Description == "" && len(p.Images) == 0 && len(p.SocialLinks) == 0)
}

// Options tunes the fetch profiles. Zero values use the defaults.
type Options struct {
	WebsiteTimeout  time.Duration
	SocialTimeout   time.Duration
	WebsiteMaxBytes int64
	SocialMaxBytes  int64
	DomainInterval  time.Duration
	SuccessTTL      time.Duration
	EmptyTTL        time.Duration
}

func (o *Options) defaults() {
	if o.WebsiteTimeout <= 0 {
		o.WebsiteTimeout = DefaultWebsiteTimeout
	}
	if o.SocialTimeout <= 0 {
		o.SocialTimeout = DefaultSocialTimeout
	}
	if o.WebsiteMaxBytes <= 0 {
		o.WebsiteMaxBytes = DefaultWebsiteMaxBytes
	}
	if o.SocialMaxBytes <= 0 {
		o.SocialMaxBytes = DefaultSocialMaxBytes
	}
	if o.SuccessTTL <= 0 {
		o.SuccessTTL = DefaultSuccessTTL
	}
	if o.EmptyTTL <= 0 {
		o.EmptyTTL = DefaultEmptyTTL
	}
}

// Fetcher fetches website and social previews.
type Fetcher struct {
	http   *fetcher.Fetcher
	cache  *cache.Tiered
	robots *robotsChecker
	pacer  *DomainPacer
	opts   Options
	now    func() time.Time
	log    *zap.SugaredLogger
}

// New creates a preview Fetcher. c may be nil to disable caching.
func New(f *fetcher.Fetcher, c *cache.Tiered, opts Options) *Fetcher {
	opts.defaults()
	log := logger.GetLogger("preview")
	pacer := NewDomainPacer(opts.DomainInterval)
	return &Fetcher{
		http:   f,
		cache:  c,
		robots: &robotsChecker{fetch: f, cache: c, pacer: pacer, log: log},
		pacer:  pacer,
		opts:   opts,
		now:    time.Now,
		log:    log,
	}
}

// Website fetches a place's own homepage.
func (p *Fetcher) Website(ctx context.Context, rawURL string) (*Preview, error) {
	return p.fetch(ctx, KindWebsite, rawURL)
}

// Social fetches a profile page on a known social network.
func (p *Fetcher) Social(ctx context.Context, rawURL string) (*Preview, error) {
	if !IsProfileURL(rawURL) {
		return nil, fmt.Errorf("%w: %q is not a social profile", ErrUnsupportedURL, rawURL)
	}
	return p.fetch(ctx, KindSocial, rawURL)
}

func (p *Fetcher) fetch(ctx context.Context, kind Kind, rawURL string) (*Preview, error) {
	target, normalized, err := NormalizeURL(rawURL)
	if err != nil {
		return nil, err
	}

	key := cache.PreviewKey(string(kind), normalized)
	if p.cache != nil {
		var cached Preview
		if p.cache.GetJSON(ctx, key, &cached) {
			p.log.Debugw("preview cache hit", "kind", kind, "url", normalized)
			return &cached, nil
		}
	}

	timeout, maxBytes := p.opts.SocialTimeout, p.opts.SocialMaxBytes
	if kind == KindWebsite {
		timeout, maxBytes = p.opts.WebsiteTimeout, p.opts.WebsiteMaxBytes
		if !p.robots.Allowed(ctx, target) {
			return nil, ErrDisallowedByRobots
		}
		if err := p.pacer.Wait(ctx, target.Hostname()); err != nil {
			return nil, fmt.Errorf("preview: waiting for %s: %w", target.Hostname(), err)
		}
	}

	res := p.http.Do(ctx, fetcher.Request{
		Provider: string(kind),
		URL:      target.String(),
		Header:   map[string][]string{"Accept": {"text/html,application/xhtml+xml;q=0.9,*/*;q=0.5"}},
		Timeout:  timeout,
		MaxBytes: maxBytes,
		Guarded:  true,
	})
	if !res.OK() {
		return nil, fmt.Errorf("preview: fetch %s: %w", normalized, res.Err)
	}

	preview := &Preview{URL: normalized, FinalURL: res.FinalURL, FetchedAt: p.now().UTC()}
	if isHTML(res.Header.Get("Content-Type")) {
		base := target
		if final, err := url.Parse(res.FinalURL); err == nil && final.Host != "" {
			base = final
		}
		meta := ExtractMetadata(res.Body, base)
		preview.Title = meta.Title
		preview.Description = meta.Description
		preview.Images = meta.Images
		if kind == KindWebsite {
			preview.SocialLinks = meta.SocialLinks
		}
	}

	if p.cache != nil {
		ttl := p.opts.SuccessTTL
		if preview.Empty() {
			ttl = p.opts.EmptyTTL
		}
		if err := p.cache.SetJSON(ctx, key, preview, ttl); err != nil {
			p.log.Warnw("failed to cache preview", "key", key, "error", err)
		}
	}
	return preview, nil
}

// NormalizeURL parses rawURL and returns it along with its cache identity:
// lowercased scheme and host plus path, without query or fragment. Facebook
// profile.php pages keep their id parameter, which is the only thing that
// tells them apart.
func NormalizeURL(rawURL string) (*url.URL, string, error) {
	raw := strings.TrimSpace(rawURL)
	if raw != "" && !strings.Contains(raw, ":") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnsupportedURL, err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return nil, "", fmt.Errorf("%w: %q", ErrUnsupportedURL, rawURL)
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	if u.Path == "" {
		u.Path = "/"
	}

	key := u.Scheme + "://" + u.Host + u.EscapedPath()
	if isFacebookProfileID(u) {
		key += "?id=" + url.QueryEscape(u.Query().Get("id"))
	}
	return u, key, nil
}

func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "html") || strings.HasPrefix(ct, "text/plain")
}
