package preview

import (
	"context"
	"net/url"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"

	"github.com/scrypster/pinpoint/internal/cache"
	"github.com/scrypster/pinpoint/internal/fetcher"
)

const (
	robotsTTL        = 24 * time.Hour
	robotsFailureTTL = time.Hour
	robotsTimeout    = 3 * time.Second
	robotsMaxBytes   = 512 * 1024
	robotsProvider   = "robots"
	robotsAgentToken = "pinpoint"
)

// robotsRecord is the cached form of a host's robots.txt. Only 2xx bodies
// are parsed; any other status or a fetch failure allows everything.
type robotsRecord struct {
	Status int    `json:"status"`
	Body   string `json:"body,omitempty"`
}

type robotsChecker struct {
	fetch *fetcher.Fetcher
	cache *cache.Tiered
	pacer *DomainPacer
	log   *zap.SugaredLogger
}

// Allowed reports whether our agent may fetch target. It never fails closed:
// unreachable or malformed robots files allow the request.
func (r *robotsChecker) Allowed(ctx context.Context, target *url.URL) bool {
	key := cache.RobotsKey(target.Scheme, target.Host)

	var rec robotsRecord
	if r.cache == nil || !r.cache.GetJSON(ctx, key, &rec) {
		// robots.txt counts against the host's request spacing like any page.
		if r.pacer != nil {
			if err := r.pacer.Wait(ctx, target.Hostname()); err != nil {
				return true
			}
		}
		rec = r.load(ctx, target)
		ttl := robotsTTL
		if rec.Status == 0 {
			ttl = robotsFailureTTL
		}
		if r.cache != nil {
			if err := r.cache.SetJSON(ctx, key, rec, ttl); err != nil {
				r.log.Debugw("failed to cache robots.txt", "host", target.Host, "error", err)
			}
		}
	}

	if rec.Status < 200 || rec.Status > 299 {
		return true
	}
	data, err := robotstxt.FromBytes([]byte(rec.Body))
	if err != nil {
		return true
	}
	path := target.EscapedPath()
	if path == "" {
		path = "/"
	}
	return data.TestAgent(path, robotsAgentToken)
}

func (r *robotsChecker) load(ctx context.Context, target *url.URL) robotsRecord {
	robotsURL := url.URL{Scheme: target.Scheme, Host: target.Host, Path: "/robots.txt"}
	res := r.fetch.Do(ctx, fetcher.Request{
		Provider: robotsProvider,
		URL:      robotsURL.String(),
		Timeout:  robotsTimeout,
		MaxBytes: robotsMaxBytes,
		Guarded:  true,
	})
	if res.StatusCode == 0 {
		r.log.Debugw("robots.txt unreachable, allowing", "host", target.Host, "error", res.Err)
		return robotsRecord{}
	}
	rec := robotsRecord{Status: res.StatusCode}
	if res.OK() {
		rec.Body = string(res.Body)
	}
	return rec
}
