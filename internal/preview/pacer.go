package preview

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const pacerIdleTTL = 10 * time.Minute

type pacedHost struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// DomainPacer spaces requests to the same host at least interval apart.
type DomainPacer struct {
	mu       sync.Mutex
	interval time.Duration
	hosts    map[string]*pacedHost
}

// NewDomainPacer creates a pacer; a non-positive interval means one second.
func NewDomainPacer(interval time.Duration) *DomainPacer {
	if interval <= 0 {
		interval = time.Second
	}
	return &DomainPacer{interval: interval, hosts: make(map[string]*pacedHost)}
}

// Wait blocks until a request to host may proceed or ctx ends.
func (p *DomainPacer) Wait(ctx context.Context, host string) error {
	host = strings.ToLower(strings.TrimPrefix(host, "www."))
	now := time.Now()

	p.mu.Lock()
	h, ok := p.hosts[host]
	if !ok {
		p.prune(now)
		h = &pacedHost{limiter: rate.NewLimiter(rate.Every(p.interval), 1)}
		p.hosts[host] = h
	}
	h.lastUsed = now
	p.mu.Unlock()

	return h.limiter.Wait(ctx)
}

// prune drops hosts idle for pacerIdleTTL. Caller holds p.mu.
func (p *DomainPacer) prune(now time.Time) {
	for host, h := range p.hosts {
		if now.Sub(h.lastUsed) > pacerIdleTTL {
			delete(p.hosts, host)
		}
	}
}
