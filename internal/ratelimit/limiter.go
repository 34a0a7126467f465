// Package ratelimit enforces per-client request ceilings over two fixed
// windows (one minute and one hour). A request is admitted only when both
// windows have headroom, and only admitted requests are counted.
package ratelimit

import (
	"fmt"
	"hash/fnv"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"
)

const shardCount = 32

// Config sets the ceilings. Zero values fall back to 5/minute and 60/hour.
type Config struct {
	PerMinute int
	PerHour   int

	// TrustedProxies lists the addresses or CIDR ranges whose
	// X-Forwarded-For header is believed. Empty means the header is ignored.
	TrustedProxies []string
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed         bool
	MinuteRemaining int
	HourRemaining   int
	// RetryAfter is how long until the blocking window resets. Zero when
	// the request was admitted.
	RetryAfter time.Duration
}

type window struct {
	count   int
	resetAt time.Time
}

// advance starts a fresh window once the boundary has been crossed.
func (w *window) advance(now time.Time, length time.Duration) {
	if w.resetAt.IsZero() || !now.Before(w.resetAt) {
		w.count = 0
		w.resetAt = now.Add(length)
	}
}

type entry struct {
	minute window
	hour   window
}

type shard struct {
	mu      sync.Mutex
	clients map[string]*entry
}

// Limiter tracks counters for every client seen within the last hour.
type Limiter struct {
	perMinute int
	perHour   int
	trusted   []netip.Prefix
	now       func() time.Time
	shards    [shardCount]shard
}

// New creates a Limiter. Unparseable TrustedProxies entries are skipped;
// ParseProxies reports them.
func New(cfg Config) *Limiter {
	if cfg.PerMinute <= 0 {
		cfg.PerMinute = 5
	}
	if cfg.PerHour <= 0 {
		cfg.PerHour = 60
	}
	l := &Limiter{
		perMinute: cfg.PerMinute,
		perHour:   cfg.PerHour,
		now:       time.Now,
	}
	for _, p := range cfg.TrustedProxies {
		if prefix, err := parseProxy(p); err == nil {
			l.trusted = append(l.trusted, prefix)
		}
	}
	for i := range l.shards {
		l.shards[i].clients = make(map[string]*entry)
	}
	return l
}

// SetClock overrides the time source (tests).
func (l *Limiter) SetClock(now func() time.Time) {
	l.now = now
}

func (l *Limiter) shardFor(client string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(client))
	return &l.shards[h.Sum32()%shardCount]
}

// Allow checks and, when admitted, counts one request from client.
func (l *Limiter) Allow(client string) Decision {
	now := l.now()
	s := l.shardFor(client)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.clients[client]
	if !ok {
		e = &entry{}
		s.clients[client] = e
	}
	e.minute.advance(now, time.Minute)
	e.hour.advance(now, time.Hour)

	minuteOK := e.minute.count < l.perMinute
	hourOK := e.hour.count < l.perHour
	if !minuteOK || !hourOK {
		var retry time.Duration
		if !minuteOK {
			retry = e.minute.resetAt.Sub(now)
		}
		if !hourOK {
			if d := e.hour.resetAt.Sub(now); d > retry {
				retry = d
			}
		}
		return Decision{
			Allowed:         false,
			MinuteRemaining: remaining(l.perMinute, e.minute.count),
			HourRemaining:   remaining(l.perHour, e.hour.count),
			RetryAfter:      retry,
		}
	}

	e.minute.count++
	e.hour.count++
	return Decision{
		Allowed:         true,
		MinuteRemaining: remaining(l.perMinute, e.minute.count),
		HourRemaining:   remaining(l.perHour, e.hour.count),
	}
}

// Peek reports the remaining quota for client without counting a request.
func (l *Limiter) Peek(client string) (minuteRemaining, hourRemaining int) {
	now := l.now()
	s := l.shardFor(client)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.clients[client]
	if !ok {
		return l.perMinute, l.perHour
	}
	m, h := l.perMinute, l.perHour
	if now.Before(e.minute.resetAt) {
		m = remaining(l.perMinute, e.minute.count)
	}
	if now.Before(e.hour.resetAt) {
		h = remaining(l.perHour, e.hour.count)
	}
	return m, h
}

// Sweep drops clients whose hour window has ended and returns how many.
func (l *Limiter) Sweep() int {
	now := l.now()
	removed := 0
	for i := range l.shards {
		s := &l.shards[i]
		s.mu.Lock()
		for client, e := range s.clients {
			if !now.Before(e.hour.resetAt) {
				delete(s.clients, client)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Len returns the number of tracked clients.
func (l *Limiter) Len() int {
	n := 0
	for i := range l.shards {
		s := &l.shards[i]
		s.mu.Lock()
		n += len(s.clients)
		s.mu.Unlock()
	}
	return n
}

func remaining(limit, count int) int {
	if count >= limit {
		return 0
	}
	return limit - count
}

// ParseProxies validates trusted proxy entries (addresses or CIDR ranges).
func ParseProxies(entries []string) error {
	for _, e := range entries {
		if _, err := parseProxy(e); err != nil {
			return err
		}
	}
	return nil
}

func parseProxy(s string) (netip.Prefix, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "/") {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return netip.Prefix{}, fmt.Errorf("ratelimit: invalid trusted proxy %q: %w", s, err)
		}
		return p.Masked(), nil
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("ratelimit: invalid trusted proxy %q: %w", s, err)
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

func (l *Limiter) isTrusted(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range l.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientID returns the address a request is counted against. It is the host
// part of RemoteAddr unless that peer is a trusted proxy, in which case
// X-Forwarded-For is walked from the nearest hop outwards and the first
// untrusted address wins.
func (l *Limiter) ClientID(r *http.Request) string {
	peer, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		peer = r.RemoteAddr
	}
	if len(l.trusted) == 0 || !l.isTrusted(peer) {
		return peer
	}

	hops := strings.Split(strings.Join(r.Header.Values("X-Forwarded-For"), ","), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if _, err := netip.ParseAddr(hop); err != nil {
			// Garbage past a trusted hop cannot be attributed.
			return peer
		}
		if !l.isTrusted(hop) {
			return hop
		}
	}
	return peer
}
