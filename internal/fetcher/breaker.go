package fetcher

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/scrypster/pinpoint/internal/logger"
)

// ErrCircuitOpen is returned when a provider's circuit breaker is open
// and rejects calls to prevent hammering a failing upstream.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerConfig holds the configuration for provider circuit breakers.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures required to trip the circuit.
	// Default: 5
	MaxFailures uint32

	// Timeout is the duration the circuit stays open before transitioning to half-open.
	// Default: 30 seconds
	Timeout time.Duration

	// HalfOpenMaxSuccesses is the number of consecutive successes required in half-open
	// state to close the circuit again.
	// Default: 2
	HalfOpenMaxSuccesses uint32
}

func (c *BreakerConfig) defaults() {
	if c.MaxFailures == 0 {
		c.MaxFailures = 5
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.HalfOpenMaxSuccesses == 0 {
		c.HalfOpenMaxSuccesses = 2
	}
}

// CircuitBreaker wraps gobreaker for a single provider.
//
// When closed (normal operation), calls pass through.
// After MaxFailures consecutive failures the circuit opens and rejects calls.
// After Timeout it goes half-open and lets test calls through; after
// HalfOpenMaxSuccesses successes it closes again.
type CircuitBreaker struct {
	breaker *gobreaker.CircuitBreaker
}

// NewCircuitBreaker creates a breaker named after the provider it protects.
func NewCircuitBreaker(name string, config BreakerConfig) *CircuitBreaker {
	config.defaults()
	log := logger.GetLogger("breaker")

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: config.HalfOpenMaxSuccesses,
		Interval:    0, // Don't clear counts periodically
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.MaxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warnw("circuit state changed", "provider", name, "from", from.String(), "to", to.String())
		},
	}

	return &CircuitBreaker{breaker: gobreaker.NewCircuitBreaker(settings)}
}

// Execute runs fn through the breaker. If the circuit is open (or half-open
// and saturated) it returns ErrCircuitOpen without calling fn.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	_, err := cb.breaker.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}
	return err
}

// State returns the current state of the circuit breaker:
// "closed", "open", "half-open".
func (cb *CircuitBreaker) State() string {
	switch cb.breaker.State() {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breakers is a fixed set of per-provider circuit breakers.
type Breakers struct {
	mu sync.RWMutex
	m  map[string]*CircuitBreaker
}

// NewBreakers creates one breaker per provider name.
func NewBreakers(config BreakerConfig, providers ...string) *Breakers {
	b := &Breakers{m: make(map[string]*CircuitBreaker, len(providers))}
	for _, p := range providers {
		b.m[p] = NewCircuitBreaker(p, config)
	}
	return b
}

// For returns the provider's breaker, or nil when the provider has none.
func (b *Breakers) For(provider string) *CircuitBreaker {
	if b == nil || provider == "" {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.m[provider]
}

// States returns provider → state for every registered breaker.
func (b *Breakers) States() map[string]string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, 0, len(b.m))
	for name := range b.m {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[string]string, len(names))
	for _, name := range names {
		out[name] = b.m[name].State()
	}
	return out
}
