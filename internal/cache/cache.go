// Package cache implements Pinpoint's two-tier cache: a bounded in-process
// LRU in front of an optional shared remote store. Both tiers honor per-entry
// expiry; expired entries are dropped lazily when read and never returned.
//
// Only successful resolutions are written. Callers decide what "successful"
// means; the cache itself stores whatever payload it is given.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/scrypster/pinpoint/internal/logger"
	"github.com/scrypster/pinpoint/internal/telemetry"
	"github.com/scrypster/pinpoint/pkg/types"
)

// ErrNotFound is returned by remote stores when a key is absent.
var ErrNotFound = errors.New("cache: entry not found")

// Remote is a shared cache tier (Postgres, SQLite, ...). Implementations must
// preserve CreatedAt when Put overwrites an existing key.
type Remote interface {
	// Get returns the entry for key or ErrNotFound. Expired entries may be
	// returned; the caller filters them.
	Get(ctx context.Context, key string) (*types.CacheEntry, error)

	// Put inserts or replaces the entry (upsert semantics).
	Put(ctx context.Context, entry types.CacheEntry) error

	// Delete removes the entry. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases the underlying connection.
	Close() error
}

// Tiered consults the local LRU, then the remote store when configured.
type Tiered struct {
	local  *Local
	remote Remote
	now    func() time.Time
	log    *zap.SugaredLogger

	// writeMu serializes read-modify-write in Set so two concurrent writers
	// cannot both believe they created the entry.
	writeMu sync.Mutex
}

// Option customizes a Tiered cache.
type Option func(*Tiered)

// WithRemote attaches a remote tier. A nil remote leaves the cache local-only.
func WithRemote(r Remote) Option {
	return func(t *Tiered) { t.remote = r }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(t *Tiered) { t.now = now }
}

// NewTiered builds a cache with a local LRU of size entries.
func NewTiered(size int, opts ...Option) (*Tiered, error) {
	local, err := NewLocal(size)
	if err != nil {
		return nil, err
	}
	t := &Tiered{
		local: local,
		now:   time.Now,
		log:   logger.GetLogger("cache"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// HasRemote reports whether a remote tier is attached.
func (t *Tiered) HasRemote() bool {
	return t.remote != nil
}

// LocalLen returns the number of entries in the local tier (expired included).
func (t *Tiered) LocalLen() int {
	return t.local.Len()
}

// Get returns a live entry for key. Expired entries are deleted from the tier
// they were found in and reported as a miss.
func (t *Tiered) Get(ctx context.Context, key string) (types.CacheEntry, bool) {
	now := t.now()

	if entry, ok := t.local.Peek(key); ok {
		if !entry.Expired(now) {
			telemetry.CacheLookups.WithLabelValues("local", "hit").Inc()
			return entry, true
		}
		t.local.Remove(key)
		telemetry.CacheLookups.WithLabelValues("local", "expired").Inc()
	} else {
		telemetry.CacheLookups.WithLabelValues("local", "miss").Inc()
	}

	if t.remote == nil {
		return types.CacheEntry{}, false
	}

	entry, err := t.remote.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			telemetry.CacheLookups.WithLabelValues("remote", "miss").Inc()
		} else {
			telemetry.CacheLookups.WithLabelValues("remote", "error").Inc()
			t.log.Warnw("remote cache read failed", "key", key, "error", err)
		}
		return types.CacheEntry{}, false
	}
	if entry.Expired(now) {
		telemetry.CacheLookups.WithLabelValues("remote", "expired").Inc()
		if err := t.remote.Delete(ctx, key); err != nil {
			t.log.Warnw("remote cache delete failed", "key", key, "error", err)
		}
		return types.CacheEntry{}, false
	}

	telemetry.CacheLookups.WithLabelValues("remote", "hit").Inc()
	t.local.Add(*entry)
	return *entry, true
}

// GetJSON decodes a live entry's payload into dst. It reports false on a miss
// or when the payload no longer decodes (the entry is then dropped).
func (t *Tiered) GetJSON(ctx context.Context, key string, dst interface{}) bool {
	entry, ok := t.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(entry.Payload, dst); err != nil {
		t.log.Warnw("dropping undecodable cache entry", "key", key, "error", err)
		t.Delete(ctx, key)
		return false
	}
	return true
}

// Set writes payload under key for ttl. An existing entry keeps its CreatedAt.
func (t *Tiered) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("cache: ttl must be positive for %q", key)
	}

	t.writeMu.Lock()
	now := t.now()
	entry := types.CacheEntry{
		Key:       key,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(ttl),
		Payload:   append([]byte(nil), payload...),
	}
	if prev, ok := t.local.Peek(key); ok {
		entry.CreatedAt = prev.CreatedAt
	}
	t.local.Add(entry)
	t.writeMu.Unlock()

	if t.remote != nil {
		if err := t.remote.Put(ctx, entry); err != nil {
			t.log.Warnw("remote cache write failed", "key", key, "error", err)
			return fmt.Errorf("cache: remote put %q: %w", key, err)
		}
	}
	return nil
}

// SetJSON marshals v and stores it under key.
func (t *Tiered) SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: marshal %q: %w", key, err)
	}
	return t.Set(ctx, key, data, ttl)
}

// Delete removes key from both tiers.
func (t *Tiered) Delete(ctx context.Context, key string) {
	t.local.Remove(key)
	if t.remote != nil {
		if err := t.remote.Delete(ctx, key); err != nil {
			t.log.Warnw("remote cache delete failed", "key", key, "error", err)
		}
	}
}

// Close closes the remote tier, if any.
func (t *Tiered) Close() error {
	if t.remote == nil {
		return nil
	}
	return t.remote.Close()
}
