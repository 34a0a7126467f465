package cache

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/scrypster/pinpoint/pkg/types"
)

// Local is the bounded in-process tier. It is safe for concurrent use;
// golang-lru guards its own list and map.
type Local struct {
	lru *lru.Cache[string, types.CacheEntry]
}

// NewLocal creates a local tier holding at most size entries.
func NewLocal(size int) (*Local, error) {
	c, err := lru.New[string, types.CacheEntry](size)
	if err != nil {
		return nil, fmt.Errorf("cache: create local LRU: %w", err)
	}
	return &Local{lru: c}, nil
}

// Peek returns the entry without checking expiry. Reads refresh recency.
func (l *Local) Peek(key string) (types.CacheEntry, bool) {
	return l.lru.Get(key)
}

// Add inserts or replaces the entry, evicting the least recently used entry
// when full.
func (l *Local) Add(entry types.CacheEntry) {
	l.lru.Add(entry.Key, entry)
}

// Remove drops key.
func (l *Local) Remove(key string) {
	l.lru.Remove(key)
}

// Len returns the number of stored entries.
func (l *Local) Len() int {
	return l.lru.Len()
}
