// Package idempotency replays a previously computed response when a client
// repeats a request key within a short window.
package idempotency

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"time"
)

// DefaultWindow is how long a recorded response stays replayable.
const DefaultWindow = 30 * time.Second

// MaxKeyLength bounds client-supplied keys.
const MaxKeyLength = 200

// ErrInvalidKey is returned for empty or oversized keys.
var ErrInvalidKey = errors.New("idempotency: invalid key")

const shardCount = 16

// Record is a stored response. Body holds the exact bytes that were sent.
type Record struct {
	Status      int
	ContentType string
	Body        []byte
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

type shard struct {
	mu       sync.Mutex
	records  map[string]Record
	inflight map[string]chan struct{}
}

// Store keeps records keyed by (client, key).
type Store struct {
	window time.Duration
	now    func() time.Time
	shards [shardCount]shard
}

// New creates a Store. A non-positive window falls back to DefaultWindow.
func New(window time.Duration) *Store {
	if window <= 0 {
		window = DefaultWindow
	}
	s := &Store{window: window, now: time.Now}
	for i := range s.shards {
		s.shards[i].records = make(map[string]Record)
		s.shards[i].inflight = make(map[string]chan struct{})
	}
	return s
}

// SetClock overrides the time source (tests).
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// NormalizeKey trims the key and validates its length.
func NormalizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" || len(key) > MaxKeyLength {
		return "", ErrInvalidKey
	}
	return key, nil
}

func compositeKey(client, key string) string {
	return client + "\x00" + key
}

func (s *Store) shardFor(k string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(k))
	return &s.shards[h.Sum32()%shardCount]
}

// Lookup returns the live record for (client, key). An expired record is
// deleted and reported as absent.
func (s *Store) Lookup(client, key string) (Record, bool) {
	k := compositeKey(client, key)
	sh := s.shardFor(k)
	now := s.now()

	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.live(k, now)
}

// live must be called with sh.mu held.
func (sh *shard) live(k string, now time.Time) (Record, bool) {
	rec, ok := sh.records[k]
	if !ok {
		return Record{}, false
	}
	if !now.Before(rec.ExpiresAt) {
		delete(sh.records, k)
		return Record{}, false
	}
	rec.Body = append([]byte(nil), rec.Body...)
	return rec, true
}

// Begin claims (client, key) for one request.
//
// When a live record exists it is returned with replay set. When another
// request holds the claim, Begin waits until that request releases it and
// then looks again. Otherwise the caller becomes the owner and must call
// release after Save (or after giving up, which lets the next retry run).
// Begin fails only when ctx ends while waiting.
func (s *Store) Begin(ctx context.Context, client, key string) (rec Record, replay bool, release func(), err error) {
	k := compositeKey(client, key)
	sh := s.shardFor(k)

	for {
		sh.mu.Lock()
		if stored, ok := sh.live(k, s.now()); ok {
			sh.mu.Unlock()
			return stored, true, nil, nil
		}
		wait, busy := sh.inflight[k]
		if !busy {
			done := make(chan struct{})
			sh.inflight[k] = done
			sh.mu.Unlock()

			var once sync.Once
			return Record{}, false, func() {
				once.Do(func() {
					sh.mu.Lock()
					if sh.inflight[k] == done {
						delete(sh.inflight, k)
					}
					sh.mu.Unlock()
					close(done)
				})
			}, nil
		}
		sh.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return Record{}, false, nil, ctx.Err()
		}
	}
}

// Save records a response for (client, key). A live record is never
// replaced, so the first response within the window is the one replayed.
// Save reports whether the record was stored.
func (s *Store) Save(client, key string, status int, contentType string, body []byte) bool {
	k := compositeKey(client, key)
	sh := s.shardFor(k)
	now := s.now()

	sh.mu.Lock()
	defer sh.mu.Unlock()

	if prev, ok := sh.records[k]; ok && now.Before(prev.ExpiresAt) {
		return false
	}
	sh.records[k] = Record{
		Status:      status,
		ContentType: contentType,
		Body:        append([]byte(nil), body...),
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.window),
	}
	return true
}

// Sweep drops expired records and returns how many were removed.
func (s *Store) Sweep() int {
	now := s.now()
	removed := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for k, rec := range sh.records {
			if !now.Before(rec.ExpiresAt) {
				delete(sh.records, k)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// Len returns the number of stored records, expired ones included.
func (s *Store) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		n += len(sh.records)
		sh.mu.Unlock()
	}
	return n
}
