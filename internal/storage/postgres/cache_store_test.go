package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/pinpoint/internal/cache"
	"github.com/scrypster/pinpoint/internal/storage/postgres"
	"github.com/scrypster/pinpoint/pkg/types"
)

// newTestStore connects to PINPOINT_TEST_POSTGRES_URL or skips.
func newTestStore(t *testing.T) *postgres.CacheStore {
	t.Helper()

	dsn := os.Getenv("PINPOINT_TEST_POSTGRES_URL")
	if dsn == "" {
		t.Skip("PINPOINT_TEST_POSTGRES_URL not set; skipping PostgreSQL integration tests")
	}

	store, err := postgres.NewCacheStore(dsn)
	require.NoError(t, err, "NewCacheStore should succeed")
	require.NoError(t, store.TruncateForTest(context.Background()))
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCacheStore_UpsertPreservesCreatedAt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	first := time.Now().UTC().Truncate(time.Microsecond)
	later := first.Add(time.Minute)

	entry := types.CacheEntry{Key: "pin:1,2", CreatedAt: first, UpdatedAt: first, ExpiresAt: first.Add(time.Hour), Payload: []byte(`1`)}
	require.NoError(t, store.Put(ctx, entry))

	entry.CreatedAt, entry.UpdatedAt, entry.Payload = later, later, []byte(`2`)
	require.NoError(t, store.Put(ctx, entry))

	got, err := store.Get(ctx, "pin:1,2")
	require.NoError(t, err)
	assert.True(t, first.Equal(got.CreatedAt))
	assert.True(t, later.Equal(got.UpdatedAt))
	assert.Equal(t, `2`, string(got.Payload))
}

func TestCacheStore_MissingAndDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, cache.ErrNotFound)

	require.NoError(t, store.Put(ctx, types.CacheEntry{Key: "k", CreatedAt: now, UpdatedAt: now, ExpiresAt: now.Add(time.Hour), Payload: []byte(`1`)}))
	require.NoError(t, store.Delete(ctx, "k"))
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, cache.ErrNotFound)
}
