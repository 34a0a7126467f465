package app_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/pinpoint/internal/app"
	"github.com/scrypster/pinpoint/internal/config"
	"github.com/scrypster/pinpoint/internal/engine"
	"github.com/scrypster/pinpoint/internal/gateway"
	"github.com/scrypster/pinpoint/pkg/types"
)

// offlineConfig loads a config with every keyed provider disabled.
func offlineConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("PINPOINT_FOURSQUARE_API_KEY", "")
	t.Setenv("PINPOINT_MAPBOX_TOKEN", "")
	t.Setenv("PINPOINT_CATEGORY_RULES", "")
	t.Setenv("PINPOINT_MEDIA_PATH", filepath.Join(dir, "media"))
	t.Setenv("PINPOINT_REMOTE_CACHE_URL", "sqlite://"+filepath.Join(dir, "cache.db"))

	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	return cfg
}

func TestNew_WithoutProviderKeys(t *testing.T) {
	a, err := app.New(offlineConfig(t))
	require.NoError(t, err)
	defer func() { assert.NoError(t, a.Close()) }()

	assert.True(t, a.Cache.HasRemote())
	assert.DirExists(t, a.Media.Dir())
	assert.Len(t, a.Fetcher.Breakers().States(), 3)
}

func TestNew_EnrichFallsBackToCoordinate(t *testing.T) {
	a, err := app.New(offlineConfig(t))
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	point := types.Coordinate{Lat: 48.8584, Lng: 2.2945}
	res, err := a.Engine.Enrich(context.Background(), engine.Request{Coordinate: point})
	require.NoError(t, err)

	assert.Equal(t, types.SourceFallback, res.Pin.Place.Source)
	assert.Equal(t, point.String(), res.Pin.Place.Name)
	assert.Empty(t, res.Pin.Description)
	assert.NotNil(t, res.Pin.Images)
	assert.Empty(t, res.Pin.Images)

	// Coordinate-only identities are never cached.
	again, err := a.Engine.Enrich(context.Background(), engine.Request{Coordinate: point})
	require.NoError(t, err)
	assert.False(t, again.Cached)
}

func TestNew_GatewayWithoutProvidersIsUpstreamFailure(t *testing.T) {
	a, err := app.New(offlineConfig(t))
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	_, err = a.Gateway.Annotate(context.Background(), gateway.Request{
		Coordinate: types.Coordinate{Lat: 40.7128, Lng: -74.006},
	})
	assert.ErrorIs(t, err, gateway.ErrUpstream)
}

func TestNew_MediaDirFailure(t *testing.T) {
	cfg := offlineConfig(t)
	cfg.Media.DataPath = ""

	_, err := app.New(cfg)
	assert.Error(t, err)
}
