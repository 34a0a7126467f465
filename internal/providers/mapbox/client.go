// Package mapbox adapts Mapbox Geocoding v5 reverse lookups into
// types.GeocodeResult.
package mapbox

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/scrypster/pinpoint/internal/fetcher"
	"github.com/scrypster/pinpoint/pkg/types"
)

// Provider is the fetcher/metrics label for this adapter.
const Provider = types.SourceMapbox

// DefaultBaseURL is the public Mapbox API host.
const DefaultBaseURL = "https://api.mapbox.com"

var (
	// ErrDisabled is returned when no access token is configured.
	ErrDisabled = errors.New("mapbox: no access token configured")
	// ErrNoFeatures is returned when the geocoder matched nothing.
	ErrNoFeatures = errors.New("mapbox: no features for coordinate")
)

// Client performs reverse geocoding.
type Client struct {
	fetch   *fetcher.Fetcher
	baseURL string
	token   string
}

// New creates a client. An empty token yields a disabled client.
func New(f *fetcher.Fetcher, baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{fetch: f, baseURL: strings.TrimRight(baseURL, "/"), token: token}
}

// Enabled reports whether the client has credentials.
func (c *Client) Enabled() bool {
	return c != nil && c.token != ""
}

// Reverse returns the most specific feature at point.
func (c *Client) Reverse(ctx context.Context, point types.Coordinate) (*types.GeocodeResult, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}

	lngLat := strconv.FormatFloat(point.Lng, 'f', 6, 64) + "," + strconv.FormatFloat(point.Lat, 'f', 6, 64)
	q := url.Values{}
	q.Set("access_token", c.token)
	q.Set("types", "poi,address,neighborhood,locality,place,region,country")
	q.Set("language", "en")

	var resp featureCollection
	if _, err := c.fetch.GetJSON(ctx, fetcher.Request{
		Provider: Provider,
		URL:      c.baseURL + "/geocoding/v5/mapbox.places/" + lngLat + ".json?" + q.Encode(),
	}, &resp); err != nil {
		return nil, fmt.Errorf("mapbox: reverse geocode: %w", err)
	}

	result, ok := normalize(point, resp)
	if !ok {
		return nil, ErrNoFeatures
	}
	return result, nil
}
