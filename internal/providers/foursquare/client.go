// Package foursquare adapts the Foursquare Places v3 API into types.POI.
package foursquare

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/scrypster/pinpoint/internal/fetcher"
	"github.com/scrypster/pinpoint/pkg/types"
)

// Provider is the fetcher/metrics label for this adapter.
const Provider = types.SourceFoursquare

// DefaultBaseURL is the public Places v3 endpoint.
const DefaultBaseURL = "https://api.foursquare.com/v3"

// ErrDisabled is returned when no API key is configured.
var ErrDisabled = errors.New("foursquare: no API key configured")

const fields = "fsq_id,name,categories,distance,geocodes,location,tel,website,social_media"

// Client queries Places search.
type Client struct {
	fetch   *fetcher.Fetcher
	baseURL string
	apiKey  string
}

// New creates a client. An empty apiKey yields a disabled client.
func New(f *fetcher.Fetcher, baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{fetch: f, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey}
}

// Enabled reports whether the client has credentials.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

// Nearby returns POIs within radius meters of point, nearest first.
func (c *Client) Nearby(ctx context.Context, point types.Coordinate, radius, limit int) ([]types.POI, error) {
	return c.search(ctx, point, "", radius, limit)
}

// Search returns POIs matching query within radius meters of point.
func (c *Client) Search(ctx context.Context, point types.Coordinate, query string, radius, limit int) ([]types.POI, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("foursquare: empty search query")
	}
	return c.search(ctx, point, query, radius, limit)
}

func (c *Client) search(ctx context.Context, point types.Coordinate, query string, radius, limit int) ([]types.POI, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}
	if radius <= 0 {
		radius = 150
	}
	if radius > 100000 {
		radius = 100000
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}

	q := url.Values{}
	q.Set("ll", strconv.FormatFloat(point.Lat, 'f', 6, 64)+","+strconv.FormatFloat(point.Lng, 'f', 6, 64))
	q.Set("radius", strconv.Itoa(radius))
	q.Set("limit", strconv.Itoa(limit))
	q.Set("fields", fields)
	if query != "" {
		q.Set("query", query)
		q.Set("sort", "RELEVANCE")
	} else {
		q.Set("sort", "DISTANCE")
	}

	header := http.Header{}
	header.Set("Authorization", c.apiKey)
	header.Set("Accept", "application/json")

	var resp searchResponse
	if _, err := c.fetch.GetJSON(ctx, fetcher.Request{
		Provider: Provider,
		URL:      c.baseURL + "/places/search?" + q.Encode(),
		Header:   header,
	}, &resp); err != nil {
		return nil, fmt.Errorf("foursquare: places search: %w", err)
	}
	return normalizeResults(point, resp.Results), nil
}
