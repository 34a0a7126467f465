// Package wikidata adapts the Wikidata action API and the Wikipedia REST
// summary endpoint for knowledge-graph lookups. Neither needs credentials.
package wikidata

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/scrypster/pinpoint/internal/fetcher"
)

// Provider is the fetcher/metrics label for this adapter.
const Provider = "wikidata"

// ProviderWikipedia labels Wikipedia summary calls.
const ProviderWikipedia = "wikipedia"

const (
	DefaultWikidataURL  = "https://www.wikidata.org/w/api.php"
	DefaultWikipediaURL = "https://en.wikipedia.org/api/rest_v1"

	commonsFilePath = "https://commons.wikimedia.org/wiki/Special:FilePath/"
	imageWidth      = 1024
	maxImages       = 3
)

// ErrNotFound is returned when an entity id does not resolve.
var ErrNotFound = errors.New("wikidata: entity not found")

// Candidate is one search hit.
type Candidate struct {
	ID          string
	Label       string
	Description string
}

// Entity is the subset of an item the matcher needs.
type Entity struct {
	ID          string
	Label       string
	Description string
	// Images are stable Commons Special:FilePath URLs (at most 3).
	Images  []string
	Website string
	// WikipediaTitle is the English Wikipedia sitelink title, if any.
	WikipediaTitle string
	// InstanceOf holds P31 target ids (e.g. Q43229 for organization).
	InstanceOf []string
}

// Client talks to Wikidata and Wikipedia.
type Client struct {
	fetch        *fetcher.Fetcher
	wikidataURL  string
	wikipediaURL string
}

// New creates a client; empty URLs use the public endpoints.
func New(f *fetcher.Fetcher, wikidataURL, wikipediaURL string) *Client {
	if wikidataURL == "" {
		wikidataURL = DefaultWikidataURL
	}
	if wikipediaURL == "" {
		wikipediaURL = DefaultWikipediaURL
	}
	return &Client{
		fetch:        f,
		wikidataURL:  wikidataURL,
		wikipediaURL: strings.TrimRight(wikipediaURL, "/"),
	}
}

// Search runs wbsearchentities for query and returns up to limit candidates.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Candidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 || limit > 50 {
		limit = 10
	}

	q := url.Values{}
	q.Set("action", "wbsearchentities")
	q.Set("search", query)
	q.Set("language", "en")
	q.Set("uselang", "en")
	q.Set("type", "item")
	q.Set("format", "json")
	q.Set("limit", strconv.Itoa(limit))

	var resp searchResponse
	if _, err := c.fetch.GetJSON(ctx, fetcher.Request{
		Provider: Provider,
		URL:      c.wikidataURL + "?" + q.Encode(),
	}, &resp); err != nil {
		return nil, fmt.Errorf("wikidata: search %q: %w", query, err)
	}

	out := make([]Candidate, 0, len(resp.Search))
	for _, s := range resp.Search {
		if s.ID == "" {
			continue
		}
		out = append(out, Candidate{ID: s.ID, Label: s.Label, Description: s.Description})
	}
	return out, nil
}

// Entity fetches labels, descriptions, claims and sitelinks for id.
func (c *Client) Entity(ctx context.Context, id string) (*Entity, error) {
	q := url.Values{}
	q.Set("action", "wbgetentities")
	q.Set("ids", id)
	q.Set("props", "labels|descriptions|claims|sitelinks")
	q.Set("languages", "en")
	q.Set("sitefilter", "enwiki")
	q.Set("format", "json")

	var resp entitiesResponse
	if _, err := c.fetch.GetJSON(ctx, fetcher.Request{
		Provider: Provider,
		URL:      c.wikidataURL + "?" + q.Encode(),
	}, &resp); err != nil {
		return nil, fmt.Errorf("wikidata: get entity %s: %w", id, err)
	}

	raw, ok := resp.Entities[id]
	if !ok || raw.Missing != nil {
		return nil, ErrNotFound
	}
	return normalizeEntity(id, raw), nil
}

// Summary returns the plain-text extract of an English Wikipedia page.
func (c *Client) Summary(ctx context.Context, title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", nil
	}
	var resp summaryResponse
	if _, err := c.fetch.GetJSON(ctx, fetcher.Request{
		Provider: ProviderWikipedia,
		URL:      c.wikipediaURL + "/page/summary/" + url.PathEscape(strings.ReplaceAll(title, " ", "_")),
	}, &resp); err != nil {
		return "", fmt.Errorf("wikipedia: summary %q: %w", title, err)
	}
	if resp.Type == "disambiguation" {
		return "", nil
	}
	return strings.TrimSpace(resp.Extract), nil
}

// CommonsImageURL turns a Commons file name into a stable redirecting URL.
func CommonsImageURL(file string) string {
	file = strings.ReplaceAll(strings.TrimSpace(file), " ", "_")
	return commonsFilePath + url.PathEscape(file) + "?width=" + strconv.Itoa(imageWidth)
}
