// Package media picks up to three photos for a pin from the enrichment
// sources, in priority order, and re-hosts them so clients never hotlink a
// third-party site.
package media

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/scrypster/pinpoint/internal/logger"
	"github.com/scrypster/pinpoint/pkg/types"
)

// Candidate is an image URL and where it was discovered.
type Candidate struct {
	URL    string
	Source types.ImageSource
}

// Sources are the image lists gathered during enrichment.
type Sources struct {
	Website   []string
	Social    []string
	Knowledge []string

	// KnowledgeFillsGaps is set when the website and social pages left the
	// description or the images missing. Knowledge-graph images are only
	// considered then.
	KnowledgeFillsGaps bool
}

// Order merges sources into a deduplicated candidate list: website first,
// social while short of the cap, then knowledge graph while short of the cap
// and only when KnowledgeFillsGaps. The list is not capped; hosting may fail
// for some candidates.
func Order(src Sources) []Candidate {
	var out []Candidate
	seen := make(map[string]bool)
	add := func(urls []string, source types.ImageSource) {
		for _, u := range urls {
			u = strings.TrimSpace(u)
			if u == "" || seen[u] {
				continue
			}
			seen[u] = true
			out = append(out, Candidate{URL: u, Source: source})
		}
	}

	add(src.Website, types.ImageSourceWebsite)
	if len(out) < types.MaxPinImages {
		add(src.Social, types.ImageSourceSocial)
	}
	if len(out) < types.MaxPinImages && src.KnowledgeFillsGaps {
		add(src.Knowledge, types.ImageSourceKnowledgeGraph)
	}
	return out
}

// Host stores one image and returns its record.
type Host interface {
	Host(ctx context.Context, c Candidate) (types.ImageRecord, error)
}

// Resolver turns ordered candidates into at most MaxPinImages hosted images.
type Resolver struct {
	host Host
	log  *zap.SugaredLogger
}

// NewResolver creates a Resolver backed by host.
func NewResolver(host Host) *Resolver {
	return &Resolver{host: host, log: logger.GetLogger("media")}
}

// Resolve hosts candidates in order until the cap is reached. Candidates are
// tried in windows sized to the remaining slots; each window runs
// concurrently and its successes are kept in candidate order. Failures are
// logged and skipped, as are candidates whose bytes were already hosted.
func (r *Resolver) Resolve(ctx context.Context, candidates []Candidate) []types.ImageRecord {
	records := make([]types.ImageRecord, 0, types.MaxPinImages)
	if r == nil || r.host == nil {
		return records
	}

	hosted := make(map[string]bool)
	next := 0
	for len(records) < types.MaxPinImages && next < len(candidates) && ctx.Err() == nil {
		window := types.MaxPinImages - len(records)
		if next+window > len(candidates) {
			window = len(candidates) - next
		}
		batch := candidates[next : next+window]
		next += window

		results := make([]*types.ImageRecord, len(batch))
		var wg sync.WaitGroup
		for i, c := range batch {
			wg.Add(1)
			go func(i int, c Candidate) {
				defer wg.Done()
				rec, err := r.host.Host(ctx, c)
				if err != nil {
					r.log.Warnw("image hosting failed", "url", c.URL, "source", c.Source, "error", err)
					return
				}
				results[i] = &rec
			}(i, c)
		}
		wg.Wait()

		for _, rec := range results {
			if rec == nil || hosted[rec.URL] || len(records) == types.MaxPinImages {
				continue
			}
			hosted[rec.URL] = true
			records = append(records, *rec)
		}
	}
	return records
}
