// Package storage selects the remote cache tier from its connection URL.
package storage

import (
	"fmt"
	"strings"

	"github.com/scrypster/pinpoint/internal/cache"
	"github.com/scrypster/pinpoint/internal/storage/postgres"
	"github.com/scrypster/pinpoint/internal/storage/sqlite"
)

// OpenRemote opens the remote cache tier named by rawURL. An empty URL means
// no remote tier and returns (nil, nil).
func OpenRemote(rawURL string) (cache.Remote, error) {
	rawURL = strings.TrimSpace(rawURL)
	switch {
	case rawURL == "":
		return nil, nil
	case strings.HasPrefix(rawURL, "postgres://"), strings.HasPrefix(rawURL, "postgresql://"):
		store, err := postgres.NewCacheStore(rawURL)
		if err != nil {
			return nil, err
		}
		return store, nil
	case strings.HasPrefix(rawURL, "sqlite://"):
		store, err := sqlite.NewCacheStoreFromURL(rawURL)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("storage: unsupported remote cache URL scheme in %q", rawURL)
	}
}
