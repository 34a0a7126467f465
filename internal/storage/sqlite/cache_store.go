// Package sqlite provides a SQLite-backed remote cache tier for single-node
// deployments that want entries to survive a restart.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/pinpoint/internal/cache"
	"github.com/scrypster/pinpoint/internal/logger"
	"github.com/scrypster/pinpoint/pkg/types"
)

// Schema creates the cache table. Timestamps are stored as unix nanoseconds.
const Schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	key        TEXT PRIMARY KEY,
	payload    BLOB NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cache_entries_expires_at ON cache_entries(expires_at);
`

// CacheStore implements cache.Remote using SQLite.
type CacheStore struct {
	db *sql.DB
}

var _ cache.Remote = (*CacheStore)(nil)

// NewCacheStore opens (or creates) the database at dsn. A stale WAL left
// behind by a crashed process is removed and the open retried once.
func NewCacheStore(dsn string) (*CacheStore, error) {
	store, err := openCacheStore(dsn)
	if err == nil {
		return store, nil
	}

	if !isRecoverableWALError(err) {
		return nil, err
	}
	dbPath := dbPathFromDSN(dsn)
	if dbPath == "" || !isWALStale(dbPath) {
		return nil, err
	}

	removeStaleWAL(dbPath)

	store, retryErr := openCacheStore(dsn)
	if retryErr != nil {
		return nil, fmt.Errorf("sqlite: open after WAL recovery: %w (original: %v)", retryErr, err)
	}
	logger.GetLogger("sqlite").Infow("recovered from stale WAL files", "path", dbPath)
	return store, nil
}

// NewCacheStoreFromURL opens a store from a sqlite:// URL. "sqlite://:memory:"
// and "sqlite://" give an in-memory database; anything else is a file path,
// e.g. sqlite:///var/lib/pinpoint/cache.db.
func NewCacheStoreFromURL(raw string) (*CacheStore, error) {
	if !strings.HasPrefix(raw, "sqlite://") {
		return nil, fmt.Errorf("sqlite: unsupported URL %q", raw)
	}
	dsn := strings.TrimPrefix(raw, "sqlite://")
	if dsn == "" {
		dsn = ":memory:"
	}
	return NewCacheStore(dsn)
}

func openCacheStore(dsn string) (*CacheStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open database: %w", err)
	}

	// One connection serialises writers and keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}

	return &CacheStore{db: db}, nil
}

// Get returns the entry for key or cache.ErrNotFound.
func (s *CacheStore) Get(ctx context.Context, key string) (*types.CacheEntry, error) {
	var (
		payload                         []byte
		createdAt, updatedAt, expiresAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, created_at, updated_at, expires_at FROM cache_entries WHERE key = ?`, key,
	).Scan(&payload, &createdAt, &updatedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cache.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get %q: %w", key, err)
	}

	return &types.CacheEntry{
		Key:       key,
		CreatedAt: time.Unix(0, createdAt).UTC(),
		UpdatedAt: time.Unix(0, updatedAt).UTC(),
		ExpiresAt: time.Unix(0, expiresAt).UTC(),
		Payload:   payload,
	}, nil
}

// Put upserts the entry. created_at is never overwritten.
func (s *CacheStore) Put(ctx context.Context, entry types.CacheEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, payload, created_at, updated_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			payload    = excluded.payload,
			updated_at = excluded.updated_at,
			expires_at = excluded.expires_at`,
		entry.Key, []byte(entry.Payload),
		entry.CreatedAt.UnixNano(), entry.UpdatedAt.UnixNano(), entry.ExpiresAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: put %q: %w", entry.Key, err)
	}
	return nil
}

// Delete removes key.
func (s *CacheStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("sqlite: delete %q: %w", key, err)
	}
	return nil
}

// Close checkpoints the WAL and closes the database.
func (s *CacheStore) Close() error {
	if s.db == nil {
		return nil
	}
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		logger.GetLogger("sqlite").Warnw("WAL checkpoint on close failed", "error", err)
	}
	return s.db.Close()
}

// dbPathFromDSN extracts the filesystem path from a DSN. It returns "" for
// in-memory databases.
func dbPathFromDSN(dsn string) string {
	if dsn == "" || dsn == ":memory:" {
		return ""
	}
	if strings.HasPrefix(dsn, "file:") {
		u, err := url.Parse(dsn)
		if err != nil {
			return ""
		}
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		if path == ":memory:" {
			return ""
		}
		return path
	}
	return dsn
}

func isRecoverableWALError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "disk I/O error") || strings.Contains(msg, "database is locked")
}

// isWALStale reports whether -shm/-wal files exist and no process holds them.
// Without lsof it answers false.
func isWALStale(dbPath string) bool {
	shm, wal := dbPath+"-shm", dbPath+"-wal"
	if !fileExists(shm) && !fileExists(wal) {
		return false
	}
	lsof, err := exec.LookPath("lsof")
	if err != nil {
		return false
	}
	out, err := exec.Command(lsof, "-t", dbPath, shm, wal).Output()
	if err != nil {
		// lsof exits 1 when nothing has the files open.
		return true
	}
	return strings.TrimSpace(string(out)) == ""
}

func removeStaleWAL(dbPath string) {
	for _, suffix := range []string{"-shm", "-wal"} {
		path := dbPath + suffix
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.GetLogger("sqlite").Warnw("failed to remove stale WAL file", "path", path, "error", err)
		}
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
