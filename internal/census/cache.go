package census

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// Cache stores raw provider responses in SQLite so repeated runs do not
// hit the census API. Entries expire after the configured TTL.
type Cache struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

const cacheMigration = `
CREATE TABLE IF NOT EXISTS census_cache (
	key        TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	dataset    TEXT NOT NULL,
	body       BLOB NOT NULL,
	fetched_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_census_cache_expires_at ON census_cache(expires_at);
`

// OpenCache opens (or creates) the cache database at path.
func OpenCache(ctx context.Context, path string, ttl time.Duration) (*Cache, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrap(err, "census: create cache dir")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "census: open cache")
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "census: exec %s", pragma)
		}
	}
	if _, err := db.ExecContext(ctx, cacheMigration); err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "census: migrate cache")
	}

	return &Cache{db: db, ttl: ttl, now: time.Now}, nil
}

// Close releases the database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get returns a fresh entry for key. Expired entries are misses.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var body []byte
	err := c.db.QueryRowContext(ctx,
		`SELECT body FROM census_cache WHERE key = ? AND expires_at > ?`,
		key, c.now().Unix(),
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "census: read cache")
	}
	return body, true, nil
}

// Put stores body under key, replacing any previous entry.
func (c *Cache) Put(ctx context.Context, key, kind, dataset string, body []byte) error {
	now := c.now()
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO census_cache (key, kind, dataset, body, fetched_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
			kind = excluded.kind,
			dataset = excluded.dataset,
			body = excluded.body,
			fetched_at = excluded.fetched_at,
			expires_at = excluded.expires_at`,
		key, kind, dataset, body, now.Unix(), now.Add(c.ttl).Unix(),
	)
	return eris.Wrap(err, "census: write cache")
}

// Purge deletes every entry, or only expired ones when expiredOnly is set.
// Returns the number of rows removed.
func (c *Cache) Purge(ctx context.Context, expiredOnly bool) (int64, error) {
	q := `DELETE FROM census_cache`
	var args []any
	if expiredOnly {
		q += ` WHERE expires_at <= ?`
		args = append(args, c.now().Unix())
	}
	res, err := c.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, eris.Wrap(err, "census: purge cache")
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// CacheStats summarises cache contents.
type CacheStats struct {
	Entries int64
	Expired int64
	Bytes   int64
}

// Stats reports entry counts and stored bytes.
func (c *Cache) Stats(ctx context.Context) (CacheStats, error) {
	var s CacheStats
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN expires_at <= ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(LENGTH(body)), 0)
		 FROM census_cache`,
		c.now().Unix(),
	).Scan(&s.Entries, &s.Expired, &s.Bytes)
	if err != nil {
		return s, eris.Wrap(err, "census: cache stats")
	}
	return s, nil
}
