package fetch

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteCache is a CacheStore backed by a SQLite database, so validators
// survive process restarts and scheduled runs stay conditional. Implements
// RFC 2 section 2.3.
type SQLiteCache struct {
	db *sql.DB
}

// NewSQLiteCache opens or creates the cache database at the given path.
func NewSQLiteCache(dbPath string) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	cache := &SQLiteCache{db: db}
	if err := cache.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}

	return cache, nil
}

func (c *SQLiteCache) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS fetch_cache (
		url TEXT PRIMARY KEY,
		etag TEXT,
		last_modified TEXT,
		fetched_at TEXT NOT NULL
	);
	`

	_, err := c.db.Exec(schema)
	return err
}

// Get returns the cached validators for a URL.
func (c *SQLiteCache) Get(url string) (Entry, bool, error) {
	var etag, lastModified sql.NullString
	err := c.db.QueryRow(
		`SELECT etag, last_modified FROM fetch_cache WHERE url = ?`, url,
	).Scan(&etag, &lastModified)
	if err == sql.ErrNoRows {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("failed to query fetch cache: %w", err)
	}

	return Entry{ETag: etag.String, LastModified: lastModified.String}, true, nil
}

// Put records validators for a URL, replacing any previous entry.
func (c *SQLiteCache) Put(url string, entry Entry) error {
	_, err := c.db.Exec(
		`INSERT INTO fetch_cache (url, etag, last_modified, fetched_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(url) DO UPDATE SET
		   etag = excluded.etag,
		   last_modified = excluded.last_modified,
		   fetched_at = excluded.fetched_at`,
		url, entry.ETag, entry.LastModified, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to update fetch cache: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}
