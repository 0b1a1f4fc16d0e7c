// Package fetch performs conditional HTTP retrieval with retry and
// validator caching. Implements RFC 2 section 2.
package fetch

import "sync"

// Entry holds the cache validators recorded from a previous successful
// fetch of a URL.
type Entry struct {
	ETag         string
	LastModified string
}

// CacheStore persists fetch validators between requests. Implementations
// must be safe for concurrent use.
type CacheStore interface {
	Get(url string) (Entry, bool, error)
	Put(url string, entry Entry) error
	Close() error
}

// MemoryCache is an in-process CacheStore. Validators are lost when the
// process exits.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]Entry)}
}

// Get returns the cached validators for a URL.
func (c *MemoryCache) Get(url string) (Entry, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[url]
	return entry, ok, nil
}

// Put records validators for a URL, replacing any previous entry.
func (c *MemoryCache) Put(url string, entry Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[url] = entry
	return nil
}

// Close is a no-op for the memory cache.
func (c *MemoryCache) Close() error {
	return nil
}
