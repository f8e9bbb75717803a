// Package cache provides in-memory caching for filter lists and conversion results.
package cache

import (
	"encoding/gob"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// ListCache holds downloaded filter lists keyed by URL
type ListCache struct {
	mu          sync.RWMutex
	lists       map[string]*listEntry
	ttl         time.Duration
	persistPath string
}

type listEntry struct {
	Body      []byte
	ETag      string
	Timestamp time.Time
}

// NewListCache creates a new ListCache with the specified TTL
func NewListCache(ttl time.Duration) *ListCache {
	return &ListCache{
		lists: make(map[string]*listEntry),
		ttl:   ttl,
	}
}

// SetPersistPath enables on-disk persistence for the list cache.
func (c *ListCache) SetPersistPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.persistPath = path
}

// Get returns the cached body if it is still fresh, and the current ETag
func (c *ListCache) Get(url string) ([]byte, string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.lists[url]
	if !ok {
		return nil, "", false
	}

	if time.Since(entry.Timestamp) > c.ttl {
		return entry.Body, entry.ETag, false
	}

	return entry.Body, entry.ETag, true
}

// GetAny returns the cached body regardless of TTL.
func (c *ListCache) GetAny(url string) ([]byte, string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.lists[url]
	if !ok {
		return nil, "", false
	}
	return entry.Body, entry.ETag, true
}

// Set stores a freshly downloaded list
func (c *ListCache) Set(url string, body []byte, etag string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lists[url] = &listEntry{
		Body:      body,
		ETag:      etag,
		Timestamp: time.Now(),
	}
	if c.persistPath == "" {
		return nil
	}
	return c.persistToFileLocked()
}

// Touch marks a cached list as fresh without replacing it.
func (c *ListCache) Touch(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.lists[url]; ok {
		entry.Timestamp = time.Now()
	}
}

// GetETag returns the ETag of a cached list
func (c *ListCache) GetETag(url string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if entry, ok := c.lists[url]; ok {
		return entry.ETag
	}
	return ""
}

// LoadFromFile restores cache data from disk if available.
func (c *ListCache) LoadFromFile(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	var persisted map[string]*listEntry
	if err := gob.NewDecoder(file).Decode(&persisted); err != nil {
		return err
	}

	for url, entry := range persisted {
		c.lists[url] = entry
	}
	c.persistPath = path
	return nil
}

func (c *ListCache) persistToFileLocked() error {
	if c.persistPath == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(c.persistPath), 0o755); err != nil {
		return err
	}

	tmpPath := c.persistPath + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return err
	}

	err = gob.NewEncoder(file).Encode(c.lists)
	closeErr := file.Close()
	if err != nil {
		os.Remove(tmpPath) // cleanup on failure
		return err
	}
	if closeErr != nil {
		os.Remove(tmpPath) // cleanup on failure
		return closeErr
	}

	return os.Rename(tmpPath, c.persistPath)
}

// ResultCache caches rendered conversion results
type ResultCache struct {
	mu      sync.RWMutex
	results map[string]*cacheEntry
	ttl     time.Duration
}

type cacheEntry struct {
	value     []byte
	timestamp time.Time
	etag      string
}

// NewResultCache creates a new ResultCache with the specified TTL
func NewResultCache(ttl time.Duration) *ResultCache {
	return &ResultCache{
		results: make(map[string]*cacheEntry),
		ttl:     ttl,
	}
}

// ResultKey derives a cache key from the parameters that shape a result.
func ResultKey(parts ...string) string {
	d := xxhash.New()
	for _, p := range parts {
		d.WriteString(p)
		d.Write([]byte{0})
	}
	var sum [8]byte
	return hex.EncodeToString(d.Sum(sum[:0]))
}

// Get retrieves a cached result if valid
func (c *ResultCache) Get(key, etag string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.results[key]
	if !ok {
		return nil, false
	}

	// Check if ETag matches and not expired
	if entry.etag != etag || time.Since(entry.timestamp) > c.ttl {
		return nil, false
	}

	return entry.value, true
}

// Set stores a result in the cache
func (c *ResultCache) Set(key string, value []byte, etag string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.results[key] = &cacheEntry{
		value:     value,
		timestamp: time.Now(),
		etag:      etag,
	}
}

// Len returns the number of cached results, expired ones included.
func (c *ResultCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.results)
}

// Cleanup removes expired entries
func (c *ResultCache) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.results {
		if now.Sub(entry.timestamp) > c.ttl {
			delete(c.results, key)
		}
	}
}
