// Package pricecache provides a TTL-bounded in-memory store for slow-changing
// prices (fund NAVs). A cold cache is a correct, if slower, starting state, so
// nothing here is persisted across restarts.
package pricecache

import (
	"sync"
	"time"
)

// DefaultTTL matches the end-of-day cadence of fund NAV publication.
const DefaultTTL = 24 * time.Hour

// Entry is one cached price with its provenance.
type Entry struct {
	Value    float64
	Source   string
	StoredAt time.Time
}

// Cache is a thread-safe key -> price store with a fixed TTL.
type Cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]Entry
	now     func() time.Time
}

// New creates a cache with the given TTL. A non-positive ttl falls back to
// DefaultTTL.
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]Entry),
		now:     time.Now,
	}
}

// Get returns the cached entry for key if it is still fresh. A miss (absent
// or expired) returns ok=false; it is not an error.
func (c *Cache) Get(key string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, exists := c.entries[key]
	if !exists {
		return Entry{}, false
	}
	if c.now().Sub(e.StoredAt) >= c.ttl {
		return Entry{}, false
	}
	return e, true
}

// GetStale returns the cached entry regardless of freshness. Stale data is
// better than no data when the upstream is down.
func (c *Cache) GetStale(key string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, exists := c.entries[key]
	return e, exists
}

// Put stores value under key unconditionally, recording the insertion time.
func (c *Cache) Put(key string, value float64, source string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = Entry{
		Value:    value,
		Source:   source,
		StoredAt: c.now(),
	}
}

// Invalidate drops one entry.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
}

// Clear drops all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]Entry)
}

// Len returns the number of entries, fresh or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// SweepExpired removes entries past their TTL and returns how many were
// dropped. Run from a maintenance job; Get already treats expired entries as
// misses, this just bounds memory.
func (c *Cache) SweepExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	cutoff := c.now().Add(-c.ttl)
	for k, e := range c.entries {
		if e.StoredAt.Before(cutoff) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}
