/*
cache.go - TTL cache for insight reports

PURPOSE:
  Reports aggregate several queries; dashboards poll them. The cache
  serves a computed report for a short TTL, keyed by horizon, and is
  invalidated on every successful inventory mutation (write-through
  from the engine side). Stale-but-within-TTL data is therefore only
  possible for reads that raced a mutation.
*/
package insights

import (
	"sync"
	"time"
)

// DefaultTTL is how long a cached report stays fresh absent any
// invalidation.
const DefaultTTL = 60 * time.Second

type cacheEntry struct {
	report  *Report
	expires time.Time
}

// Cache is a mutex-guarded TTL cache of reports keyed by horizon.
// It implements inventory.Invalidator.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[int]cacheEntry
	now     func() time.Time
}

// NewCache creates a Cache. ttl <= 0 selects DefaultTTL.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{ttl: ttl, entries: make(map[int]cacheEntry), now: time.Now}
}

// Get returns the cached report for a horizon if it is still fresh.
func (c *Cache) Get(horizonDays int) (*Report, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[horizonDays]
	if !ok || c.now().After(entry.expires) {
		return nil, false
	}
	return entry.report, true
}

// Put stores a report for a horizon.
func (c *Cache) Put(horizonDays int, report *Report) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[horizonDays] = cacheEntry{report: report, expires: c.now().Add(c.ttl)}
}

// Invalidate drops every cached report. Called by the inventory engine
// after each successful mutation.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[int]cacheEntry)
}
