package jobsearch

import (
	"strings"
	"sync"
	"time"

	"github.com/chatstash/chatstash/internal/stash"
)

// queryCache holds merged results per normalized query for a short TTL.
// Entries are evicted on expiry or explicit invalidation only; query
// volume is assumed small, so no size-based eviction exists.
type queryCache struct {
	ttl   time.Duration
	clock stash.Clock

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	result   Result
	storedAt time.Time
}

func newQueryCache(ttl time.Duration, clock stash.Clock) *queryCache {
	return &queryCache{
		ttl:     ttl,
		clock:   clock,
		entries: make(map[string]cacheEntry),
	}
}

func (c *queryCache) get(key string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return Result{}, false
	}
	if c.clock.Now().Sub(entry.storedAt) > c.ttl {
		delete(c.entries, key)
		return Result{}, false
	}
	return entry.result, true
}

func (c *queryCache) put(key string, result Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{result: result, storedAt: c.clock.Now()}
}

func (c *queryCache) invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// normalizeQuery lowercases and collapses interior whitespace so "Go Dev"
// and " go   dev " share one cache entry.
func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}
