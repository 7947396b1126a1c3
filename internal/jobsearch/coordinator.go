// Package jobsearch fans one query out to several independent job boards,
// merges partial results, and caches them briefly.
package jobsearch

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chatstash/chatstash/internal/metrics"
	"github.com/chatstash/chatstash/internal/stash"
)

// DefaultTTL is how long a merged result stays valid.
const DefaultTTL = 5 * time.Minute

// Result is the merged response for one aggregated search.
type Result struct {
	Items           []stash.AggregatedResult `json:"items"`
	PerSourceCounts map[string]int           `json:"per_source_counts"`
	FailedSources   int                      `json:"failed_sources"`
	CacheHit        bool                     `json:"cache_hit"`
}

// Coordinator queries every configured source concurrently. Any subset of
// sources may fail without failing the call; even all sources failing
// yields an empty result plus the failure count.
type Coordinator struct {
	sources []Source
	cache   *queryCache
	logger  *zap.Logger
}

// NewCoordinator builds a Coordinator over a fixed source order. The order
// decides merge precedence: on duplicate URLs the earlier source wins.
func NewCoordinator(sources []Source, ttl time.Duration, clock stash.Clock, logger *zap.Logger) *Coordinator {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		sources: sources,
		cache:   newQueryCache(ttl, clock),
		logger:  logger,
	}
}

// Search returns merged job listings for the query. A cache hit
// short-circuits every outbound call.
func (c *Coordinator) Search(ctx context.Context, query string, limit int) (Result, error) {
	if limit <= 0 {
		limit = 20
	}
	key := normalizeQuery(query)

	if cached, ok := c.cache.get(key); ok {
		metrics.ObserveCacheLookup(true)
		cached.CacheHit = true
		return cached, nil
	}
	metrics.ObserveCacheLookup(false)

	perSource := make([][]stash.AggregatedResult, len(c.sources))
	errs := make([]error, len(c.sources))

	var wg sync.WaitGroup
	for i, source := range c.sources {
		i, source := i, source
		wg.Add(1)
		go func() {
			defer wg.Done()
			items, err := source.Search(ctx, query, limit)
			if err != nil {
				errs[i] = err
				return
			}
			perSource[i] = items
		}()
	}
	wg.Wait()

	result := Result{
		Items:           []stash.AggregatedResult{},
		PerSourceCounts: make(map[string]int, len(c.sources)),
	}
	seen := make(map[string]bool)
	for i, source := range c.sources {
		if errs[i] != nil {
			c.logger.Warn("job source failed",
				zap.String("source", source.Name()), zap.Error(errs[i]))
			metrics.ObserveSourceFailure(source.Name())
			result.FailedSources++
			continue
		}
		count := 0
		for _, item := range perSource[i] {
			id := normalizeURLKey(item.URL)
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			result.Items = append(result.Items, item)
			count++
		}
		result.PerSourceCounts[source.Name()] = count
	}
	if len(result.Items) > limit {
		result.Items = result.Items[:limit]
	}

	// A wholesale outage is not worth remembering for a full TTL.
	if result.FailedSources < len(c.sources) {
		c.cache.put(key, result)
	}
	return result, nil
}

// Invalidate drops the cached result for a query, if any.
func (c *Coordinator) Invalidate(query string) {
	c.cache.invalidate(normalizeQuery(query))
}

// normalizeURLKey is the cross-source dedup identity: lowercased URL with
// any trailing slash trimmed.
func normalizeURLKey(rawURL string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(rawURL)), "/")
}
