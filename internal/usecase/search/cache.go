package search

import (
	"sync"
	"time"

	"github.com/kailas-cloud/docsearch/internal/domain/search/result"
)

// Result cache sizing. Entries live for five minutes; beyond the entry
// cap the oldest entry is evicted on insert.
const (
	cacheTTL        = 5 * time.Minute
	cacheMaxEntries = 100
)

type cacheEntry struct {
	results  []result.Result
	storedAt time.Time
}

// queryCache memoizes final result pages for repeated unfiltered
// queries, keyed by query text, limit, and threshold. It sits above
// the embedding cache: a hit skips the provider round-trip AND the
// vector search.
type queryCache struct {
	mu         sync.Mutex
	entries    map[string]cacheEntry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

func newQueryCache(ttl time.Duration, maxEntries int) *queryCache {
	return &queryCache{
		entries:    make(map[string]cacheEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// get returns the cached results for key, dropping the entry when its
// TTL has elapsed.
func (c *queryCache) get(key string) ([]result.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.storedAt) >= c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return e.results, true
}

// put stores results under key, evicting the oldest entry when the
// cache is full.
func (c *queryCache) put(key string, results []result.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{results: results, storedAt: c.now()}

	if len(c.entries) <= c.maxEntries {
		return
	}
	var oldestKey string
	var oldestAt time.Time
	for k, e := range c.entries {
		if oldestKey == "" || e.storedAt.Before(oldestAt) {
			oldestKey = k
			oldestAt = e.storedAt
		}
	}
	delete(c.entries, oldestKey)
}
