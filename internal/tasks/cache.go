package tasks

import (
	"fmt"
	"sync"

	"github.com/desertthunder/taskdiff/internal/models"
)

// RequestCache is a key/value store scoped to a single comparison request.
// The fetch workers serving that one request share it, which is the only
// reason access is mutex-guarded; a cache is never shared across requests.
type RequestCache struct {
	mu      sync.Mutex
	entries map[string]any
	hits    int
	misses  int
}

func NewRequestCache() *RequestCache {
	return &RequestCache{entries: make(map[string]any)}
}

// Get returns the cached value for key and whether it was present. Every
// call counts toward the hit/miss totals reported by [RequestCache.Clear].
func (c *RequestCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, ok := c.entries[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return value, ok
}

func (c *RequestCache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
}

// Clear empties the cache and returns the final statistics. The cache stays
// usable afterward with counters reset to zero.
func (c *RequestCache) Clear() models.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := models.CacheStats{
		Hits:           c.hits,
		Misses:         c.misses,
		EntriesCleared: len(c.entries),
	}
	c.entries = make(map[string]any)
	c.hits = 0
	c.misses = 0
	return stats
}

// Stats returns a snapshot of the counters without clearing anything.
func (c *RequestCache) Stats() models.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return models.CacheStats{
		Hits:           c.hits,
		Misses:         c.misses,
		EntriesCleared: len(c.entries),
	}
}

// Cache keys mirror the shape of the remote call they stand in for.

func CommitsPageKey(ref string, page, perPage int) string {
	return fmt.Sprintf("commits:%s:p%d:n%d", ref, page, perPage)
}

func CompareKey(from, to string) string {
	return fmt.Sprintf("compare:%s:%s", from, to)
}

func TagsKey(project string) string {
	return fmt.Sprintf("tags:%s", project)
}

func BranchTasksKey(ref string) string {
	return fmt.Sprintf("branch_tasks:%s", ref)
}
