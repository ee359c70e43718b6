package pipeline

import (
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/go-places-prefetch/models"
)

// BuildCache deduplicates lookups for one build invocation. It lives in
// memory only and is dropped with the process.
type BuildCache struct {
	entries *lru.Cache[string, *models.PlaceRecord]
	hits    atomic.Int64
	misses  atomic.Int64
}

// NewBuildCache returns a cache bounded to size queries.
func NewBuildCache(size int) (*BuildCache, error) {
	entries, err := lru.New[string, *models.PlaceRecord](size)
	if err != nil {
		return nil, fmt.Errorf("create build cache: %w", err)
	}
	return &BuildCache{entries: entries}, nil
}

// Get returns the cached record for query.
func (c *BuildCache) Get(query string) (*models.PlaceRecord, bool) {
	if c == nil {
		return nil, false
	}
	record, ok := c.entries.Get(query)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return record, ok
}

// Add stores a successful lookup. Nil records are ignored so failures are retried.
func (c *BuildCache) Add(query string, record *models.PlaceRecord) {
	if c == nil || record == nil {
		return
	}
	c.entries.Add(query, record)
}

// Len returns the number of cached queries.
func (c *BuildCache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}

// Purge empties the cache.
func (c *BuildCache) Purge() {
	if c == nil {
		return
	}
	c.entries.Purge()
}

// Stats returns hit and miss counts since creation.
func (c *BuildCache) Stats() (hits, misses int64) {
	if c == nil {
		return 0, 0
	}
	return c.hits.Load(), c.misses.Load()
}
