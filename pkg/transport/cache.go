package transport

import (
	"sync"
	"time"

	"soroscan/pkg/core"
)

// resultCache memoizes query results briefly so dashboard widgets polling in
// lockstep do not repeat identical requests. Safe for concurrent use.
// Expired entries are overwritten on the next Set; nothing sweeps them.
type resultCache struct {
	mu    sync.RWMutex
	items map[string]*cacheItem
	ttl   time.Duration
}

type cacheItem struct {
	res       *core.Result
	expiresAt time.Time
}

func newResultCache(ttl time.Duration) *resultCache {
	return &resultCache{
		items: make(map[string]*cacheItem),
		ttl:   ttl,
	}
}

// Get returns the cached result for key, or false if absent or expired.
func (c *resultCache) Get(key string) (*core.Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, exists := c.items[key]
	if !exists {
		return nil, false
	}
	if time.Now().After(item.expiresAt) {
		return nil, false
	}
	return item.res, true
}

// Set stores a result under key with the cache's TTL.
func (c *resultCache) Set(key string, res *core.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = &cacheItem{
		res:       res,
		expiresAt: time.Now().Add(c.ttl),
	}
}

// Clear removes all cached results.
func (c *resultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*cacheItem)
}
