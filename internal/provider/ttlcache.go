package provider

import (
	"sync"
	"time"
)

type cacheEntry struct {
	value     any
	expiresAt time.Time
}

// TTLCache is a bounded map with per-entry expiry. The provider client owns
// one for quote lookups and never shares it outside the package.
type TTLCache struct {
	mu         sync.Mutex
	entries    map[string]cacheEntry
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
}

func NewTTLCache(maxEntries int, ttl time.Duration) *TTLCache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &TTLCache{
		entries:    make(map[string]cacheEntry),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
	}
}

func (c *TTLCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

func (c *TTLCache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}

	// Still full after sweeping: drop the entry closest to expiry.
	if len(c.entries) >= c.maxEntries {
		if _, exists := c.entries[key]; !exists {
			var oldestKey string
			var oldest time.Time
			for k, e := range c.entries {
				if oldestKey == "" || e.expiresAt.Before(oldest) {
					oldestKey = k
					oldest = e.expiresAt
				}
			}
			delete(c.entries, oldestKey)
		}
	}

	c.entries[key] = cacheEntry{value: value, expiresAt: now.Add(c.ttl)}
}

func (c *TTLCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
