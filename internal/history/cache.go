package history

import (
	"sync"
	"time"
)

// contextCache is a TTL-bounded in-process cache of serialized context,
// keyed by user identity. It is the primary copy; the database is only
// consulted on a miss.
type contextCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
	maxSize int

	// now is replaceable for tests.
	now func() time.Time
}

type cacheEntry struct {
	raw     string
	expires time.Time
}

// defaultCacheMaxSize bounds the number of users held in the cache.
const defaultCacheMaxSize = 4096

func newContextCache(ttl time.Duration, maxSize int) *contextCache {
	if maxSize <= 0 {
		maxSize = defaultCacheMaxSize
	}
	return &contextCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// get returns the cached serialized context if present and unexpired.
func (c *contextCache) get(userID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[userID]
	if !ok {
		return "", false
	}
	if c.ttl > 0 && c.now().After(entry.expires) {
		delete(c.entries, userID)
		return "", false
	}
	return entry.raw, true
}

// set stores the serialized context and refreshes its TTL.
func (c *contextCache) set(userID, raw string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.entries[userID] = cacheEntry{raw: raw, expires: now.Add(c.ttl)}
	c.pruneLocked(now)
}

// delete removes a user's cached context.
func (c *contextCache) delete(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
}

// pruneLocked drops expired entries, then evicts arbitrary entries while
// over capacity. Eviction order is not significant: evicted users fall
// back to the database on their next read.
func (c *contextCache) pruneLocked(now time.Time) {
	if c.ttl > 0 {
		for key, entry := range c.entries {
			if now.After(entry.expires) {
				delete(c.entries, key)
			}
		}
	}
	for key := range c.entries {
		if len(c.entries) <= c.maxSize {
			break
		}
		delete(c.entries, key)
	}
}
