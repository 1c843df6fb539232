package domain

import (
	"strings"
	"sync"
	"time"
)

type cacheEntry struct {
	payload   any
	writtenAt time.Time
}

// ResponseCache is a short-TTL keyed cache for idempotent discovery calls.
// Entries expire a fixed duration after being written, not on access.
type ResponseCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewResponseCache(ttl time.Duration) *ResponseCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &ResponseCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the payload stored under key, or nil when absent. An expired
// entry is removed on the way out.
func (c *ResponseCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.writtenAt) >= c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return entry.payload, true
}

// Set stores a payload under key, stamping the write time.
func (c *ResponseCache) Set(key string, payload any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{
		payload:   payload,
		writtenAt: c.now(),
	}
}

// Delete removes a single key.
func (c *ResponseCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// InvalidateMatching removes every key containing the substring. Connection
// invalidation uses this to purge all entries scoped to an endpoint.
func (c *ResponseCache) InvalidateMatching(substring string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if strings.Contains(key, substring) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Cleanup removes expired entries.
func (c *ResponseCache) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, entry := range c.entries {
		if now.Sub(entry.writtenAt) >= c.ttl {
			delete(c.entries, key)
		}
	}
}

// Size returns the current number of entries.
func (c *ResponseCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
