package zmanim

import (
	"sync"
	"time"

	"github.com/McdWebs/WA-bot-sub000/internal/domain"
)

// DefaultCacheTTL is how long resolved event times are reused.
const DefaultCacheTTL = time.Hour

const sweepThreshold = 1024

type cacheEntry struct {
	times    domain.EventTimes
	storedAt time.Time
}

// Cache is an in-process, time-bounded cache keyed by (location, date).
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewCache creates a Cache; ttl <= 0 uses DefaultCacheTTL.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{entries: make(map[string]cacheEntry), ttl: ttl, now: time.Now}
}

func cacheKey(location, date string) string {
	return normalizeLocation(location) + "|" + date
}

// Get returns fresh times for (location, date).
func (c *Cache) Get(location, date string) (domain.EventTimes, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := cacheKey(location, date)
	e, ok := c.entries[key]
	if !ok {
		return domain.EventTimes{}, false
	}
	if c.now().Sub(e.storedAt) >= c.ttl {
		delete(c.entries, key)
		return domain.EventTimes{}, false
	}
	return e.times, true
}

// Put stores times for (location, date).
func (c *Cache) Put(location, date string, times domain.EventTimes) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if len(c.entries) >= sweepThreshold {
		for k, e := range c.entries {
			if now.Sub(e.storedAt) >= c.ttl {
				delete(c.entries, k)
			}
		}
	}
	c.entries[cacheKey(location, date)] = cacheEntry{times: times, storedAt: now}
}

// Len returns the number of stored entries, fresh or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
