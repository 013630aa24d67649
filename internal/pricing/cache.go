package pricing

import (
	"fmt"
	"sync"
	"time"

	"github.com/parthgupta9/ride-pooling/internal/models"
)

// Cache is a tiny in-memory TTL cache for fare estimates keyed by coordinate
// pair and fare window (weekday + hour), so a quote cached just before a
// peak boundary never serves the stale multiplier across it. The estimate
// endpoint is read-only and hot, so repeated quotes for the same leg within
// the TTL are served without recomputation.
type Cache struct {
	mu    sync.RWMutex
	store map[string]cacheEntry
	ttl   time.Duration
}

type cacheEntry struct {
	b  Breakdown
	ts time.Time
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{store: make(map[string]cacheEntry), ttl: ttl}
}

func cacheKey(a, b models.Coord, passengers int, pooled bool, queueSize int, at time.Time) string {
	return fmt.Sprintf("%.6f,%.6f->%.6f,%.6f|p=%d|pool=%t|q=%d|w=%d-%d",
		a.Lat, a.Lon, b.Lat, b.Lon, passengers, pooled, queueSize,
		int(at.Weekday()), at.Hour())
}

// Get returns the cached breakdown and true if present and not expired.
func (c *Cache) Get(a, b models.Coord, passengers int, pooled bool, queueSize int, at time.Time) (Breakdown, bool) {
	k := cacheKey(a, b, passengers, pooled, queueSize, at)
	c.mu.RLock()
	e, ok := c.store[k]
	c.mu.RUnlock()
	if !ok {
		return Breakdown{}, false
	}
	if time.Since(e.ts) > c.ttl {
		c.mu.Lock()
		delete(c.store, k)
		c.mu.Unlock()
		return Breakdown{}, false
	}
	return e.b, true
}

func (c *Cache) Set(a, b models.Coord, passengers int, pooled bool, queueSize int, at time.Time, v Breakdown) {
	k := cacheKey(a, b, passengers, pooled, queueSize, at)
	c.mu.Lock()
	c.store[k] = cacheEntry{b: v, ts: time.Now()}
	c.mu.Unlock()
}
