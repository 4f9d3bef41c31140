package stats

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultTTL is how long an admin snapshot stays fresh.
const DefaultTTL = 5 * time.Minute

// Invalidator is held by anything that mutates admin-visible counts.
type Invalidator interface {
	Invalidate()
}

// CacheStats counts lookups since the cache was built.
type CacheStats struct {
	Hits   uint64
	Misses uint64
}

// Cache is a single-slot snapshot of the admin dashboard. Expiry is lazy:
// nothing runs in the background, Get simply refuses a stale slot.
//
// The slot is shared by every admin because their view is identical. It must
// never hold per-caller data.
type Cache struct {
	mu    sync.Mutex
	data  *AdminStats
	at    time.Time
	ttl   time.Duration
	clock clockwork.Clock
	stats CacheStats
}

type CacheOption func(*Cache)

func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithClock(clock clockwork.Clock) CacheOption {
	return func(c *Cache) { c.clock = clock }
}

func NewCache(opts ...CacheOption) *Cache {
	c := &Cache{ttl: DefaultTTL, clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the snapshot if one is stored and younger than the TTL.
func (c *Cache) Get() (AdminStats, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.data == nil || c.clock.Since(c.at) >= c.ttl {
		c.stats.Misses++
		return AdminStats{}, false
	}
	c.stats.Hits++
	return *c.data, true
}

// Put overwrites the slot and restarts the TTL.
func (c *Cache) Put(s AdminStats) {
	c.mu.Lock()
	c.data = &s
	c.at = c.clock.Now()
	c.mu.Unlock()
}

func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.data = nil
	c.at = time.Time{}
	c.mu.Unlock()
}

func (c *Cache) TTL() time.Duration { return c.ttl }

func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
