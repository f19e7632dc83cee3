package memory

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

type sized[V any] struct {
	value V
	size  int
}

// Stats counts lookups since the cache was built.
type Stats struct {
	Hits   uint64
	Misses uint64
	Loads  uint64
	Bytes  int
}

// Cache is an expiring LRU keyed by string with an optional byte budget.
// Concurrent misses on the same key share one load.
type Cache[V any] struct {
	mu       sync.Mutex
	lru      *expirable.LRU[string, sized[V]]
	maxBytes int64
	bytes    atomic.Int64
	group    singleflight.Group

	hits, misses, loads atomic.Uint64
}

func New[V any](maxEntries, maxBytes int, ttl time.Duration) *Cache[V] {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	c := &Cache[V]{maxBytes: int64(maxBytes)}
	// The eviction callback also fires from the expiry goroutine.
	c.lru = expirable.NewLRU[string, sized[V]](maxEntries, func(_ string, e sized[V]) {
		c.bytes.Add(-int64(e.size))
	}, ttl)
	return c
}

func (c *Cache[V]) Get(key string) (V, bool) {
	e, ok := c.lru.Get(key)
	if !ok {
		c.misses.Add(1)
		var zero V
		return zero, false
	}
	c.hits.Add(1)
	return e.value, true
}

// Set stores value, evicting the oldest entries while over the byte budget.
// A value larger than the whole budget is not kept.
func (c *Cache[V]) Set(key string, value V, size int) {
	if size < 0 {
		size = 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
	if c.maxBytes > 0 && int64(size) > c.maxBytes {
		return
	}
	c.lru.Add(key, sized[V]{value: value, size: size})
	c.bytes.Add(int64(size))
	for c.maxBytes > 0 && c.bytes.Load() > c.maxBytes {
		if _, _, ok := c.lru.RemoveOldest(); !ok {
			return
		}
	}
}

// GetOrLoad returns the cached value or runs load once for all concurrent
// callers of key. Failed loads are not cached.
func (c *Cache[V]) GetOrLoad(key string, load func() (V, int, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	out, err, _ := c.group.Do(key, func() (any, error) {
		c.loads.Add(1)
		v, size, err := load()
		if err != nil {
			return v, err
		}
		c.Set(key, v, size)
		return v, nil
	})
	return out.(V), err
}

func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
}

func (c *Cache[V]) Len() int { return c.lru.Len() }

func (c *Cache[V]) Stats() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Loads:  c.loads.Load(),
		Bytes:  int(c.bytes.Load()),
	}
}
