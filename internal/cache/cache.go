package cache

import (
	"sync"
	"time"
)

// Cache is a TTL keyed store. A zero TTL never expires.
type Cache[V any] struct {
	sync.RWMutex
	items map[string]item[V]
	now   func() time.Time
	done  chan struct{}
	once  sync.Once
}

type item[V any] struct {
	value      V
	expiration int64
}

// New starts a cache that sweeps expired entries every interval.
func New[V any](interval time.Duration) *Cache[V] {
	c := &Cache[V]{
		items: make(map[string]item[V]),
		now:   time.Now,
		done:  make(chan struct{}),
	}
	if interval > 0 {
		go c.startCleanup(interval)
	}
	return c
}

func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	c.Lock()
	defer c.Unlock()

	var expiration int64
	if ttl > 0 {
		expiration = c.now().Add(ttl).UnixNano()
	}
	c.items[key] = item[V]{value: value, expiration: expiration}
}

func (c *Cache[V]) Get(key string) (V, bool) {
	c.RLock()
	defer c.RUnlock()

	var zero V
	it, exists := c.items[key]
	if !exists {
		return zero, false
	}
	if it.expiration > 0 && c.now().UnixNano() > it.expiration {
		return zero, false
	}
	return it.value, true
}

func (c *Cache[V]) Delete(key string) {
	c.Lock()
	defer c.Unlock()
	delete(c.items, key)
}

func (c *Cache[V]) Len() int {
	c.RLock()
	defer c.RUnlock()
	return len(c.items)
}

// Close stops the sweeper.
func (c *Cache[V]) Close() {
	c.once.Do(func() { close(c.done) })
}

func (c *Cache[V]) startCleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.done:
			return
		}
	}
}

func (c *Cache[V]) cleanup() {
	c.Lock()
	defer c.Unlock()

	now := c.now().UnixNano()
	for key, it := range c.items {
		if it.expiration > 0 && now > it.expiration {
			delete(c.items, key)
		}
	}
}
