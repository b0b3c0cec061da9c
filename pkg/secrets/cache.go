package secrets

import (
	"sync"
	"time"
)

type entry[T any] struct {
	value   T
	expires time.Time
}

// Cache holds decoded secrets for a fixed TTL. GetOrLoad collapses concurrent
// misses on the same key into a single load.
type Cache[T any] struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]entry[T]
	loading map[string]*sync.WaitGroup
}

func NewCache[T any](ttl time.Duration) *Cache[T] {
	return &Cache[T]{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry[T]),
		loading: make(map[string]*sync.WaitGroup),
	}
}

// lookup returns a live entry. Expired entries are evicted. Callers hold mu.
func (c *Cache[T]) lookup(key string) (T, bool) {
	e, ok := c.entries[key]
	if ok && !c.now().After(e.expires) {
		return e.value, true
	}
	if ok {
		delete(c.entries, key)
	}
	var zero T
	return zero, false
}

func (c *Cache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookup(key)
}

func (c *Cache[T]) Put(key string, value T) {
	c.mu.Lock()
	c.entries[key] = entry[T]{value: value, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// GetOrLoad returns the cached value for key, calling load on a miss. Only
// successful loads are cached. Callers that arrive while a load is in flight
// wait for it and then re-check the cache.
func (c *Cache[T]) GetOrLoad(key string, load func() (T, error)) (T, bool, error) {
	for {
		c.mu.Lock()
		if v, ok := c.lookup(key); ok {
			c.mu.Unlock()
			return v, true, nil
		}
		wg, busy := c.loading[key]
		if !busy {
			wg = &sync.WaitGroup{}
			wg.Add(1)
			c.loading[key] = wg
			c.mu.Unlock()
			break
		}
		c.mu.Unlock()
		wg.Wait()
	}

	v, err := load()

	c.mu.Lock()
	if err == nil {
		c.entries[key] = entry[T]{value: v, expires: c.now().Add(c.ttl)}
	}
	wg := c.loading[key]
	delete(c.loading, key)
	c.mu.Unlock()
	wg.Done()

	return v, false, err
}

// Bust drops key, e.g. after the secret was rotated.
func (c *Cache[T]) Bust(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
