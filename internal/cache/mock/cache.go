// Package mock provides an in-memory cache.Cache for tests.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/kiranshivaraju/tenantcore/internal/cache"
)

type entry struct {
	value   []byte
	counter int64
	expires time.Time
}

// Cache satisfies cache.Cache in memory. Expiry is evaluated against Now.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry

	// Err, when set, is returned by every operation.
	Err error
	Now func() time.Time
}

var _ cache.Cache = (*Cache)(nil)

func NewCache() *Cache {
	return &Cache{entries: make(map[string]*entry), Now: time.Now}
}

func (c *Cache) live(key string) (*entry, bool) {
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !e.expires.IsZero() && !c.Now().Before(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return e, true
}

func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	e := &entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expires = c.Now().Add(ttl)
	}
	c.entries[key] = e
	return nil
}

func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, false, c.Err
	}
	e, ok := c.live(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

func (c *Cache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	delete(c.entries, key)
	return nil
}

func (c *Cache) Ping(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Err
}

func (c *Cache) IncrWithExpiry(_ context.Context, key string, expiry time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return 0, c.Err
	}
	e, ok := c.live(key)
	if !ok {
		e = &entry{expires: c.Now().Add(expiry)}
		c.entries[key] = e
	}
	e.counter++
	return e.counter, nil
}

// Has reports whether key holds a live entry.
func (c *Cache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.live(key)
	return ok
}
