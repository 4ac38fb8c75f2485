// Package memkv implements ports.KVCache as a bounded, in-process LRU cache.
// It is the zero-dependency default (CACHE_DRIVER=memory): adequate for a
// single-replica deployment, but sessions/rate counters/token cache do not
// survive a restart and are not shared across replicas (use adapter/rediskv
// for that).
package memkv

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/pkgmirror/core/internal/ports"
)

type entry struct {
	value     string
	expiresAt time.Time
}

// Cache is a bounded LRU with per-key TTL, checked lazily on Get.
type Cache struct {
	mu    sync.Mutex
	inner *lru.Cache[string, entry]
}

// New builds a Cache holding up to maxEntries keys. Eviction is LRU once
// full; TTL expiry is enforced independently at read time.
func New(maxEntries int) (*Cache, error) {
	inner, err := lru.New[string, entry](maxEntries)
	if err != nil {
		return nil, err
	}
	return &Cache{inner: inner}, nil
}

var _ ports.KVCache = (*Cache)(nil)

func (c *Cache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.inner.Get(key)
	if !ok {
		return "", nil
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		c.inner.Remove(key)
		return "", nil
	}
	return e.value, nil
}

func (c *Cache) Put(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	c.inner.Add(key, entry{value: value, expiresAt: expiresAt})
	return nil
}

func (c *Cache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Remove(key)
	return nil
}
