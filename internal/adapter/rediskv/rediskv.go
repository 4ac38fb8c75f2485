// Package rediskv implements ports.KVCache against Redis
// (CACHE_DRIVER=redis), giving sessions, the token burst cache, and rate
// counters a shared view across proxy replicas that adapter/memkv cannot
// provide.
package rediskv

import (
	"context"
	"time"

	"github.com/go-redis/redis"

	"github.com/pkgmirror/core/internal/ports"
)

// Cache wraps a single go-redis client. addr is a plain "host:port" pair;
// CACHE_URL is parsed down to that form by the caller (cmd/server's
// parseRedisURL).
type Cache struct {
	client *redis.Client
}

func New(addr, password string, db int) *Cache {
	return &Cache{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

var _ ports.KVCache = (*Cache)(nil)

func (c *Cache) Get(_ context.Context, key string) (string, error) {
	val, err := c.client.Get(key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (c *Cache) Put(_ context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(key, value, ttl).Err()
}

func (c *Cache) Delete(_ context.Context, key string) error {
	return c.client.Del(key).Err()
}

// Ping verifies connectivity at startup.
func (c *Cache) Ping() error {
	return c.client.Ping().Err()
}
