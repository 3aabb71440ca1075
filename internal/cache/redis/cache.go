// Package rediscache stores fetched page markup in Redis so repeated runs can skip the network.
package rediscache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces cache keys.
const DefaultPrefix = "jobscout:page:"

type client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// Cache implements scraper.PageCache.
type Cache struct {
	rdb    client
	ttl    time.Duration
	prefix string
}

// NewClient parses redisURL and verifies connectivity.
func NewClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL(%q): %w", redisURL, err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

// New wraps rdb. Entries expire after ttl; zero keeps them until evicted.
func New(rdb *redis.Client, ttl time.Duration) *Cache {
	return newWithClient(rdb, ttl)
}

func newWithClient(rdb client, ttl time.Duration) *Cache {
	return &Cache{rdb: rdb, ttl: ttl, prefix: DefaultPrefix}
}

// Get returns the cached body for url and whether it was present.
func (c *Cache) Get(ctx context.Context, url string) ([]byte, bool, error) {
	body, err := c.rdb.Get(ctx, c.prefix+url).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return body, true, nil
}

// Set stores body for url.
func (c *Cache) Set(ctx context.Context, url string, body []byte) error {
	if err := c.rdb.Set(ctx, c.prefix+url, body, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
