package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	gocache "github.com/patrickmn/go-cache"
)

// ErrCacheMiss is returned by Cache.Get for absent keys.
var ErrCacheMiss = errors.New("cache miss")

// Cache abstracts the key/value operations used by the use case to make testing easier.
type Cache interface {
	Set(ctx context.Context, key string, value string, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

// RedisCache is a concrete implementation backed by go-redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache constructs a new Redis-backed cache adapter.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Set writes a value to Redis.
func (c *RedisCache) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

// Get retrieves a cached value from Redis.
func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	value, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	return value, err
}

// MemoryCache is an in-process fallback used when Redis is not configured.
type MemoryCache struct {
	store *gocache.Cache
}

// NewMemoryCache creates an in-process cache. A cleanupInterval of zero
// disables the background janitor.
func NewMemoryCache(defaultExpiration, cleanupInterval time.Duration) *MemoryCache {
	return &MemoryCache{store: gocache.New(defaultExpiration, cleanupInterval)}
}

// Set stores a value.
func (c *MemoryCache) Set(_ context.Context, key string, value string, expiration time.Duration) error {
	c.store.Set(key, value, expiration)
	return nil
}

// Get returns a stored value or ErrCacheMiss.
func (c *MemoryCache) Get(_ context.Context, key string) (string, error) {
	v, ok := c.store.Get(key)
	if !ok {
		return "", ErrCacheMiss
	}
	s, ok := v.(string)
	if !ok {
		return "", ErrCacheMiss
	}
	return s, nil
}
