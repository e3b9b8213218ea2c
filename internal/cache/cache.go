// Package cache is the async key-value store with TTL used to memoize
// generated SQL. Two backends exist: an in-process ttlcache and Redis.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/redis/go-redis/v9"
)

// Cache is the get/set/invalidate contract consumed by the SQL generator.
// A miss is reported as ok=false with a nil error.
type Cache interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

// Memory is a process-local cache.
type Memory struct {
	items *ttlcache.Cache[string, string]
}

// NewMemory returns a cache whose entries expire after defaultTTL unless
// Set is given a positive ttl.
func NewMemory(defaultTTL time.Duration) *Memory {
	c := ttlcache.New(
		ttlcache.WithTTL[string, string](defaultTTL),
		ttlcache.WithDisableTouchOnHit[string, string](),
	)
	go c.Start()
	return &Memory{items: c}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	item := m.items.Get(key)
	if item == nil {
		return "", false, nil
	}
	return item.Value(), true, nil
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = ttlcache.DefaultTTL
	}
	m.items.Set(key, value, ttl)
	return nil
}

func (m *Memory) Invalidate(_ context.Context, key string) error {
	m.items.Delete(key)
	return nil
}

// Len reports the number of live entries.
func (m *Memory) Len() int {
	return m.items.Len()
}

// Close stops the expiry loop.
func (m *Memory) Close() {
	m.items.Stop()
}

const redisPrefix = "flipquery:sql:"

// Redis shares cached SQL across instances.
type Redis struct {
	client     redis.Cmdable
	defaultTTL time.Duration
}

// NewRedis wraps an existing client.
func NewRedis(client redis.Cmdable, defaultTTL time.Duration) (*Redis, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	return &Redis{client: client, defaultTTL: defaultTTL}, nil
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, redisKey(key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get cached sql: %w", err)
	}
	return val, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = r.defaultTTL
	}
	if err := r.client.Set(ctx, redisKey(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("set cached sql: %w", err)
	}
	return nil
}

func (r *Redis) Invalidate(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, redisKey(key)).Err(); err != nil {
		return fmt.Errorf("invalidate cached sql: %w", err)
	}
	return nil
}

func redisKey(key string) string {
	if strings.HasPrefix(key, redisPrefix) {
		return key
	}
	return redisPrefix + key
}
