package respcache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vigilhq/vigil-master/internal/resilient"
)

// ErrUnavailable reports that the cache service is not reachable. Reads
// degrade to misses before callers ever see it; it surfaces only from
// operations that cannot degrade, like rate-limit counters and Ping.
var ErrUnavailable = errors.New("cache service unavailable")

// Cache is the secondary-cache interface. All operations go through here.
// Implementations must be safe for concurrent use.
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error)
	Ping(ctx context.Context) error
}

// RedisCache implements Cache over the resilient redis client.
type RedisCache struct {
	client *resilient.Client[*redis.Client]
}

// NewRedisCache wraps a resilient redis client.
func NewRedisCache(client *resilient.Client[*redis.Client]) *RedisCache {
	return &RedisCache{client: client}
}

// Ping reports cache-service liveness for the health endpoint.
func (c *RedisCache) Ping(ctx context.Context) error {
	h, err := c.client.Handle()
	if err != nil {
		return ErrUnavailable
	}
	if err := h.Conn.Ping(ctx).Err(); err != nil {
		c.client.Lost(h)
		return ErrUnavailable
	}
	return nil
}

// Get returns the cached value, treating a down cache as a miss.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	h, err := c.client.Handle()
	if err != nil {
		return nil, false, nil
	}
	val, err := h.Conn.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		c.lostOn(h, err)
		return nil, false, nil
	}
	return val, true, nil
}

// Set stores value under key. A down cache drops the write silently; the
// entry will be rebuilt on a later read.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	h, err := c.client.Handle()
	if err != nil {
		return nil
	}
	if err := h.Conn.Set(ctx, key, value, ttl).Err(); err != nil {
		c.lostOn(h, err)
	}
	return nil
}

// Delete removes key. Propagates failure: a missed invalidation must not
// pass silently, unlike a missed fill.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	h, err := c.client.Handle()
	if err != nil {
		return ErrUnavailable
	}
	if err := h.Conn.Del(ctx, key).Err(); err != nil {
		c.lostOn(h, err)
		return ErrUnavailable
	}
	return nil
}

// IncrWithExpiry bumps a counter and refreshes its window atomically.
func (c *RedisCache) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	h, err := c.client.Handle()
	if err != nil {
		return 0, ErrUnavailable
	}
	pipe := h.Conn.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, expiry)
	if _, err := pipe.Exec(ctx); err != nil {
		c.lostOn(h, err)
		return 0, ErrUnavailable
	}
	return incr.Val(), nil
}

// lostOn reports the handle lost unless the failure came from the caller's
// context, which says nothing about the connection.
func (c *RedisCache) lostOn(h resilient.Handle[*redis.Client], err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	c.client.Lost(h)
}
