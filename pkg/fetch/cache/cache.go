// Package cache provides the fetcher's cross-process shared state: the
// per-origin robots.txt cache (TTL robots_ttl, default 24h) and the
// blocked-origin cooldown (default 30m), both shared across the fleet via
// Redis so that every worker pod benefits from one pod's robots fetch or
// block detection (spec §4.C).
package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	pipelineerrors "github.com/dioceseharvest/pipeline/pkg/shared/errors"
)

const (
	robotsKeyPrefix   = "robots:"
	cooldownKeyPrefix = "cooldown:"
)

// Cache is the Redis-backed shared cache. A nil *redis.Client degrades to
// a local-only cache (useful for single-node "worker_type=all" dev runs
// without Redis).
type Cache struct {
	client *redis.Client
	local  *localCache
}

// New builds a Cache against addr. If addr is empty, the cache runs in
// local-only mode.
func New(addr string) *Cache {
	if addr == "" {
		return &Cache{local: newLocalCache()}
	}
	return &Cache{client: redis.NewClient(&redis.Options{Addr: addr})}
}

// NewWithClient wraps an existing *redis.Client (used by tests against
// miniredis).
func NewWithClient(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// PutRobots caches the raw robots.txt body for origin for ttl.
func (c *Cache) PutRobots(ctx context.Context, origin, body string, ttl time.Duration) error {
	if c.local != nil {
		c.local.put(robotsKeyPrefix+origin, body, ttl)
		return nil
	}
	if err := c.client.Set(ctx, robotsKeyPrefix+origin, body, ttl).Err(); err != nil {
		return pipelineerrors.FailedToWithDetails("cache robots.txt", "fetch-cache", origin, err)
	}
	return nil
}

// GetRobots returns the cached robots.txt body for origin, and whether it
// was present (not expired).
func (c *Cache) GetRobots(ctx context.Context, origin string) (string, bool, error) {
	if c.local != nil {
		v, ok := c.local.get(robotsKeyPrefix + origin)
		return v, ok, nil
	}
	val, err := c.client.Get(ctx, robotsKeyPrefix+origin).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, pipelineerrors.FailedToWithDetails("read cached robots.txt", "fetch-cache", origin, err)
	}
	return val, true, nil
}

// MarkBlocked puts origin into cooldown for ttl (spec §4.C: "the origin is
// added to a short-lived in-memory cool-down ... that short-circuits
// subsequent requests with Blocked").
func (c *Cache) MarkBlocked(ctx context.Context, origin string, ttl time.Duration) error {
	if c.local != nil {
		c.local.put(cooldownKeyPrefix+origin, "1", ttl)
		return nil
	}
	if err := c.client.Set(ctx, cooldownKeyPrefix+origin, "1", ttl).Err(); err != nil {
		return pipelineerrors.FailedToWithDetails("mark origin blocked", "fetch-cache", origin, err)
	}
	return nil
}

// IsBlocked reports whether origin is currently in cooldown.
func (c *Cache) IsBlocked(ctx context.Context, origin string) (bool, error) {
	if c.local != nil {
		_, ok := c.local.get(cooldownKeyPrefix + origin)
		return ok, nil
	}
	n, err := c.client.Exists(ctx, cooldownKeyPrefix+origin).Result()
	if err != nil {
		return false, pipelineerrors.FailedToWithDetails("check origin cooldown", "fetch-cache", origin, err)
	}
	return n > 0, nil
}

// Close releases the underlying Redis connection, if any.
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
