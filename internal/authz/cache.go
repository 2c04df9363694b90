package authz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const cacheVersionKey = "authz:perms:version"

// Cache stores resolved permission sets in Redis. Invalidation bumps a
// global version number embedded in every key, so stale entries simply age
// out under their TTL. A singleflight group collapses concurrent resolution
// of the same key into one store round trip.
type Cache struct {
	client   *redis.Client
	ttl      time.Duration
	observer MetricsObserver
	group    singleflight.Group
}

// NewCache instantiates the cache helper. The observer may be nil.
func NewCache(client *redis.Client, ttl time.Duration, observer MetricsObserver) *Cache {
	return &Cache{client: client, ttl: ttl, observer: observer}
}

// Version returns the current cache version, initialising it when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.Set(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// Invalidate bumps the cache version, orphaning every cached entry.
func (c *Cache) Invalidate(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, cacheVersionKey).Err()
}

// FetchPermissions loads a cached resolution result or populates it with
// the loader.
func (c *Cache) FetchPermissions(ctx context.Context, userID string, groupNames []string, grain, securableItem string, loader func(context.Context) ([]string, error)) ([]string, error) {
	if c == nil || c.client == nil {
		return loader(ctx)
	}

	key, err := c.buildKey(ctx, userID, groupNames, grain, securableItem)
	if err != nil {
		c.observe("miss")
		return loader(ctx)
	}

	cached, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var perms []string
		if err := json.Unmarshal(cached, &perms); err == nil {
			c.observe("hit")
			return perms, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("authz: cache get: %w", err)
	}
	c.observe("miss")

	result := c.group.DoChan(key, func() (any, error) {
		perms, err := loader(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(perms); err == nil {
			_ = c.client.Set(context.WithoutCancel(ctx), key, data, c.ttl).Err()
		}
		return perms, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-result:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]string), nil
	}
}

func (c *Cache) observe(result string) {
	if c.observer != nil {
		c.observer.ObserveCacheLookup(result)
	}
}

func (c *Cache) buildKey(ctx context.Context, userID string, groupNames []string, grain, securableItem string) (string, error) {
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	parts := []string{"authz:perms", userID, strings.Join(groupNames, ","), grain, securableItem}
	return fmt.Sprintf("%s:%d", strings.Join(parts, ":"), ver), nil
}
