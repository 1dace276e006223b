package store

import (
	"context"
	"path"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/stemformatics/mcp/metrics"
)

// The Redis cache stores upstream response payloads as raw byte values
// under `/<prefix>/apicache/<fingerprint>` with a server-side TTL, so
// several server instances can share one warm cache. Single-flight
// suppression is per process; two instances may race on a cold key, which
// is harmless since entries are write-once until expiry.

type redisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration

	group singleflight.Group
}

// NewRedisCache creates a Redis-backed cache with the given key prefix and
// entry TTL.
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) Cache {
	return &redisCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (c *redisCache) key(fingerprint string) string {
	return path.Join(c.prefix, "apicache", fingerprint)
}

func (c *redisCache) get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, errors.Wrap(err, "failed to read cache entry from Redis")
	}
	return data, true, nil
}

// GetOrFetch implements Cache.
func (c *redisCache) GetOrFetch(ctx context.Context, key string, fetch FetchFunc) ([]byte, error) {
	if v, ok, err := c.get(ctx, key); err == nil && ok {
		metrics.RecordCacheHit()
		return v, nil
	}

	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		if v, ok, err := c.get(fetchCtx, key); err == nil && ok {
			metrics.RecordCacheHit()
			return v, nil
		}
		// One miss per single-flight fetch, not per waiting caller.
		metrics.RecordCacheMiss()
		v, err := fetch(fetchCtx)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(fetchCtx, c.key(key), v, c.ttl).Err(); err != nil {
			// A failed cache write is not a failed fetch.
			logger.KV(xlog.WARNING, "reason", "redis set", "key", key, "err", err.Error())
		}
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate implements Cache.
func (c *redisCache) Invalidate(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		return errors.Wrap(err, "failed to invalidate cache entry in Redis")
	}
	return nil
}

// Purge implements Cache.
func (c *redisCache) Purge(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, path.Join(c.prefix, "apicache")+"/*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return errors.Wrap(err, "failed to purge cache entry from Redis")
		}
	}
	if err := iter.Err(); err != nil {
		return errors.Wrap(err, "failed to scan cache entries in Redis")
	}
	return nil
}
