package jwks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/redis/go-redis/v9"
)

// MemoryCache keeps the upstream key set in process for ttl.
type MemoryCache struct {
	upstream Source
	key      string
	items    *ttlcache.Cache[string, jwk.Set]
	mu       sync.Mutex // serializes upstream fetches on a miss
}

func NewMemoryCache(upstream Source, key string, ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		upstream: upstream,
		key:      key,
		items: ttlcache.New[string, jwk.Set](
			ttlcache.WithTTL[string, jwk.Set](ttl),
			ttlcache.WithDisableTouchOnHit[string, jwk.Set](),
		),
	}
}

func (c *MemoryCache) KeySet(ctx context.Context) (jwk.Set, error) {
	if it := c.items.Get(c.key); it != nil {
		return it.Value(), nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if it := c.items.Get(c.key); it != nil {
		return it.Value(), nil
	}
	set, err := c.upstream.KeySet(ctx)
	if err != nil {
		return nil, err
	}
	c.items.Set(c.key, set, ttlcache.DefaultTTL)
	return set, nil
}

func (c *MemoryCache) Invalidate(context.Context) error {
	c.items.Delete(c.key)
	return nil
}

// RedisCache stores the serialized key set in Redis so replicas share one fetch per ttl.
// Redis errors degrade to an upstream fetch.
type RedisCache struct {
	upstream Source
	rdb      *redis.Client
	key      string
	ttl      time.Duration
}

func NewRedisCache(upstream Source, rdb *redis.Client, key string, ttl time.Duration) *RedisCache {
	return &RedisCache{upstream: upstream, rdb: rdb, key: key, ttl: ttl}
}

func (c *RedisCache) KeySet(ctx context.Context) (jwk.Set, error) {
	raw, err := c.rdb.Get(ctx, c.key).Bytes()
	if err == nil {
		if set, perr := jwk.Parse(raw); perr == nil {
			return set, nil
		}
	} else if !errors.Is(err, redis.Nil) && ctx.Err() != nil {
		return nil, ctx.Err()
	}

	set, err := c.upstream.KeySet(ctx)
	if err != nil {
		return nil, err
	}
	buf, err := json.Marshal(set)
	if err != nil {
		return nil, fmt.Errorf("encode key set: %w", err)
	}
	// best effort: a failed write only costs another fetch
	_ = c.rdb.Set(ctx, c.key, buf, c.ttl).Err()
	return set, nil
}

func (c *RedisCache) Invalidate(ctx context.Context) error {
	return c.rdb.Del(ctx, c.key).Err()
}
