package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "authgate:tenant:"

// RedisCached wraps a Resolver with a Redis-backed cache shared across
// gateway replicas. Cache errors degrade to the inner resolver; Redis being
// down must never turn valid identities away.
type RedisCached struct {
	inner Resolver
	rdb   redis.UniversalClient
	ttl   time.Duration
}

// NewRedisCached builds the distributed caching decorator.
func NewRedisCached(inner Resolver, rdb redis.UniversalClient, ttl time.Duration) (*RedisCached, error) {
	if inner == nil {
		return nil, errors.New("tenant: inner resolver is required")
	}
	if rdb == nil {
		return nil, errors.New("tenant: redis client is required")
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCached{inner: inner, rdb: rdb, ttl: ttl}, nil
}

// ResolveTenant implements Resolver.
func (r *RedisCached) ResolveTenant(ctx context.Context, subject string) (*Context, error) {
	key := redisKeyPrefix + subject

	if data, err := r.rdb.Get(ctx, key).Bytes(); err == nil {
		var tc Context
		if err := json.Unmarshal(data, &tc); err == nil {
			return &tc, nil
		}
		// Undecodable entry: drop it and fall through to the store.
		r.rdb.Del(ctx, key)
	}

	tc, err := r.inner.ResolveTenant(ctx, subject)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(tc); err == nil {
		// Best effort; on failure the next request just resolves again.
		_ = r.rdb.Set(ctx, key, data, r.ttl).Err()
	}

	return tc, nil
}
