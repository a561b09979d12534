package auth

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Cache stores successful authentication results keyed by
// `(username, sha256(password))` for cacheTTL (§4.8). A cache miss or
// backing-store error is treated identically by callers: fall through
// to the credential endpoint.
type Cache interface {
	Get(ctx context.Context, key string) (*Result, bool)
	Set(ctx context.Context, key string, result *Result, ttl time.Duration)
}

// MemCache is an in-process map+TTL cache, used when no Redis endpoint
// is configured and in tests.
type MemCache struct {
	mu      sync.Mutex
	entries map[string]memEntry
}

type memEntry struct {
	result  *Result
	expires time.Time
}

// NewMemCache builds an empty in-process cache.
func NewMemCache() *MemCache {
	return &MemCache{entries: make(map[string]memEntry)}
}

func (c *MemCache) Get(_ context.Context, key string) (*Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return e.result, true
}

func (c *MemCache) Set(_ context.Context, key string, result *Result, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memEntry{result: result, expires: time.Now().Add(ttl)}
}

// RedisCache backs the auth cache with Redis, so cache hits survive an
// Edge/Hub restart and are shared across a multi-process Hub
// deployment. Failures fail open (treated as a miss), matching the
// pack's own KV-store fail-open convention for non-critical lookups.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache wraps an existing go-redis client.
func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) Get(ctx context.Context, key string) (*Result, bool) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Warn().Err(err).Msg("auth: redis cache read failed, falling through")
		}
		return nil, false
	}
	var result Result
	if err := json.Unmarshal(raw, &result); err != nil {
		log.Warn().Err(err).Msg("auth: redis cache entry corrupt, falling through")
		return nil, false
	}
	return &result, true
}

func (c *RedisCache) Set(ctx context.Context, key string, result *Result, ttl time.Duration) {
	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.prefix+key, raw, ttl).Err(); err != nil {
		log.Warn().Err(err).Msg("auth: redis cache write failed")
	}
}
