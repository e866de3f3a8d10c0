package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/ewfx/sradg-ai-innovators/internal/domain"
)

// Cache stores capability responses keyed by content hash, so identical
// inputs never trigger a second model call. Failures are swallowed: a cache
// is an optimization, never a failure source.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string)
}

// MemoryCache is the in-process default backend.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]string
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]string)}
}

func (c *MemoryCache) Get(ctx context.Context, key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok
}

func (c *MemoryCache) Set(ctx context.Context, key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
}

// RedisCache shares responses across processes.
type RedisCache struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, keyPrefix: "sradg:llm:", ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool) {
	v, err := c.client.Get(ctx, c.keyPrefix+key).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		log.Warn().Err(err).Msg("redis cache get failed")
		return "", false
	}
	return v, true
}

func (c *RedisCache) Set(ctx context.Context, key, value string) {
	if err := c.client.Set(ctx, c.keyPrefix+key, value, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Msg("redis cache set failed")
	}
}

// cachingCapability decorates a Capability with the response cache.
type cachingCapability struct {
	inner Capability
	cache Cache
}

// WithCache wraps a capability so repeated identical inputs are served from
// the cache. Capability errors and failure sentinels are not cached.
func WithCache(inner Capability, cache Cache) Capability {
	return &cachingCapability{inner: inner, cache: cache}
}

func (c *cachingCapability) Categorize(ctx context.Context, comment string) (string, error) {
	key := "cat:" + contentHash(comment)
	if v, ok := c.cache.Get(ctx, key); ok {
		return v, nil
	}
	category, err := c.inner.Categorize(ctx, comment)
	if err != nil {
		return "", err
	}
	// Failure sentinels describe this attempt, not the comment: caching one
	// would pin the sentinel past API recovery.
	if !domain.CapabilityFailure(category) {
		c.cache.Set(ctx, key, category)
	}
	return category, nil
}

func (c *cachingCapability) Summarize(ctx context.Context, rec domain.AnomalyRecord) (string, error) {
	details, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	key := "sum:" + contentHash(string(details))
	if v, ok := c.cache.Get(ctx, key); ok {
		return v, nil
	}
	summary, err := c.inner.Summarize(ctx, rec)
	if err != nil {
		return "", err
	}
	c.cache.Set(ctx, key, summary)
	return summary, nil
}

// contentHash normalizes and hashes capability input.
func contentHash(text string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(text))))
	return hex.EncodeToString(sum[:])
}
