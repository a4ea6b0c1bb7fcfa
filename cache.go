package configcat

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/configcat-go/configcat-core/internal/wire"
)

// configEntry is the in-memory representation of one fetched config
// document. Equality for "did the cache change" purposes is by ETag only,
// matching the upstream SDKs: a re-fetch that returns the same bytes under
// a new fetch time is not a "change" for hook-dispatch purposes.
type configEntry struct {
	config     *Config
	configJSON []byte
	etag       string
	fetchTime  time.Time
}

func emptyConfigEntry() configEntry {
	return configEntry{fetchTime: time.Time{}}
}

func (e configEntry) isEmpty() bool {
	return e.etag == "" && len(e.configJSON) == 0
}

func (e configEntry) sameConfigAs(other configEntry) bool {
	return e.etag == other.etag
}

func (e configEntry) withFetchTime(t time.Time) configEntry {
	e.fetchTime = t
	return e
}

func (e configEntry) serialize() string {
	return wire.Serialize(e.fetchTime.UnixMilli(), e.etag, e.configJSON)
}

func entryFromCachedString(s string) (configEntry, error) {
	millis, etag, body, err := wire.Deserialize(s)
	if err != nil {
		return configEntry{}, newConfigError(EventCacheReadError, "%s", err)
	}
	cfg, err := ParseConfig(body)
	if err != nil {
		return configEntry{}, err
	}
	return configEntry{
		config:     cfg,
		configJSON: body,
		etag:       etag,
		fetchTime:  time.UnixMilli(millis),
	}, nil
}

// Cache is the storage abstraction a ConfigService reads from and writes
// to. Implementations must be safe for concurrent use. Multiple Client
// instances (in the same process or, for RedisCache, across processes)
// sharing a Cache under the same key observe each other's writes: a
// ConfigService always re-reads the cache before deciding whether a
// network fetch is necessary.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string) error
}

// ErrCacheMiss is returned by a Cache.Get implementation when key is not
// present.
var ErrCacheMiss = newConfigError(EventNone, "cache miss")

// inMemoryCache is the default Cache: a single process-local map, used
// when no external Cache is configured.
type inMemoryCache struct {
	mu    sync.RWMutex
	items map[string]string
}

func newInMemoryCache() *inMemoryCache {
	return &inMemoryCache{items: make(map[string]string)}
}

func (c *inMemoryCache) Get(_ context.Context, key string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[key]
	if !ok {
		return "", ErrCacheMiss
	}
	return v, nil
}

func (c *inMemoryCache) Set(_ context.Context, key string, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = value
	return nil
}

// RedisCache stores config cache entries in Redis, letting multiple SDK
// instances or processes share one fetched config without every instance
// polling the CDN independently.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache wraps an existing Redis client. ttl of zero means entries
// never expire on the Redis side (the SDK's own polling mode governs
// freshness instead).
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	v, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrCacheMiss
	}
	if err != nil {
		return "", newConfigError(EventCacheReadError, "redis cache read failed: %s", err)
	}
	return v, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value string) error {
	if err := c.client.Set(ctx, key, value, c.ttl).Err(); err != nil {
		return newConfigError(EventCacheReadError, "redis cache write failed: %s", err)
	}
	return nil
}
