package configcat

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigEntrySerializeRoundTrip(t *testing.T) {
	cfg, err := ParseConfig([]byte(`{"f":{"flag":{"t":0,"v":{"b":true}}},"s":[]}`))
	require.NoError(t, err)
	entry := configEntry{
		config:     cfg,
		configJSON: []byte(`{"f":{"flag":{"t":0,"v":{"b":true}}},"s":[]}`),
		etag:       `"abc"`,
		fetchTime:  time.UnixMilli(1700000000000),
	}
	s := entry.serialize()
	back, err := entryFromCachedString(s)
	require.NoError(t, err)
	assert.Equal(t, entry.etag, back.etag)
	assert.Equal(t, entry.fetchTime.UnixMilli(), back.fetchTime.UnixMilli())
	assert.Equal(t, s, back.serialize())
}

func TestConfigEntryIsEmpty(t *testing.T) {
	assert.True(t, emptyConfigEntry().isEmpty())
	assert.False(t, configEntry{etag: "x"}.isEmpty())
}

func TestConfigEntrySameConfigAsByETagOnly(t *testing.T) {
	a := configEntry{etag: "same", fetchTime: time.Unix(1, 0)}
	b := configEntry{etag: "same", fetchTime: time.Unix(2, 0)}
	assert.True(t, a.sameConfigAs(b))

	c := configEntry{etag: "different"}
	assert.False(t, a.sameConfigAs(c))
}

func TestInMemoryCacheGetSet(t *testing.T) {
	ctx := context.Background()
	c := newInMemoryCache()

	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "key", "value"))
	v, err := c.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, "value", v)
}

func TestEntryFromCachedStringRejectsInvalidConfigJSON(t *testing.T) {
	_, err := entryFromCachedString("1\nEtag\nnot-json")
	assert.Error(t, err)
}

func setupTestRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisCache(client, time.Minute), mr
}

func TestRedisCacheGetMissReturnsErrCacheMiss(t *testing.T) {
	cache, _ := setupTestRedisCache(t)
	_, err := cache.Get(context.Background(), "no-such-key")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCacheSetThenGetRoundTrips(t *testing.T) {
	cache, _ := setupTestRedisCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "configcat_abc", "serialized-entry"))
	v, err := cache.Get(ctx, "configcat_abc")
	require.NoError(t, err)
	assert.Equal(t, "serialized-entry", v)
}

func TestRedisCacheSharedAcrossTwoClientsObservesWrites(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	writer := NewRedisCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}), 0)
	reader := NewRedisCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}), 0)
	ctx := context.Background()

	_, err = reader.Get(ctx, "shared-key")
	assert.ErrorIs(t, err, ErrCacheMiss, "nothing written yet")

	require.NoError(t, writer.Set(ctx, "shared-key", "fetched-by-writer"))
	v, err := reader.Get(ctx, "shared-key")
	require.NoError(t, err)
	assert.Equal(t, "fetched-by-writer", v, "a second RedisCache instance pointed at the same Redis must see the first one's write")
}
