package configcat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashSHA1(t *testing.T) {
	assert.Equal(t, "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d", hashSHA1("hello"))
	assert.Equal(t, "da39a3ee5e6b4b0d3255bfef95601890afd80709", hashSHA1(""))
}

func TestHashSHA256SaltedDeterministic(t *testing.T) {
	a := hashSHA256Salted("value", "salt", "ctx")
	b := hashSHA256Salted("value", "salt", "ctx")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, hashSHA256Salted("value", "salt", "other-ctx"))
	assert.Len(t, a, 64)
}

func TestCacheKeyFor(t *testing.T) {
	key := cacheKeyFor("test-sdk-key")
	assert.Equal(t, hashSHA1("test-sdk-key_config_v6.json_v2"), key)
	assert.Len(t, key, 40)
}

func TestPercentageBucketDeterministic(t *testing.T) {
	for _, attr := range []string{"a", "b", "user-123", ""} {
		first := percentageBucket("flag", attr)
		second := percentageBucket("flag", attr)
		assert.Equal(t, first, second)
		assert.GreaterOrEqual(t, first, 0)
		assert.Less(t, first, 100)
	}
}

func TestPercentageBucketMatchesReferenceFormula(t *testing.T) {
	key, attr := "myFlag", "myUser"
	digest := hashSHA1(key + attr)
	var n int64
	for i := 0; i < 7; i++ {
		n = n*16 + int64(hexVal(digest[i]))
	}
	assert.Equal(t, int(n%100), percentageBucket(key, attr))
}
