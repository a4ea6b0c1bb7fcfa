package configcat

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
)

const (
	configFileName            = "config_v6.json"
	configSerializationFormat = "v2"
)

// hashSHA1 returns the lowercase hex-encoded SHA-1 digest of payload. It
// backs both the cache key derivation and percentage bucket computation.
func hashSHA1(payload string) string {
	sum := sha1.Sum([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// hashSHA256Salted returns the lowercase hex-encoded SHA-256 digest of
// payload concatenated with salt and ctxSalt, in that order. Sensitive
// comparators (hashed one-of, hashed starts/ends-with, hashed array
// membership) compare against values produced this way.
func hashSHA256Salted(payload, salt, ctxSalt string) string {
	sum := sha256.Sum256([]byte(payload + salt + ctxSalt))
	return hex.EncodeToString(sum[:])
}

// cacheKeyFor derives the cache key for an SDK key, matching the format the
// CDN and every official SDK agree on.
func cacheKeyFor(sdkKey string) string {
	return hashSHA1(sdkKey + "_" + configFileName + "_" + configSerializationFormat)
}

// percentageBucket computes the 0-99 bucket a (key, userAttribute) pair
// falls into: the first 7 hex digits of sha1(key+userAttribute), parsed as
// a 28-bit integer, mod 100.
func percentageBucket(key, userAttribute string) int {
	digest := hashSHA1(key + userAttribute)
	prefix := digest[:7]
	var n int64
	for i := 0; i < len(prefix); i++ {
		n = n*16 + int64(hexVal(prefix[i]))
	}
	return int(n % 100)
}

func hexVal(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	default:
		return 0
	}
}
