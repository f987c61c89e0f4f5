package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache defines the interface for caching. Caches here are explicit,
// injectable state owned by the component that uses them (the matcher's
// embedding cache, the corpus store's document cache), never process
// globals.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Key derives a stable cache key from arbitrary input.
func Key(input string) string {
	hash := sha256.Sum256([]byte(input))
	return "sanctum:v1:" + hex.EncodeToString(hash[:])
}
