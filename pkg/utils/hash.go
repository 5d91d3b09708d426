package utils

import (
	"crypto/md5"
	"fmt"
	"hash/fnv"
)

// HashString returns the hex md5 of the input, used for cache keys.
func HashString(input string) string {
	hash := md5.Sum([]byte(input))
	return fmt.Sprintf("%x", hash)
}

// HashInt64 returns a stable FNV-64a hash of the input, used for vector
// point ids so that re-ingesting the same document overwrites the same
// points instead of colliding with batch-local counters.
func HashInt64(input string) int64 {
	h := fnv.New64a()
	h.Write([]byte(input))
	return int64(h.Sum64())
}
