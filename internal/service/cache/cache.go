package cache

import "time"

// BytesCache stores already-encoded values under a key until ttl elapses.
// A miss is reported as ok=false with a nil error; err is reserved for a
// backend that could not answer.
type BytesCache interface {
	GetBytes(key string) (b []byte, ok bool, err error)
	SetBytes(key string, value []byte, ttl time.Duration) error
}

var (
	_ BytesCache = (*TTLCache)(nil)
	_ BytesCache = (*RedisCache)(nil)
)
