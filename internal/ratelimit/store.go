package ratelimit

import (
	"context"
	"time"
)

// Store is the shared counter store every worker coordinates through.
// Each operation must be atomic on its own; no cross-key atomicity is needed.
type Store interface {
	// Incr increments the counter at key, creating it at 0 first, and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)
	// Decr decrements the counter at key and returns the new value.
	Decr(ctx context.Context, key string) (int64, error)
	// TTL returns the remaining time to live of key.
	// It is negative when the key has no expiry or does not exist.
	TTL(ctx context.Context, key string) (time.Duration, error)
	// Expire sets the time to live of key. It reports whether the key existed.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Claimer is implemented by stores that can increment, expire and roll back
// in a single atomic round trip. WindowedCounter prefers it when available.
type Claimer interface {
	// Claim reserves one unit at key if the counter stays within ceiling.
	Claim(ctx context.Context, key string, ceiling int64, ttl time.Duration) (bool, error)
}
