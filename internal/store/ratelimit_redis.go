package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/serroba/tg-dispatch/internal/ratelimit"
)

// RateLimitRedisStore is a Redis implementation of ratelimit.Store.
// Every method maps to one Redis command, each atomic on the server.
type RateLimitRedisStore struct {
	client redis.UniversalClient
}

// NewRateLimitRedisStore creates a new Redis-backed counter store.
func NewRateLimitRedisStore(client redis.UniversalClient) *RateLimitRedisStore {
	return &RateLimitRedisStore{client: client}
}

func (r *RateLimitRedisStore) Incr(ctx context.Context, key string) (int64, error) {
	return r.client.Incr(ctx, key).Result()
}

func (r *RateLimitRedisStore) Decr(ctx context.Context, key string) (int64, error) {
	return r.client.Decr(ctx, key).Result()
}

// TTL returns -1 for keys without expiry and -2 for missing keys, as Redis does.
func (r *RateLimitRedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	return r.client.TTL(ctx, key).Result()
}

func (r *RateLimitRedisStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return r.client.Expire(ctx, key, ttl).Result()
}

// claimScript runs increment, expiry and rollback in one round trip.
// KEYS[1] = counter key, ARGV[1] = ceiling, ARGV[2] = ttl in seconds.
var claimScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if redis.call("TTL", KEYS[1]) < 0 then
  redis.call("EXPIRE", KEYS[1], ARGV[2])
end
if count > tonumber(ARGV[1]) then
  redis.call("DECR", KEYS[1])
  return 0
end
return 1
`)

// RateLimitScriptStore adds an atomic Lua claim on top of RateLimitRedisStore.
type RateLimitScriptStore struct {
	*RateLimitRedisStore
}

// NewRateLimitScriptStore creates a Redis counter store that claims with a Lua script.
func NewRateLimitScriptStore(client redis.UniversalClient) *RateLimitScriptStore {
	return &RateLimitScriptStore{RateLimitRedisStore: NewRateLimitRedisStore(client)}
}

func (r *RateLimitScriptStore) Claim(ctx context.Context, key string, ceiling int64, ttl time.Duration) (bool, error) {
	seconds := max(int64(ttl/time.Second), 1)

	res, err := claimScript.Run(ctx, r.client, []string{key}, ceiling, seconds).Int64()
	if err != nil {
		return false, err
	}

	return res == 1, nil
}

// Compile-time checks.
var (
	_ ratelimit.Store   = (*RateLimitMemoryStore)(nil)
	_ ratelimit.Store   = (*RateLimitRedisStore)(nil)
	_ ratelimit.Store   = (*RateLimitScriptStore)(nil)
	_ ratelimit.Claimer = (*RateLimitScriptStore)(nil)
)
