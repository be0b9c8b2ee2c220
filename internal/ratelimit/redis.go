package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is the CounterStore for multi-instance deployments. All
// operations run as Lua scripts so the check and the increment are one
// atomic step; a GET then INCR sequence would let two instances race
// past the limit.
type RedisStore struct {
	client *redis.Client

	incrScript  *redis.Script
	limitScript *redis.Script
}

// Lua script for Incr: INCR and set the TTL only on counter creation.
const incrLuaScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
    redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`

// Lua script for IncrWithLimit: check the limit before incrementing so a
// denied request never consumes quota.
const incrWithLimitLuaScript = `
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
local limit = tonumber(ARGV[1])
if current + 1 > limit then
    return {0, current}
end
current = redis.call("INCR", KEYS[1])
if current == 1 then
    redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return {1, current}
`

// NewRedisStore creates a Redis-backed counter store with pre-compiled
// Lua scripts.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client:      client,
		incrScript:  redis.NewScript(incrLuaScript),
		limitScript: redis.NewScript(incrWithLimitLuaScript),
	}
}

func (r *RedisStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	n, err := r.incrScript.Run(ctx, r.client, []string{key}, ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("ratelimit incr %s: %w", key, err)
	}
	return n, nil
}

func (r *RedisStore) IncrWithLimit(ctx context.Context, key string, limit int64, ttl time.Duration) (bool, int64, error) {
	res, err := r.limitScript.Run(ctx, r.client, []string{key}, limit, ttl.Milliseconds()).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("ratelimit check %s: %w", key, err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("ratelimit check %s: unexpected script result %v", key, res)
	}
	return res[0] == 1, res[1], nil
}

func (r *RedisStore) Get(ctx context.Context, key string) (int64, error) {
	n, err := r.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ratelimit get %s: %w", key, err)
	}
	return n, nil
}
