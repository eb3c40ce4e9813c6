package limiter

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// hitScript is an atomic Lua script for sliding window counting.
// Returns {allowed, remaining, reset_at_ms}.
var hitScript = redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local window_start = now - window

redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
local count = redis.call('ZCARD', key)

if count < limit then
    redis.call('ZADD', key, now, now .. ':' .. math.random(1000000))
    redis.call('EXPIRE', key, math.ceil(window / 1000) + 1)
    return {1, limit - count - 1, 0}
else
    local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
    local reset_at = 0
    if #oldest >= 2 then
        reset_at = tonumber(oldest[2]) + window
    end
    return {0, 0, reset_at}
end
`)

// RedisStore backs the limiter with Redis so decisions stay correct
// across multiple server instances.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a RedisStore
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Hit(ctx context.Context, key string, limit int, window time.Duration) (bool, int, time.Duration, error) {
	now := time.Now().UnixMilli()
	result, err := hitScript.Run(ctx, s.client, []string{key},
		limit, window.Milliseconds(), now,
	).Int64Slice()
	if err != nil {
		return false, 0, 0, err
	}

	allowed := result[0] == 1
	remaining := int(result[1])
	var resetAfter time.Duration
	if !allowed && result[2] > now {
		resetAfter = time.Duration(result[2]-now) * time.Millisecond
	}
	return allowed, remaining, resetAfter, nil
}

func (s *RedisStore) SetCooldown(ctx context.Context, key string, d time.Duration) error {
	return s.client.Set(ctx, key, 1, d).Err()
}

func (s *RedisStore) CooldownRemaining(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if ttl < 0 {
		// -1 no expiry, -2 missing key; neither counts as cooldown
		return 0, nil
	}
	return ttl, nil
}
