package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript trims the window, then adds a hit if under the limit.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count >= limit then
	return {0, count}
end

redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return {1, count + 1}
`)

// releaseScript removes a single hit scored at ARGV[1].
var releaseScript = redis.NewScript(`
local hits = redis.call('ZRANGEBYSCORE', KEYS[1], ARGV[1], ARGV[1], 'LIMIT', 0, 1)
if #hits > 0 then
	redis.call('ZREM', KEYS[1], hits[1])
end
return #hits
`)

// RedisStore keeps hits in sorted sets so limits hold across instances.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) RecordIfAllowed(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (bool, int, error) {
	res, err := slidingWindowScript.Run(ctx, s.client, []string{key},
		now.UnixMilli(),
		window.Milliseconds(),
		limit,
		strconv.FormatInt(now.UnixNano(), 10)+"-"+uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("failed to run rate limit script: %w", err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("unexpected rate limit script result: %v", res)
	}

	return res[0] == 1, int(res[1]), nil
}

func (s *RedisStore) Release(ctx context.Context, key string, at time.Time) error {
	err := releaseScript.Run(ctx, s.client, []string{key}, at.UnixMilli()).Err()
	if err != nil {
		return fmt.Errorf("failed to release rate limit hit: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// Close is a no-op; the client is owned by the caller.
func (s *RedisStore) Close() error {
	return nil
}
