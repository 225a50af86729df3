package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// admitScript keeps one sorted set per key with millisecond scores.  It
// prunes, counts and conditionally records in a single round trip.
var admitScript = redis.NewScript(`
	local key = KEYS[1]
	local now_ms = ARGV[1]
	local hour_floor = ARGV[2]
	local minute_floor = ARGV[3]
	local per_minute = tonumber(ARGV[4])
	local per_hour = tonumber(ARGV[5])
	local member = ARGV[6]

	redis.call('ZREMRANGEBYSCORE', key, '-inf', hour_floor)
	local hour = redis.call('ZCARD', key)
	local minute = redis.call('ZCOUNT', key, '(' .. minute_floor, '+inf')

	local allowed = 0
	if minute < per_minute and hour < per_hour then
		redis.call('ZADD', key, now_ms, member)
		allowed = 1
	end
	redis.call('PEXPIRE', key, 3600000)

	return { allowed, minute, hour }
`)

// RedisStore keeps request logs in Redis so every process shares them.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedisStore stores keys under prefix (e.g. "rl").
func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) key(k string) string { return s.prefix + ":" + k }

func (s *RedisStore) Admit(ctx context.Context, key string, now time.Time, p Policy) (bool, int, int, error) {
	const op = "ratelimit.RedisStore.Admit"

	nowMs := now.UnixMilli()
	member := strconv.FormatInt(nowMs, 10) + "-" + uuid.NewString()
	args := []interface{}{
		nowMs,
		nowMs - hourWindow.Milliseconds(),
		nowMs - minuteWindow.Milliseconds(),
		p.PerMinute,
		p.PerHour,
		member,
	}
	vals, err := admitScript.Run(ctx, s.rdb, []string{s.key(key)}, args...).Int64Slice()
	if err != nil {
		return false, 0, 0, fmt.Errorf("%s: %w", op, err)
	}
	if len(vals) != 3 {
		return false, 0, 0, fmt.Errorf("%s: unexpected script result %v", op, vals)
	}
	return vals[0] == 1, int(vals[1]), int(vals[2]), nil
}

func (s *RedisStore) Counts(ctx context.Context, key string, now time.Time) (int, int, error) {
	const op = "ratelimit.RedisStore.Counts"

	nowMs := now.UnixMilli()
	k := s.key(key)
	var minute, hour *redis.IntCmd
	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		minute = pipe.ZCount(ctx, k, "("+strconv.FormatInt(nowMs-minuteWindow.Milliseconds(), 10), "+inf")
		hour = pipe.ZCount(ctx, k, "("+strconv.FormatInt(nowMs-hourWindow.Milliseconds(), 10), "+inf")
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(minute.Val()), int(hour.Val()), nil
}
