package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript keeps one sorted set per key whose members are
// attempts scored by their timestamp in milliseconds.  Everything older
// than the window is trimmed, the remaining members are counted and the
// new attempt is only added when the count is below the limit.  Running
// it as a script makes check-and-record atomic per key on the server.
var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local now_ms = tonumber(ARGV[1])
	local window_ms = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local member = ARGV[4]

	redis.call('ZREMRANGEBYSCORE', key, '-inf', now_ms - window_ms)
	local count = redis.call('ZCARD', key)

	if count >= limit then
		local retry_ms = window_ms
		local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
		if oldest[2] then
			retry_ms = tonumber(oldest[2]) + window_ms - now_ms
		end
		if retry_ms < 0 then retry_ms = 0 end
		return { 0, 0, retry_ms }
	end

	redis.call('ZADD', key, now_ms, member)
	redis.call('PEXPIRE', key, window_ms)
	return { 1, limit - count - 1, 0 }
`)

// Redis is a sliding-window limiter shared by every API instance that
// points at the same Redis server.
type Redis struct {
	rdb    *redis.Client
	policy Policy
	prefix string
	now    func() time.Time
}

// NewRedis builds a Redis limiter. Keys are stored as "<prefix>:<key>".
func NewRedis(rdb *redis.Client, p Policy, prefix string, now func() time.Time) *Redis {
	if now == nil {
		now = time.Now
	}
	if prefix == "" {
		prefix = "rl"
	}
	return &Redis{rdb: rdb, policy: p.normalized(), prefix: prefix, now: now}
}

// Allow runs the sliding-window script for key.
func (r *Redis) Allow(ctx context.Context, key string) (Decision, error) {
	now := r.now()
	nowMs := now.UnixMilli()
	member := strconv.FormatInt(nowMs, 10) + "-" + uuid.NewString()

	vals, err := slidingWindowScript.Run(ctx, r.rdb,
		[]string{r.prefix + ":" + key},
		nowMs,
		r.policy.Window.Milliseconds(),
		r.policy.Limit,
		member,
	).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit script: %w", err)
	}

	arr, ok := vals.([]interface{})
	if !ok || len(arr) != 3 {
		return Decision{}, fmt.Errorf("rate limit script: unexpected result %#v", vals)
	}
	return Decision{
		Allowed:    asInt64(arr[0]) == 1,
		Limit:      r.policy.Limit,
		Remaining:  int(asInt64(arr[1])),
		RetryAfter: time.Duration(asInt64(arr[2])) * time.Millisecond,
	}, nil
}

func asInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int32:
		return int64(t)
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n
		}
	}
	return 0
}
