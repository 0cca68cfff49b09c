package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/human-pages-ai/humanpages/clock"
	"github.com/human-pages-ai/humanpages/core/hiring"
)

// Redis implements a distributed sliding window on a sorted set per key.
// Time is supplied by the caller's clock so every replica agrees on windows
// regardless of Redis server time.
type Redis struct {
	client *redis.Client
	clock  clock.Clock
	prefix string
}

func NewRedis(client *redis.Client, c clock.Clock) *Redis {
	if c == nil {
		c = clock.Real()
	}
	return &Redis{client: client, clock: c, prefix: "hp:rl:"}
}

func (r *Redis) run(ctx context.Context, key string, q hiring.Quota, consume bool) (Decision, error) {
	now := r.clock.Now()
	token := ""
	flag := 0
	if consume {
		token = uuid.NewString()
		flag = 1
	}
	res, err := windowScript.Run(ctx, r.client, []string{r.prefix + key},
		now.UnixMilli(), q.Window.Milliseconds(), q.Limit, token, flag).Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) < 3 {
		return Decision{}, fmt.Errorf("rate limit script: unexpected reply %v", res)
	}
	allowed, _ := res[0].(int64)
	count, _ := res[1].(int64)
	reset, _ := res[2].(int64)

	d := Decision{
		Allowed:   allowed == 1,
		Limit:     q.Limit,
		Remaining: q.Limit - int(count),
		ResetAt:   time.UnixMilli(reset).UTC(),
	}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	if consume && d.Allowed {
		d.Token = token
	}
	return d, nil
}

func (r *Redis) Allow(ctx context.Context, key string, q hiring.Quota) (Decision, error) {
	return r.run(ctx, key, q, true)
}

func (r *Redis) Peek(ctx context.Context, key string, q hiring.Quota) (Decision, error) {
	return r.run(ctx, key, q, false)
}

func (r *Redis) Refund(ctx context.Context, key string, d Decision) error {
	if !d.Allowed || d.Token == "" {
		return nil
	}
	return r.client.ZRem(ctx, r.prefix+key, d.Token).Err()
}

var windowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]
local consume = tonumber(ARGV[5])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
  allowed = 1
  if consume == 1 then
    redis.call('ZADD', key, now, member)
    count = count + 1
  end
end
if count > 0 then redis.call('PEXPIRE', key, window) end

local reset = now + window
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if oldest[2] then reset = tonumber(oldest[2]) + window end
return {allowed, count, reset}
`)
