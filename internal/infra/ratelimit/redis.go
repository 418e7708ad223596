package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"certledger/internal/domain"

	"github.com/redis/go-redis/v9"
)

// The limiter shares its redis database with the verification cache, so its
// counters live under their own prefix.
const redisKeyPrefix = "rl:"

// fixedWindowScript counts a hit and reports {allowed, hits, pttl} in one
// round trip. The expiry attaches on the first hit, so the window starts
// when the first request lands rather than sliding with later ones.
var fixedWindowScript = redis.NewScript(`
local hits = redis.call("INCR", KEYS[1])
if hits == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
local allowed = 0
if hits <= tonumber(ARGV[1]) then
  allowed = 1
end
return {allowed, hits, redis.call("PTTL", KEYS[1])}
`)

type redisLimiter struct {
	client *redis.Client
	clock  func() time.Time
}

// NewRedisLimiter returns a fixed-window limiter whose counters live in
// redis, so every replica of the service enforces one shared budget.
func NewRedisLimiter(client *redis.Client, clock func() time.Time) (domain.RateLimiter, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if clock == nil {
		clock = time.Now
	}
	return &redisLimiter{client: client, clock: clock}, nil
}

func (r *redisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (domain.RateLimitDecision, error) {
	if limit <= 0 {
		return domain.RateLimitDecision{Allowed: true, Limit: limit, Remaining: limit}, nil
	}
	windowMillis := window.Milliseconds()
	if windowMillis <= 0 {
		windowMillis = time.Second.Milliseconds()
	}
	raw, err := fixedWindowScript.Run(ctx, r.client,
		[]string{redisKeyPrefix + key}, limit, windowMillis).Result()
	if err != nil {
		return domain.RateLimitDecision{}, fmt.Errorf("rate limit script: %w", err)
	}
	reply, ok := raw.([]any)
	if !ok || len(reply) != 3 {
		return domain.RateLimitDecision{}, fmt.Errorf("rate limit script returned %T", raw)
	}
	allowed, _ := reply[0].(int64)
	hits, _ := reply[1].(int64)
	ttlMillis, _ := reply[2].(int64)

	decision := domain.RateLimitDecision{
		Allowed: allowed == 1,
		Limit:   limit,
		ResetAt: r.clock(),
	}
	if ttlMillis > 0 {
		decision.ResetAt = decision.ResetAt.Add(time.Duration(ttlMillis) * time.Millisecond)
	}
	if remaining := int64(limit) - hits; remaining > 0 {
		decision.Remaining = int(remaining)
	}
	return decision, nil
}
