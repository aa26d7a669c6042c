// Package ratelimit bounds password submissions with a token bucket kept in
// Redis, so every server instance shares the same budget per client.
package ratelimit

import (
	"context"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/keyvault/internal/config"
	"github.com/turtacn/keyvault/pkg/errors"
	"github.com/turtacn/keyvault/pkg/logger"
)

// Result is the outcome of one Allow call.
type Result struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	RetryAfter time.Duration
}

// Atomic token bucket: refill by elapsed time, then try to take one token.
// Returns {allowed, remaining, retry_after_ms}.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local bucket = redis.call('HMGET', key, 'tokens', 'last_refill')
local tokens = tonumber(bucket[1]) or capacity
local last_refill = tonumber(bucket[2]) or now

local elapsed = math.max(0, now - last_refill)
tokens = math.min(capacity, tokens + elapsed * rate / 1000)

local allowed = 0
local retry_ms = 0
if tokens >= 1 then
    tokens = tokens - 1
    allowed = 1
else
    retry_ms = math.ceil((1 - tokens) / rate * 1000)
end

redis.call('HSET', key, 'tokens', tostring(tokens), 'last_refill', tostring(now))
redis.call('PEXPIRE', key, math.ceil((capacity - tokens) / rate * 1000) + 60000)

return {allowed, math.floor(tokens), retry_ms}
`)

// RedisRateLimiter implements distributed rate limiting using Redis.
type RedisRateLimiter struct {
	client   redis.UniversalClient
	prefix   string
	capacity int64
	rate     float64 // tokens per second
	local    *tokenBucketPool
	now      func() time.Time
	logger   logger.Logger
}

// Option configures a RedisRateLimiter.
type Option func(*RedisRateLimiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(rl *RedisRateLimiter) { rl.now = now }
}

// NewRedisRateLimiter creates a limiter allowing cfg.PasswordAttempts per
// cfg.Window for each key.
func NewRedisRateLimiter(client redis.UniversalClient, prefix string, cfg config.RateLimitConfig, log logger.Logger, opts ...Option) (*RedisRateLimiter, error) {
	if client == nil {
		return nil, errors.ErrInvalidRequest("redis client is required")
	}
	if cfg.PasswordAttempts < 1 || cfg.Window <= 0 {
		return nil, errors.ErrInvalidRequest("rate limit needs a positive capacity and window")
	}

	rl := &RedisRateLimiter{
		client:   client,
		prefix:   prefix,
		capacity: cfg.PasswordAttempts,
		rate:     float64(cfg.PasswordAttempts) / cfg.Window.Seconds(),
		now:      time.Now,
		logger:   log.WithComponent("RateLimiter"),
	}
	for _, opt := range opts {
		opt(rl)
	}
	if cfg.LocalFallback {
		rl.local = newTokenBucketPool(float64(rl.capacity), rl.rate, rl.now)
	}

	rl.logger.Info(context.Background(), "Redis rate limiter initialized",
		logger.Int64("capacity", cfg.PasswordAttempts),
		logger.Duration("window", cfg.Window),
		logger.Bool("local_fallback", cfg.LocalFallback),
	)
	return rl, nil
}

// Allow takes one token from the bucket of scope/identifier.
func (rl *RedisRateLimiter) Allow(ctx context.Context, scope, identifier string) (Result, error) {
	key := rl.buildKey(scope, identifier)
	res, err := tokenBucketScript.Run(ctx, rl.client, []string{key},
		rl.capacity, rl.rate, rl.now().UnixMilli()).Int64Slice()
	if err == nil && len(res) == 3 {
		return Result{
			Allowed:    res[0] == 1,
			Limit:      rl.capacity,
			Remaining:  res[1],
			RetryAfter: time.Duration(res[2]) * time.Millisecond,
		}, nil
	}
	if err == nil {
		err = errors.ErrInternal("unexpected rate limit script reply")
	}

	if rl.local == nil {
		return Result{}, errors.ErrStorageFailure("rate limit", err)
	}
	rl.logger.Warn(ctx, "Redis rate limit failed, using local bucket", logger.Err(err), logger.String("key", key))
	allowed, remaining, wait := rl.local.get(key).Take()
	return Result{
		Allowed:    allowed,
		Limit:      rl.capacity,
		Remaining:  int64(math.Floor(remaining)),
		RetryAfter: wait,
	}, nil
}

// Reset clears the bucket of scope/identifier, e.g. after a correct password.
func (rl *RedisRateLimiter) Reset(ctx context.Context, scope, identifier string) error {
	key := rl.buildKey(scope, identifier)
	if rl.local != nil {
		rl.local.remove(key)
	}
	if err := rl.client.Del(ctx, key).Err(); err != nil && err != redis.Nil {
		return errors.ErrStorageFailure("rate limit reset", err)
	}
	return nil
}

// Sweep drops local fallback buckets idle for longer than maxIdle.
func (rl *RedisRateLimiter) Sweep(maxIdle time.Duration) int {
	if rl.local == nil {
		return 0
	}
	return rl.local.cleanup(maxIdle)
}

func (rl *RedisRateLimiter) buildKey(scope, identifier string) string {
	key := "ratelimit:" + scope + ":" + identifier
	if rl.prefix != "" {
		key = rl.prefix + ":" + key
	}
	return key
}

//Personal.AI order the ending
