package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/s33g/discord-relay/internal/config"
	"github.com/s33g/discord-relay/internal/storage"
)

// Limit types reported when a request is rejected
const (
	LimitMinute = "minute"
	LimitHour   = "hour"
)

var rateLimitScript = redis.NewScript(`
local minute = tonumber(redis.call('GET', KEYS[1]) or "0")
local hour = tonumber(redis.call('GET', KEYS[2]) or "0")
local minute_limit = tonumber(ARGV[1])
local hour_limit = tonumber(ARGV[2])

if minute_limit > 0 and minute >= minute_limit then
    local ttl = redis.call('TTL', KEYS[1])
    return {-1, ttl > 0 and ttl or 60}
end

if hour_limit > 0 and hour >= hour_limit then
    local ttl = redis.call('TTL', KEYS[2])
    return {-2, ttl > 0 and ttl or 3600}
end

if minute == 0 then
    redis.call('SET', KEYS[1], 1, 'EX', tonumber(ARGV[3]))
else
    redis.call('INCR', KEYS[1])
end

if hour == 0 then
    redis.call('SET', KEYS[2], 1, 'EX', tonumber(ARGV[4]))
else
    redis.call('INCR', KEYS[2])
end

return {1, 0}
`)

// Limiter enforces per-user request quotas in Redis
type Limiter struct {
	client *storage.Client
}

// NewLimiter creates a limiter and preloads its script
func NewLimiter(ctx context.Context, client *storage.Client) (*Limiter, error) {
	if err := rateLimitScript.Load(ctx, client.Redis()).Err(); err != nil {
		return nil, fmt.Errorf("failed to load rate limit script: %w", err)
	}

	return &Limiter{client: client}, nil
}

// Result holds the outcome of a rate limit check
type Result struct {
	Allowed        bool
	SecondsToReset int
	LimitType      string
}

// RetryAfter returns how long the caller should wait before retrying
func (r *Result) RetryAfter() time.Duration {
	return time.Duration(r.SecondsToReset) * time.Second
}

// CheckRateLimit checks and increments the user's counters. A zero limit is unlimited.
func (l *Limiter) CheckRateLimit(ctx context.Context, guildID, userID string, limits config.RateLimit) (*Result, error) {
	if limits.RequestsPerMinute == 0 && limits.RequestsPerHour == 0 {
		return &Result{Allowed: true}, nil
	}

	keys := []string{
		l.client.Keys().RateLimitMinute(guildID, userID),
		l.client.Keys().RateLimitHour(guildID, userID),
	}

	result, err := rateLimitScript.Run(ctx, l.client.Redis(), keys,
		limits.RequestsPerMinute,
		limits.RequestsPerHour,
		60,   // minute TTL
		3600, // hour TTL
	).Result()
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 2 {
		return nil, fmt.Errorf("unexpected rate limit result format")
	}

	status, _ := values[0].(int64)
	seconds, _ := values[1].(int64)

	switch status {
	case 1:
		return &Result{Allowed: true}, nil
	case -1:
		return &Result{SecondsToReset: int(seconds), LimitType: LimitMinute}, nil
	case -2:
		return &Result{SecondsToReset: int(seconds), LimitType: LimitHour}, nil
	default:
		return nil, fmt.Errorf("unknown rate limit status: %d", status)
	}
}
