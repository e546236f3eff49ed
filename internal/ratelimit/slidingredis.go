package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Decision is the outcome of a single rate-limit check.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter decides whether another request under key fits the budget.
type Limiter interface {
	Allow(ctx context.Context, key string, window time.Duration, max int) (Decision, error)
}

// RedisLimiter implements a sliding window shared across replicas, backed by
// Redis sorted sets.
type RedisLimiter struct {
	Client redis.UniversalClient
	Prefix string
}

// Allow registers an event for key and reports whether it is within the limit.
func (l RedisLimiter) Allow(ctx context.Context, key string, window time.Duration, max int) (Decision, error) {
	now := time.Now()
	until := now.Add(window)
	if l.Client == nil || max <= 0 || window <= 0 {
		return Decision{Allowed: true, Remaining: max, ResetAt: until}, nil
	}

	score := float64(now.UnixNano())
	cutoff := float64(now.Add(-window).UnixNano())
	redisKey := l.Prefix + key
	member := fmt.Sprintf("%s:%s", key, uuid.NewString())

	pipe := l.Client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", fmt.Sprintf("%f", cutoff))
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: score, Member: member})
	countCmd := pipe.ZCard(ctx, redisKey)
	pipe.Expire(ctx, redisKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{ResetAt: until}, fmt.Errorf("ratelimit: redis window: %w", err)
	}

	current := int(countCmd.Val())
	remaining := max - current
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: current <= max, Remaining: remaining, ResetAt: until}, nil
}
