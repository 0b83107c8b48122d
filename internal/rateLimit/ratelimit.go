package rateLimit

import (
	"context"
	"time"

	redisadapter "github.com/MadGotten/Eventio/internal/adapters/redis"
	"github.com/MadGotten/Eventio/internal/observability"
)

// RateLimiter is a fixed-window counter in Redis. Coarse, but enough to
// keep a stampeding buyer from hammering the checkout endpoints.
type RateLimiter struct {
	redis *redisadapter.Cache
}

func NewRateLimiter(redis *redisadapter.Cache) *RateLimiter {
	return &RateLimiter{redis: redis}
}

func (rl *RateLimiter) Allow(ctx context.Context, key string, rate int, period time.Duration) bool {
	fullKey := "rl:" + key

	pipe := rl.redis.Client().Pipeline()
	incr := pipe.Incr(ctx, fullKey)
	pipe.Expire(ctx, fullKey, period)

	_, err := pipe.Exec(ctx)
	if err != nil {
		// Fail open: a Redis outage must not block purchases.
		return true
	}

	allowed := incr.Val() <= int64(rate)
	if !allowed {
		observability.RateLimitExceeded.Inc()
	}
	return allowed
}
