package rateLimit

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	redisadapter "github.com/robertarktes/hotel-room-holds/internal/adapters/redis"
	"github.com/robertarktes/hotel-room-holds/internal/observability"
)

// Decision is the outcome of counting one request against a window.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

type RateLimiter struct {
	redis *redisadapter.Cache
}

func NewRateLimiter(redis *redisadapter.Cache) *RateLimiter {
	return &RateLimiter{redis: redis}
}

// Allow counts one hit in the fixed window of key. The window starts with
// the first hit and is not extended by later ones.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	fullKey := "rl:" + key

	pipe := rl.redis.Client().Pipeline()
	incr := pipe.Incr(ctx, fullKey)
	pipe.ExpireNX(ctx, fullKey, window)
	ttl := pipe.PTTL(ctx, fullKey)

	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, errors.Wrapf(err, "rate limit %s", key)
	}

	count := int(incr.Val())
	d := Decision{Allowed: count <= limit, Limit: limit, Remaining: max(limit-count, 0)}
	if !d.Allowed {
		d.RetryAfter = ttl.Val()
		if d.RetryAfter <= 0 {
			d.RetryAfter = window
		}
		observability.RateLimitExceeded.Inc()
	}
	return d, nil
}
