package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shiva/seatline/internal/ports"
)

const rateLimitKeyPrefix = "rate_limit:"

// RateLimiter is a fixed-window counter in Redis. Each key gets one counter
// per window, created by INCR and expired with the window.
type RateLimiter struct {
	redis  *redis.Client
	limit  int64
	window time.Duration
	now    func() time.Time
}

var _ ports.RateLimiter = (*RateLimiter)(nil)

// NewRateLimiter admits at most limit actions per key per window.
func NewRateLimiter(client *redis.Client, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{redis: client, limit: int64(limit), window: window, now: time.Now}
}

// Allow counts one action for key. When the window is exhausted it returns
// false and the time until the window rolls over.
func (l *RateLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	now := l.now()
	start := now.Truncate(l.window)
	redisKey := fmt.Sprintf("%s%s:%d", rateLimitKeyPrefix, key, start.Unix())

	pipe := l.redis.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("rate limit %s: %w", key, err)
	}

	if incr.Val() > l.limit {
		return false, start.Add(l.window).Sub(now), nil
	}
	return true, 0, nil
}
