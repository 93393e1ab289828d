package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// DistributedRateLimiter counts requests per key in fixed Redis windows,
// so every API replica sees the same budget.
type DistributedRateLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
}

// NewDistributedRateLimiter uses CheckoutRateLimitConfig when cfg is nil
// and "ratelimit" when prefix is empty.
func NewDistributedRateLimiter(client *redis.Client, cfg *RateLimitConfig, prefix string) *DistributedRateLimiter {
	if cfg == nil {
		cfg = CheckoutRateLimitConfig()
	}
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &DistributedRateLimiter{
		client: client,
		limit:  cfg.RequestsPerWindow,
		window: cfg.WindowDuration,
		prefix: prefix,
	}
}

func (l *DistributedRateLimiter) key(k string) string {
	return l.prefix + ":" + k
}

// Allow reports true alongside any Redis error; callers decide whether
// to fail open.
func (l *DistributedRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	k := l.key(key)
	count, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return true, fmt.Errorf("rate limit incr %s: %w", k, err)
	}
	// First hit opens the window.
	if count == 1 {
		if err := l.client.Expire(ctx, k, l.window).Err(); err != nil {
			return true, fmt.Errorf("rate limit expire %s: %w", k, err)
		}
	}
	return count <= int64(l.limit), nil
}

func (l *DistributedRateLimiter) Window() time.Duration {
	return l.window
}

// Remaining is the number of requests key may still make this window.
func (l *DistributedRateLimiter) Remaining(ctx context.Context, key string) (int, error) {
	used, err := l.client.Get(ctx, l.key(key)).Int()
	if errors.Is(err, redis.Nil) {
		return l.limit, nil
	}
	if err != nil {
		return 0, err
	}
	return max(l.limit-used, 0), nil
}

// Reset drops the counter for key.
func (l *DistributedRateLimiter) Reset(ctx context.Context, key string) error {
	return l.client.Del(ctx, l.key(key)).Err()
}
