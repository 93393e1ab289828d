package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/voceacampusului/vocea/pkg/contextkeys"
	"github.com/voceacampusului/vocea/pkg/httputil"
)

const CodeRateLimited = "RATE_LIMITED"

// RateLimitConfig defines rate limiting configuration
type RateLimitConfig struct {
	// RequestsPerWindow is the max requests allowed in the time window
	RequestsPerWindow int
	// WindowDuration is the time window for rate limiting
	WindowDuration time.Duration
	// BurstSize allows temporary bursts above the rate
	BurstSize int
}

// CheckoutRateLimitConfig returns the limits for starting checkouts.
func CheckoutRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 10,
		WindowDuration:    time.Minute,
		BurstSize:         3,
	}
}

// Limiter decides whether a request for key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Window() time.Duration
}

// RateLimiter is an in-process token bucket per key. Idle buckets are
// evicted after one window.
type RateLimiter struct {
	config  *RateLimitConfig
	buckets *expirable.LRU[string, *rate.Limiter]
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(config *RateLimitConfig) *RateLimiter {
	if config == nil {
		config = CheckoutRateLimitConfig()
	}
	if config.BurstSize <= 0 {
		config.BurstSize = 1
	}
	return &RateLimiter{
		config:  config,
		buckets: expirable.NewLRU[string, *rate.Limiter](10000, nil, config.WindowDuration),
	}
}

func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	lim, ok := rl.buckets.Get(key)
	if !ok {
		every := rl.config.WindowDuration / time.Duration(rl.config.RequestsPerWindow)
		lim = rate.NewLimiter(rate.Every(every), rl.config.BurstSize)
		rl.buckets.Add(key, lim)
	}
	return lim.Allow(), nil
}

func (rl *RateLimiter) Window() time.Duration {
	return rl.config.WindowDuration
}

// KeyFunc picks the rate limit key of a request.
type KeyFunc func(r *http.Request) string

// UserKey keys by the authenticated user id.
func UserKey(r *http.Request) string {
	return contextkeys.GetUserID(r.Context())
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimit rejects requests over the limit with 429. Limiter errors fail
// open.
func RateLimit(limiter Limiter, keyFunc KeyFunc, logger logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			if key == "" {
				key = "ip:" + clientIP(r)
			}

			allowed, err := limiter.Allow(r.Context(), key)
			if err != nil {
				logger.WithError(err).Warn("rate limiter unavailable, allowing request")
				allowed = true
			}
			if !allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(limiter.Window().Seconds())))
				httputil.WriteErrorMessage(w, http.StatusTooManyRequests, CodeRateLimited, "too many requests")
				logger.WithField("key", key).Warn("rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
