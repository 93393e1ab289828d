package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voceacampusului/vocea/pkg/contextkeys"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiterAllowsBurst(t *testing.T) {
	limiter := NewRateLimiter(&RateLimitConfig{
		RequestsPerWindow: 1,
		WindowDuration:    time.Hour,
		BurstSize:         3,
	})

	allowed := 0
	for i := 0; i < 10; i++ {
		ok, err := limiter.Allow(context.Background(), "u1")
		require.NoError(t, err)
		if ok {
			allowed++
		}
	}
	assert.Equal(t, 3, allowed)

	ok, _ := limiter.Allow(context.Background(), "u2")
	assert.True(t, ok, "keys are independent")
}

func TestRateLimitMiddleware(t *testing.T) {
	logger, hook := test.NewNullLogger()
	limiter := NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute, BurstSize: 1})
	h := RateLimit(limiter, UserKey, logger)(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/me/checkout", nil)
	req = req.WithContext(contextkeys.WithUserID(req.Context(), "u1"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), CodeRateLimited)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "u1", hook.LastEntry().Data["key"])
}

func TestRateLimitFallsBackToClientIP(t *testing.T) {
	logger, hook := test.NewNullLogger()
	limiter := NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute, BurstSize: 1})
	h := RateLimit(limiter, UserKey, logger)(okHandler())

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/plans", nil)
		req.RemoteAddr = "10.0.0.7:5555"
		h.ServeHTTP(httptest.NewRecorder(), req)
	}
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "ip:10.0.0.7", hook.LastEntry().Data["key"])
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return false, errors.New("down")
}
func (brokenLimiter) Window() time.Duration { return time.Second }

func TestRateLimitFailsOpen(t *testing.T) {
	logger, hook := test.NewNullLogger()
	h := RateLimit(brokenLimiter{}, UserKey, logger)(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func newRedisLimiter(t *testing.T, cfg *RateLimitConfig) (*DistributedRateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewDistributedRateLimiter(client, cfg, "test"), mr
}

func TestDistributedRateLimiterWindow(t *testing.T) {
	ctx := context.Background()
	limiter, mr := newRedisLimiter(t, &RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute})

	for i := 0; i < 2; i++ {
		ok, err := limiter.Allow(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := limiter.Allow(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	remaining, err := limiter.Remaining(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
	assert.Equal(t, time.Minute, mr.TTL("test:u1"))

	mr.FastForward(time.Minute)
	ok, err = limiter.Allow(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok, "window resets after expiry")
}

func TestDistributedRateLimiterReset(t *testing.T) {
	ctx := context.Background()
	limiter, _ := newRedisLimiter(t, &RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute})

	_, _ = limiter.Allow(ctx, "u1")
	require.NoError(t, limiter.Reset(ctx, "u1"))

	remaining, err := limiter.Remaining(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)
}

func TestDistributedRateLimiterRedisDown(t *testing.T) {
	limiter, mr := newRedisLimiter(t, nil)
	mr.Close()

	ok, err := limiter.Allow(context.Background(), "u1")
	assert.Error(t, err)
	assert.True(t, ok)
}
