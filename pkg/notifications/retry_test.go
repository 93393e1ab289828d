package notifications

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicyDefaults(t *testing.T) {
	p := NewRetryPolicy(RetryConfig{})
	assert.Equal(t, DefaultRetryConfig(), p.config)
}

func TestNextRetryDelay(t *testing.T) {
	p := NewRetryPolicy(RetryConfig{MaxAttempts: 5, InitialDelay: time.Second, MaxDelay: 3 * time.Second, BackoffMultiplier: 2})

	assert.Equal(t, time.Second, p.NextRetryDelay(0))
	assert.Equal(t, time.Second, p.NextRetryDelay(1))
	assert.Equal(t, 2*time.Second, p.NextRetryDelay(2))
	assert.Equal(t, 3*time.Second, p.NextRetryDelay(3))
}

func TestShouldRetry(t *testing.T) {
	p := NewRetryPolicy(RetryConfig{MaxAttempts: 3})

	tests := []struct {
		name     string
		attempts int
		err      error
		want     bool
	}{
		{"success", 1, nil, false},
		{"network error", 1, errors.New("connection refused"), true},
		{"attempts exhausted", 3, errors.New("connection refused"), false},
		{"server error", 1, &RelayError{StatusCode: http.StatusServiceUnavailable}, true},
		{"throttled", 2, &RelayError{StatusCode: http.StatusTooManyRequests}, true},
		{"rejected", 1, &RelayError{StatusCode: http.StatusUnprocessableEntity}, false},
		{"cancelled", 1, context.Canceled, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.ShouldRetry(tt.attempts, tt.err))
		})
	}
}

func newTestRetryingSender(sender Sender, maxAttempts int) (*RetryingSender, *[]time.Duration) {
	logger, _ := test.NewNullLogger()
	s := NewRetryingSender(sender, NewRetryPolicy(RetryConfig{MaxAttempts: maxAttempts, InitialDelay: 10 * time.Millisecond}), logger)
	var slept []time.Duration
	s.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return s, &slept
}

func TestRetryingSenderRecoversFromTransientFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s, slept := newTestRetryingSender(NewHTTPSender(srv.URL, "", time.Second), 3)
	require.NoError(t, s.Send(context.Background(), KindSubscriptionRenewed, Payload{"order_id": "ord-1"}))

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, *slept)
}

func TestRetryingSenderStopsOnRejection(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	s, slept := newTestRetryingSender(NewHTTPSender(srv.URL, "", time.Second), 3)
	err := s.Send(context.Background(), KindPaymentFailed, nil)

	var relayErr *RelayError
	require.ErrorAs(t, err, &relayErr)
	assert.Equal(t, http.StatusBadRequest, relayErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, *slept)
}

func TestRetryingSenderGivesUp(t *testing.T) {
	sender := &recordingSender{err: errors.New("relay unreachable")}
	s, slept := newTestRetryingSender(sender, 2)

	err := s.Send(context.Background(), KindPaymentFailed, nil)
	assert.EqualError(t, err, "relay unreachable")
	assert.Len(t, sender.kinds, 2)
	assert.Len(t, *slept, 1)
}

func TestSleepContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
