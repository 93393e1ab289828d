package notifications

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/sirupsen/logrus"
)

// RetryConfig configures relay retries.
type RetryConfig struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialDelay:      250 * time.Millisecond,
		MaxDelay:          2 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// RetryPolicy implements exponential backoff.
type RetryPolicy struct {
	config RetryConfig
}

func NewRetryPolicy(config RetryConfig) *RetryPolicy {
	def := DefaultRetryConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = def.InitialDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = def.MaxDelay
	}
	if config.BackoffMultiplier <= 1.0 {
		config.BackoffMultiplier = def.BackoffMultiplier
	}
	return &RetryPolicy{config: config}
}

// ShouldRetry reports whether another attempt may follow attempts failed
// ones. Rejections the relay will repeat are not retried.
func (p *RetryPolicy) ShouldRetry(attempts int, err error) bool {
	if err == nil || attempts >= p.config.MaxAttempts {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var relayErr *RelayError
	if errors.As(err, &relayErr) {
		return relayErr.Temporary()
	}
	return true
}

// NextRetryDelay is the wait after attempts failed attempts:
// initialDelay * multiplier^(attempts-1), capped at MaxDelay.
func (p *RetryPolicy) NextRetryDelay(attempts int) time.Duration {
	if attempts <= 1 {
		return p.config.InitialDelay
	}
	delay := float64(p.config.InitialDelay) * math.Pow(p.config.BackoffMultiplier, float64(attempts-1))
	if delay > float64(p.config.MaxDelay) {
		return p.config.MaxDelay
	}
	return time.Duration(delay)
}

// RetryingSender retries a Sender under a RetryPolicy.
type RetryingSender struct {
	sender Sender
	policy *RetryPolicy
	logger logrus.FieldLogger
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewRetryingSender(sender Sender, policy *RetryPolicy, logger logrus.FieldLogger) *RetryingSender {
	return &RetryingSender{sender: sender, policy: policy, logger: logger, sleep: sleepContext}
}

func (s *RetryingSender) Send(ctx context.Context, kind Kind, payload Payload) error {
	for attempts := 1; ; attempts++ {
		err := s.sender.Send(ctx, kind, payload)
		if !s.policy.ShouldRetry(attempts, err) {
			return err
		}
		delay := s.policy.NextRetryDelay(attempts)
		s.logger.WithFields(logrus.Fields{
			"kind":     kind,
			"attempts": attempts,
			"delay":    delay,
		}).WithError(err).Debug("retrying notification")
		if err := s.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
