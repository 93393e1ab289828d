package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voceacampusului/vocea/pkg/config"
	"github.com/voceacampusului/vocea/pkg/middleware"
	"github.com/voceacampusului/vocea/pkg/notifications"
	"github.com/voceacampusului/vocea/pkg/payments"
	"github.com/voceacampusului/vocea/pkg/plans"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadCatalog(t *testing.T) {
	c, err := LoadCatalog(config.CatalogConfig{})
	require.NoError(t, err)
	assert.Len(t, c.Plans(), 4)

	path := writeFile(t, "plans.yaml", `
plans:
  - {name: Basic, price: 0, currency: RON}
  - {name: Bronze, price: 2499, currency: RON}
  - {name: Premium, price: 4499, currency: RON}
  - {name: Gold, price: 8999, currency: RON}
`)
	c, err = LoadCatalog(config.CatalogConfig{File: path})
	require.NoError(t, err)
	bronze, ok := c.Get(plans.TierBronze)
	require.True(t, ok)
	assert.Equal(t, int64(2499), bronze.Price)

	_, err = LoadCatalog(config.CatalogConfig{File: filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)
}

func TestLoadTerms(t *testing.T) {
	set, err := LoadTerms(config.ModerationConfig{})
	require.NoError(t, err)
	assert.Equal(t, 0, set.Len())

	set, err = LoadTerms(config.ModerationConfig{TermsFile: writeFile(t, "terms.yaml", "terms: [spam, free money]\n")})
	require.NoError(t, err)
	assert.Equal(t, 2, set.Len())
}

func TestMachineConfig(t *testing.T) {
	mc := MachineConfig(config.BillingConfig{
		PeriodMonths:       3,
		RetryMaxAttempts:   5,
		RetryInitialDelay:  time.Hour,
		RetryMaxDelay:      48 * time.Hour,
		RetryMultiplier:    3,
		CancelOnExhaustion: false,
	})
	assert.Equal(t, 3, mc.BillingPeriodMonths)
	assert.Equal(t, 5, mc.Retry.MaxAttempts)
	assert.Equal(t, 48*time.Hour, mc.Retry.MaxDelay)
	assert.Equal(t, 3.0, mc.Retry.BackoffMultiplier)
	assert.False(t, mc.CancelOnExhaustion)
}

func TestNewPaymentProvider(t *testing.T) {
	assert.IsType(t, payments.Disabled{}, NewPaymentProvider(config.PaymentsConfig{Enabled: false}))
	assert.IsType(t, &payments.StripeProvider{}, NewPaymentProvider(config.PaymentsConfig{
		Enabled:         true,
		StripeSecretKey: "sk_test_123",
		WebhookSecret:   "whsec_123",
	}))
}

func TestNewSender(t *testing.T) {
	logger, _ := test.NewNullLogger()
	assert.IsType(t, &notifications.LogSender{}, NewSender(config.NotificationsConfig{}, logger))
	assert.IsType(t, &notifications.RetryingSender{}, NewSender(config.NotificationsConfig{RelayURL: "http://relay.local/notify"}, logger))
}

func TestNewCheckoutLimiter(t *testing.T) {
	cfg := config.RateLimitConfig{CheckoutPerMinute: 10, CheckoutBurst: 3, Distributed: true}
	assert.IsType(t, &middleware.RateLimiter{}, NewCheckoutLimiter(cfg, nil))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	limiter := NewCheckoutLimiter(cfg, client)
	require.IsType(t, &middleware.DistributedRateLimiter{}, limiter)
	ok, err := limiter.Allow(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("ratelimit:checkout:u1"))

	cfg.Distributed = false
	assert.IsType(t, &middleware.RateLimiter{}, NewCheckoutLimiter(cfg, client))
}

func TestOTelConfig(t *testing.T) {
	oc := OTelConfig(config.TelemetryConfig{OTelEnabled: true, OTelEndpoint: "collector:4317", ServiceName: "vocea", SampleRatio: 0.5})
	assert.True(t, oc.Enabled)
	assert.Equal(t, "collector:4317", oc.Endpoint)
	assert.Equal(t, Version, oc.ServiceVersion)
	assert.Equal(t, 0.5, oc.SampleRatio)
}

func TestNewFailsWithoutDatabase(t *testing.T) {
	logger, _ := test.NewNullLogger()
	cfg := &config.Config{Database: config.DatabaseConfig{
		URL:     "postgres://vocea@127.0.0.1:1/vocea?sslmode=disable",
		Timeout: 200 * time.Millisecond,
	}}

	_, err := New(context.Background(), cfg, logger)
	assert.Error(t, err)
}
