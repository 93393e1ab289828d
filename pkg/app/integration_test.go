//go:build integration

package app

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/voceacampusului/vocea/pkg/apperrors"
	"github.com/voceacampusului/vocea/pkg/billing"
	"github.com/voceacampusului/vocea/pkg/config"
	"github.com/voceacampusului/vocea/pkg/orders"
	"github.com/voceacampusului/vocea/pkg/payments"
	"github.com/voceacampusului/vocea/pkg/plans"
	"github.com/voceacampusului/vocea/pkg/projects"
)

// paidProvider approves every checkout and charge.
type paidProvider struct {
	charges atomic.Int32
}

func (p *paidProvider) CreateCheckout(ctx context.Context, req *payments.CheckoutRequest) (*payments.Checkout, error) {
	return &payments.Checkout{Reference: "cs_" + req.OrderID, RedirectURL: "https://pay.example"}, nil
}

func (p *paidProvider) InitiateCharge(ctx context.Context, req *payments.ChargeRequest) (*payments.ChargeResult, error) {
	p.charges.Add(1)
	return &payments.ChargeResult{Status: payments.StatusSucceeded, Reference: "pi_" + req.IdempotencyKey}, nil
}

func (p *paidProvider) VerifyStatus(ctx context.Context, reference string) (*payments.Verification, error) {
	return &payments.Verification{Status: payments.StatusSucceeded, CustomerRef: "cus_1", PaymentMethodRef: "pm_1"}, nil
}

func setupApp(t *testing.T) *App {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("vocea_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("Warning: Failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	logger, _ := test.NewNullLogger()
	cfg := &config.Config{
		Database: config.DatabaseConfig{URL: connStr, MaxConns: 20, Timeout: 10 * time.Second, AutoMigrate: true},
		Billing:  config.BillingConfig{PeriodMonths: 1, RetryMaxAttempts: 3, RetryInitialDelay: time.Hour, RetryMaxDelay: 24 * time.Hour, RetryMultiplier: 2, CancelOnExhaustion: true, Workers: 4, BatchSize: 50},
		Projects: config.ProjectsConfig{DefaultLifetime: 24 * time.Hour},
	}
	a, err := New(ctx, cfg, logger)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestSubscriptionLifecycle(t *testing.T) {
	a := setupApp(t)
	ctx := context.Background()

	user, err := a.Users.EnsureUser(ctx, "clerk_1", "ana@campus.example")
	require.NoError(t, err)

	tier, err := a.Entitlements.Resolve(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, plans.TierBasic, tier)

	provider := &paidProvider{}
	svc := orders.NewService(a.OrderStore, a.Catalog, provider, nil, orders.ServiceConfig{
		Machine: MachineConfig(a.Config.Billing),
	}, a.Metrics, a.Logger)
	svc.SetPlanSource(a.Plans)
	svc.SetAuditLogger(a.Audit)

	resp, err := svc.Checkout(ctx, user.ID, user.Email, &orders.CheckoutRequest{Plan: "Premium", Recurring: true})
	require.NoError(t, err)
	listed, err := a.Plans.GetByName(ctx, plans.TierPremium)
	require.NoError(t, err)
	assert.Equal(t, listed.Price, resp.Order.Amount)
	assert.Equal(t, listed.ID, resp.Order.PlanID)

	out, err := svc.HandleConfirmation(ctx, &payments.Confirmation{Kind: payments.ConfirmationPaid, OrderID: resp.Order.OrderID})
	require.NoError(t, err)
	assert.Equal(t, orders.StateRecurringActive, out.To)

	// A duplicate delivery changes nothing.
	out, err = svc.HandleConfirmation(ctx, &payments.Confirmation{Kind: payments.ConfirmationPaid, OrderID: resp.Order.OrderID})
	require.NoError(t, err)
	assert.False(t, out.Changed)

	tier, err = a.Entitlements.Resolve(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, plans.TierPremium, tier)

	for i := 0; i < 4; i++ {
		_, err := a.Quota.CreateProject(ctx, user.ID, &projects.CreateRequest{Title: "Project"})
		require.NoError(t, err)
	}
	_, err = a.Quota.CreateProject(ctx, user.ID, &projects.CreateRequest{Title: "One too many"})
	assert.True(t, apperrors.IsForbidden(err))

	driver := billing.NewDriver(a.OrderStore, svc, provider, nil, billing.DefaultConfig(), a.Metrics, a.Logger)
	res, err := driver.RunCycle(ctx, time.Now().AddDate(0, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Charged)
	assert.Equal(t, int32(1), provider.charges.Load())

	cancelled, err := svc.Cancel(ctx, user.ID, resp.Order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, orders.StateRecurringCancelled, cancelled.State())

	tier, err = a.Entitlements.Resolve(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, plans.TierBasic, tier)

	history, err := a.Audit.ListForOrder(ctx, resp.Order.OrderID, 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, string(orders.EventPaymentConfirmed), history[0].Event)
	assert.Equal(t, string(orders.EventChargeSucceeded), history[1].Event)
	assert.Equal(t, string(orders.StateRecurringCancelled), history[2].To)

	swept, err := a.Sweeper.Sweep(ctx, time.Now().Add(48*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(4), swept.Deactivated)
}

func TestConcurrentProjectCreationRespectsQuota(t *testing.T) {
	a := setupApp(t)
	ctx := context.Background()

	user, err := a.Users.EnsureUser(ctx, "clerk_2", "ion@campus.example")
	require.NoError(t, err)
	require.NoError(t, a.Users.SetPlanType(ctx, user.ID, plans.TierBronze))

	var wg sync.WaitGroup
	var created atomic.Int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := a.Quota.CreateProject(ctx, user.ID, &projects.CreateRequest{Title: "Parallel"}); err == nil {
				created.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(2), created.Load())
}
