// Package app wires configuration, storage and services into the running
// processes. cmd/vocea, cmd/vocea-scheduler and cmd/vocea-admin share it.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/voceacampusului/vocea/pkg/api"
	"github.com/voceacampusului/vocea/pkg/audit"
	"github.com/voceacampusului/vocea/pkg/billing"
	"github.com/voceacampusului/vocea/pkg/config"
	"github.com/voceacampusului/vocea/pkg/database"
	"github.com/voceacampusului/vocea/pkg/entitlements"
	"github.com/voceacampusului/vocea/pkg/identity"
	"github.com/voceacampusului/vocea/pkg/middleware"
	"github.com/voceacampusului/vocea/pkg/moderation"
	"github.com/voceacampusului/vocea/pkg/notifications"
	"github.com/voceacampusului/vocea/pkg/observability"
	"github.com/voceacampusului/vocea/pkg/orders"
	"github.com/voceacampusului/vocea/pkg/payments"
	"github.com/voceacampusului/vocea/pkg/plans"
	"github.com/voceacampusului/vocea/pkg/projects"
	"github.com/voceacampusului/vocea/pkg/quota"
	"github.com/voceacampusului/vocea/pkg/subscriptions"
	"github.com/voceacampusului/vocea/pkg/sweeper"
	"github.com/voceacampusului/vocea/pkg/users"
)

// Version is set at build time with -ldflags.
var Version = "dev"

// provider is the full payment surface used by the process.
type provider interface {
	payments.Provider
	payments.WebhookParser
}

// App holds the shared dependencies of every binary.
type App struct {
	Config   *config.Config
	Logger   *logrus.Logger
	Registry *prometheus.Registry
	Metrics  *observability.Metrics

	DB    *sql.DB
	Redis *redis.Client // nil when not configured

	Catalog       *plans.Catalog
	Plans         *plans.PostgresStore
	Users         *users.PostgresStore
	Subscriptions *subscriptions.PostgresStore
	Projects      *projects.PostgresStore
	OrderStore    *orders.PostgresStore

	Entitlements *entitlements.Resolver
	Quota        *quota.Enforcer
	Payments     provider
	Notifier     *notifications.Dispatcher
	Audit        *audit.DBLogger
	Orders       *orders.Service
	Billing      *billing.Driver
	Sweeper      *sweeper.Sweeper
	Moderation   *moderation.Filter
}

// New connects to the stores and builds every service. Callers must Close
// the App.
func New(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*App, error) {
	a := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
	}
	a.Metrics = observability.NewMetrics(a.Registry)

	db, err := database.Open(ctx, database.Config{
		URL:         cfg.Database.URL,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		MaxLifetime: cfg.Database.MaxLifetime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
		Timeout:     cfg.Database.Timeout,
	})
	if err != nil {
		return nil, err
	}
	a.DB = db
	logger.Info("database connection established")

	if cfg.Database.AutoMigrate {
		if err := database.RunMigrations(cfg.Database.URL); err != nil {
			a.Close()
			return nil, err
		}
		logger.Info("database migrations applied")
	}

	if cfg.Redis.URL != "" {
		client, err := database.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Redis = client
		logger.Info("redis connection established")
	}

	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config
	logger := a.Logger

	catalog, err := LoadCatalog(cfg.Catalog)
	if err != nil {
		return err
	}
	a.Plans = plans.NewPostgresStore(a.DB, cfg.Catalog.CacheTTL)
	seeded, err := a.Plans.Seed(ctx, catalog, cfg.Catalog.File != "")
	if err != nil {
		return fmt.Errorf("seed plans: %w", err)
	}
	if a.Catalog, err = plans.FromStored(seeded); err != nil {
		return fmt.Errorf("load stored plans: %w", err)
	}

	a.Users = users.NewPostgresStore(a.DB)
	a.Subscriptions = subscriptions.NewPostgresStore(a.DB, logger)
	a.Projects = projects.NewPostgresStore(a.DB)
	a.OrderStore = orders.NewPostgresStore(a.DB)

	a.Entitlements = entitlements.NewResolver(entitlements.NewPostgresStore(a.DB), a.Catalog, logger)
	a.Quota = quota.NewEnforcer(a.Entitlements, a.Catalog, a.Projects,
		quota.Config{DefaultLifetime: cfg.Projects.DefaultLifetime}, a.Metrics, logger)

	a.Payments = NewPaymentProvider(cfg.Payments)
	a.Notifier = notifications.NewDispatcher(NewSender(cfg.Notifications, logger), cfg.Notifications.Timeout, a.Metrics, logger)

	a.Orders = orders.NewService(a.OrderStore, a.Catalog, a.Payments, a.Notifier, orders.ServiceConfig{
		SuccessURL:     cfg.Payments.SuccessURL,
		CancelURL:      cfg.Payments.CancelURL,
		PendingTimeout: cfg.Payments.PendingTimeout,
		Machine:        MachineConfig(cfg.Billing),
	}, a.Metrics, logger)
	a.Orders.SetPlanSource(a.Plans)
	a.Audit = audit.NewDBLogger(a.DB)
	a.Orders.SetAuditLogger(audit.NewMultiLogger(a.Audit, audit.NewLogrusLogger(logger)))

	var locker billing.Locker
	if a.Redis != nil {
		locker = billing.NewRedisLocker(a.Redis)
	}
	a.Billing = billing.NewDriver(a.OrderStore, a.Orders, a.Payments, locker, billing.Config{
		BatchSize:     cfg.Billing.BatchSize,
		Workers:       cfg.Billing.Workers,
		Lease:         cfg.Billing.Lease,
		ChargeTimeout: cfg.Billing.ChargeTimeout,
		LockTTL:       cfg.Billing.LockTTL,
	}, a.Metrics, logger)

	a.Sweeper = sweeper.New(a.DB, a.Metrics, logger)

	terms, err := LoadTerms(cfg.Moderation)
	if err != nil {
		return err
	}
	a.Moderation = moderation.NewFilter(terms, logger)
	logger.WithField("terms", terms.Len()).Info("moderation terms loaded")
	return nil
}

// LoadCatalog returns the built-in catalog or the one in cfg.File.
func LoadCatalog(cfg config.CatalogConfig) (*plans.Catalog, error) {
	if cfg.File == "" {
		return plans.DefaultCatalog(), nil
	}
	c, err := plans.LoadCatalogFile(cfg.File)
	if err != nil {
		return nil, fmt.Errorf("load plan catalog: %w", err)
	}
	return c, nil
}

// LoadTerms reads the moderation terms file, or returns an empty set.
func LoadTerms(cfg config.ModerationConfig) (*moderation.TermSet, error) {
	if cfg.TermsFile == "" {
		return moderation.NewTermSet(), nil
	}
	set, err := moderation.LoadFile(cfg.TermsFile)
	if err != nil {
		return nil, fmt.Errorf("load moderation terms: %w", err)
	}
	return set, nil
}

// MachineConfig maps billing settings onto the order state machine.
func MachineConfig(cfg config.BillingConfig) orders.MachineConfig {
	return orders.MachineConfig{
		BillingPeriodMonths: cfg.PeriodMonths,
		Retry: orders.RetryConfig{
			MaxAttempts:       cfg.RetryMaxAttempts,
			InitialDelay:      cfg.RetryInitialDelay,
			MaxDelay:          cfg.RetryMaxDelay,
			BackoffMultiplier: cfg.RetryMultiplier,
		},
		CancelOnExhaustion: cfg.CancelOnExhaustion,
	}
}

func NewPaymentProvider(cfg config.PaymentsConfig) provider {
	if !cfg.Enabled {
		return payments.Disabled{}
	}
	return payments.NewStripeProvider(payments.StripeConfig{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.WebhookSecret,
	})
}

// NewSender posts to the relay when one is configured and logs otherwise.
func NewSender(cfg config.NotificationsConfig, logger logrus.FieldLogger) notifications.Sender {
	if cfg.RelayURL == "" {
		return notifications.NewLogSender(logger)
	}
	policy := notifications.NewRetryPolicy(notifications.RetryConfig{MaxAttempts: cfg.RetryMaxAttempts})
	return notifications.NewRetryingSender(notifications.NewHTTPSender(cfg.RelayURL, cfg.RelayToken, cfg.Timeout), policy, logger)
}

// NewCheckoutLimiter shares limits through Redis when available.
func NewCheckoutLimiter(cfg config.RateLimitConfig, client *redis.Client) middleware.Limiter {
	rl := &middleware.RateLimitConfig{
		RequestsPerWindow: cfg.CheckoutPerMinute,
		WindowDuration:    time.Minute,
		BurstSize:         cfg.CheckoutBurst,
	}
	if cfg.Distributed && client != nil {
		return middleware.NewDistributedRateLimiter(client, rl, "ratelimit:checkout")
	}
	return middleware.NewRateLimiter(rl)
}

// APIServer builds the HTTP handlers. It performs OIDC discovery against
// the configured issuer.
func (a *App) APIServer(ctx context.Context) (*api.Server, error) {
	if a.Config.Identity.Issuer == "" {
		return nil, fmt.Errorf("identity issuer is required to serve the API")
	}
	verifier, err := identity.NewOIDCVerifier(ctx, a.Config.Identity.Issuer, a.Config.Identity.Audience)
	if err != nil {
		return nil, err
	}
	auth := identity.NewResolver(verifier, a.Users, a.Config.Identity.CacheTTL, a.Logger)

	return api.NewServer(api.Deps{
		Plans:           a.Plans,
		Entitlements:    a.Entitlements,
		Quota:           a.Quota,
		Projects:        a.Projects,
		Content:         a.Moderation,
		Orders:          a.Orders,
		Webhooks:        a.Payments,
		Billing:         a.Billing,
		Sweeper:         a.Sweeper,
		Auth:            auth,
		CheckoutLimiter: NewCheckoutLimiter(a.Config.RateLimit, a.Redis),
		Metrics:         a.Metrics,
		Logger:          a.Logger,
	}), nil
}

// APIOptions returns the router options from config.
func (a *App) APIOptions() api.Options {
	return api.Options{
		CronSecret:   a.Config.Cron.Secret,
		CORSOrigins:  a.Config.Server.CORSOrigins,
		MaxBodyBytes: a.Config.Server.MaxBodyBytes,
	}
}

// HealthChecker probes the stores used by this App.
func (a *App) HealthChecker() *observability.HealthChecker {
	return observability.NewHealthChecker(a.DB, a.Redis, Version)
}

// OTelConfig maps telemetry settings onto the exporter config.
func OTelConfig(cfg config.TelemetryConfig) observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        cfg.OTelEnabled,
		Endpoint:       cfg.OTelEndpoint,
		ServiceName:    cfg.ServiceName,
		ServiceVersion: Version,
		Insecure:       cfg.OTelInsecure,
		SampleRatio:    cfg.SampleRatio,
	}
}

func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.WithError(err).Warn("failed to close redis")
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.WithError(err).Warn("failed to close database")
		}
	}
}

// Init loads configuration and builds the process logger.
func Init(envFile string) (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := observability.NewLogger(cfg.Log.Level, cfg.Log.Format, nil)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
