package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every environment variable name.
const Prefix = "VOCEA"

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Log           LogConfig
	Payments      PaymentsConfig
	Billing       BillingConfig
	Cron          CronConfig
	Identity      IdentityConfig
	Notifications NotificationsConfig
	Moderation    ModerationConfig
	Projects      ProjectsConfig
	Catalog       CatalogConfig
	Telemetry     TelemetryConfig
	RateLimit     RateLimitConfig `split_words:"true"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `default:"0.0.0.0"`
	Port            string        `default:"8080"`
	HealthPort      string        `split_words:"true" default:"9090"`
	ReadTimeout     time.Duration `split_words:"true" default:"15s"`
	WriteTimeout    time.Duration `split_words:"true" default:"15s"`
	IdleTimeout     time.Duration `split_words:"true" default:"60s"`
	ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	MaxBodyBytes    int64         `split_words:"true" default:"1048576"`
	CORSOrigins     []string      `split_words:"true" default:"http://localhost:3000"`
}

type DatabaseConfig struct {
	URL         string        `split_words:"true"`
	MaxConns    int           `split_words:"true" default:"20"`
	MinConns    int           `split_words:"true" default:"2"`
	MaxLifetime time.Duration `split_words:"true" default:"30m"`
	MaxIdleTime time.Duration `split_words:"true" default:"5m"`
	Timeout     time.Duration `default:"5s"`
	AutoMigrate bool          `split_words:"true" default:"false"`
}

// RedisConfig is optional. Without a URL the billing lock is skipped and
// rate limits stay in-process.
type RedisConfig struct {
	URL string `split_words:"true"`
}

type LogConfig struct {
	Level  string `default:"info"`
	Format string `default:"json"`
}

type PaymentsConfig struct {
	Enabled         bool   `default:"true"`
	StripeSecretKey string `split_words:"true"`
	WebhookSecret   string `split_words:"true"`
	SuccessURL      string `split_words:"true"`
	CancelURL       string `split_words:"true"`
	// PendingTimeout is how long a checkout may stay unconfirmed before it
	// is verified with the provider and failed.
	PendingTimeout time.Duration `split_words:"true" default:"24h"`
}

// BillingConfig tunes the recurring charge cycle.
type BillingConfig struct {
	PeriodMonths       int           `split_words:"true" default:"1"`
	BatchSize          int           `split_words:"true" default:"200"`
	Workers            int           `default:"4"`
	Lease              time.Duration `default:"15m"`
	ChargeTimeout      time.Duration `split_words:"true" default:"30s"`
	LockTTL            time.Duration `split_words:"true" default:"10m"`
	RetryMaxAttempts   int           `split_words:"true" default:"3"`
	RetryInitialDelay  time.Duration `split_words:"true" default:"1h"`
	RetryMaxDelay      time.Duration `split_words:"true" default:"24h"`
	RetryMultiplier    float64       `split_words:"true" default:"2"`
	CancelOnExhaustion bool          `split_words:"true" default:"true"`
}

// CronConfig guards the /internal/cron endpoints and drives the scheduler.
type CronConfig struct {
	Secret          string
	BillingSchedule string `split_words:"true" default:"@hourly"`
	SweepSchedule   string `split_words:"true" default:"@daily"`
	PendingSchedule string `split_words:"true" default:"*/30 * * * *"`
}

type IdentityConfig struct {
	Issuer   string
	Audience string
	CacheTTL time.Duration `split_words:"true" default:"5m"`
}

// NotificationsConfig selects the relay sender. An empty URL logs
// notifications instead of sending them.
type NotificationsConfig struct {
	RelayURL   string        `split_words:"true"`
	RelayToken string        `split_words:"true"`
	Timeout    time.Duration `default:"5s"`
	// RetryMaxAttempts counts the first send.
	RetryMaxAttempts int `split_words:"true" default:"3"`
}

type ModerationConfig struct {
	TermsFile string `split_words:"true"`
	Watch     bool   `default:"true"`
}

type ProjectsConfig struct {
	DefaultLifetime time.Duration `split_words:"true" default:"720h"`
}

// CatalogConfig optionally overrides the built-in plan catalog from YAML.
type CatalogConfig struct {
	File     string
	CacheTTL time.Duration `split_words:"true" default:"10m"`
}

// TelemetryConfig holds observability settings
type TelemetryConfig struct {
	MetricsEnabled bool    `split_words:"true" default:"true"`
	OTelEnabled    bool    `envconfig:"OTEL_ENABLED" default:"false"`
	OTelEndpoint   string  `envconfig:"OTEL_ENDPOINT" default:"localhost:4317"`
	OTelInsecure   bool    `envconfig:"OTEL_INSECURE" default:"true"`
	ServiceName    string  `split_words:"true" default:"vocea"`
	SampleRatio    float64 `split_words:"true" default:"1"`
}

type RateLimitConfig struct {
	CheckoutPerMinute int  `split_words:"true" default:"10"`
	CheckoutBurst     int  `split_words:"true" default:"3"`
	Distributed       bool `default:"true"`
}

// Load reads the optional env file and then the environment. Variables
// already set win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}
	if c.Cron.Secret == "" {
		return fmt.Errorf("cron secret is required")
	}
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Payments.Enabled {
		if c.Payments.StripeSecretKey == "" || c.Payments.WebhookSecret == "" {
			return fmt.Errorf("stripe secret key and webhook secret are required when payments are enabled")
		}
		if c.Payments.SuccessURL == "" || c.Payments.CancelURL == "" {
			return fmt.Errorf("checkout success and cancel URLs are required when payments are enabled")
		}
	}

	if c.Billing.PeriodMonths < 1 {
		return fmt.Errorf("billing period must be at least one month")
	}
	if c.Billing.RetryMaxAttempts < 1 {
		return fmt.Errorf("billing retry max attempts must be at least 1")
	}
	if c.Billing.Workers < 1 || c.Billing.BatchSize < 1 {
		return fmt.Errorf("billing workers and batch size must be positive")
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Log.Format)
	}

	if c.Telemetry.OTelEnabled && c.Telemetry.OTelEndpoint == "" {
		return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
	}
	return nil
}
