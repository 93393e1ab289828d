package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/voceacampusului/vocea/pkg/app"
	"github.com/voceacampusului/vocea/pkg/observability"
)

var (
	envFile = flag.String("env-file", ".env", "Optional .env file loaded before the environment")
	runOnce = flag.Bool("run-once", false, "Run every job once and exit")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "vocea-scheduler: %v\n", err)
		os.Exit(1)
	}
}

type job struct {
	name     string
	schedule string
	fn       func(ctx context.Context) (interface{}, error)
}

func run() error {
	cfg, logger, err := app.Init(*envFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otelProviders, err := observability.InitOTel(ctx, app.OTelConfig(cfg.Telemetry), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	defer observability.ShutdownOTel(context.Background(), otelProviders, logger)

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	jobs := []job{
		{"billing", cfg.Cron.BillingSchedule, func(ctx context.Context) (interface{}, error) {
			return a.Billing.RunCycle(ctx, time.Now())
		}},
		{"sweep", cfg.Cron.SweepSchedule, func(ctx context.Context) (interface{}, error) {
			return a.Sweeper.Sweep(ctx, time.Now())
		}},
		{"pending", cfg.Cron.PendingSchedule, func(ctx context.Context) (interface{}, error) {
			return a.Orders.ExpireStalePending(ctx, time.Now(), 0)
		}},
	}

	// Run once mode (for testing or backfilling)
	if *runOnce {
		for _, j := range jobs {
			if err := runJob(ctx, j, logger); err != nil {
				return err
			}
		}
		return nil
	}

	c := cron.New(cron.WithLocation(time.UTC))
	for _, j := range jobs {
		j := j
		if _, err := c.AddFunc(j.schedule, scheduled(ctx, j, logger)); err != nil {
			return fmt.Errorf("failed to schedule %s job: %w", j.name, err)
		}
		logger.WithFields(logrus.Fields{"job": j.name, "schedule": j.schedule}).Info("job scheduled")
	}

	c.Start()
	logger.Info("scheduler started")

	<-ctx.Done()
	logger.Info("shutting down scheduler")
	<-c.Stop().Done()
	logger.Info("scheduler stopped")
	return nil
}

// scheduled adapts a job to a cron callback. There is no caller to return
// a failure to, so it is logged here.
func scheduled(ctx context.Context, j job, logger logrus.FieldLogger) func() {
	return func() {
		if err := runJob(ctx, j, logger); err != nil {
			logger.WithError(err).WithField("job", j.name).Error("job failed")
		}
	}
}

// runJob logs successful runs and returns failures to the caller.
func runJob(ctx context.Context, j job, logger logrus.FieldLogger) error {
	start := time.Now()

	res, err := j.fn(ctx)
	if err != nil {
		return fmt.Errorf("%s job: %w", j.name, err)
	}
	logger.WithField("job", j.name).WithFields(logrus.Fields{
		"result":      res,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("job completed")
	return nil
}
