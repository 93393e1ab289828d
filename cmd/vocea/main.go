package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"github.com/voceacampusului/vocea/pkg/app"
	"github.com/voceacampusului/vocea/pkg/observability"
)

func main() {
	envFile := flag.String("env-file", ".env", "Optional .env file loaded before the environment")
	flag.Parse()

	if err := run(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "vocea: %v\n", err)
		os.Exit(1)
	}
}

func run(envFile string) error {
	cfg, logger, err := app.Init(envFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otelProviders, err := observability.InitOTel(ctx, app.OTelConfig(cfg.Telemetry), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := a.APIServer(ctx)
	if err != nil {
		return err
	}

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      srv.Handler(a.APIOptions()),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health/metrics server (separate port for k8s probes)
	healthRouter := mux.NewRouter()
	observability.RegisterHealthRoutes(healthRouter, a.HealthChecker())
	if cfg.Telemetry.MetricsEnabled {
		healthRouter.Handle("/metrics", observability.MetricsHandler(a.Registry))
	}
	healthServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler:      healthRouter,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("API server starting")
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("health server starting")
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})
	if cfg.Moderation.Watch && cfg.Moderation.TermsFile != "" {
		g.Go(func() error {
			if err := a.Moderation.Watch(gctx, cfg.Moderation.TermsFile); err != nil {
				logger.WithError(err).Warn("moderation terms watcher stopped")
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down servers")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("api server shutdown: %w", err))
		}
		if err := healthServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("health server shutdown: %w", err))
		}
		if err := observability.ShutdownOTel(shutdownCtx, otelProviders, logger); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
