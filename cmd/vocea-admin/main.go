package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/voceacampusului/vocea/pkg/app"
	"github.com/voceacampusului/vocea/pkg/audit"
	"github.com/voceacampusului/vocea/pkg/config"
	"github.com/voceacampusului/vocea/pkg/database"
	"github.com/voceacampusului/vocea/pkg/plans"
)

var envFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "vocea-admin",
		Short:         "Operational commands for the Vocea Campusului backend",
		Version:       app.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional .env file loaded before the environment")

	root.AddCommand(
		newMigrateCmd(),
		newSeedPlansCmd(),
		newRunBillingCmd(),
		newSweepCmd(),
		newExpirePendingCmd(),
		newReconcilePlansCmd(),
		newOrderHistoryCmd(),
	)
	return root
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back schema migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := app.Init(envFile)
			if err != nil {
				return err
			}
			if err := database.RunMigrations(cfg.Database.URL); err != nil {
				return err
			}
			logger.Info("migrations applied")
			return nil
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps < 1 {
				return fmt.Errorf("--steps must be at least 1")
			}
			cfg, logger, err := app.Init(envFile)
			if err != nil {
				return err
			}
			if err := database.RollbackMigrations(cfg.Database.URL, steps); err != nil {
				return err
			}
			logger.WithField("steps", steps).Info("migrations rolled back")
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "Number of migrations to roll back")
	cmd.AddCommand(down)
	return cmd
}

// newSeedPlansCmd writes the catalog without building the full app, so it
// works on a freshly migrated database.
func newSeedPlansCmd() *cobra.Command {
	var overwrite bool
	cmd := &cobra.Command{
		Use:   "seed-plans",
		Short: "Insert the plan catalog into the plans table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := app.Init(envFile)
			if err != nil {
				return err
			}
			catalog, err := app.LoadCatalog(cfg.Catalog)
			if err != nil {
				return err
			}
			return withDB(cmd.Context(), cfg, logger, func(db *sql.DB) error {
				seeded, err := plans.NewPostgresStore(db, cfg.Catalog.CacheTTL).Seed(cmd.Context(), catalog, overwrite)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), seeded)
			})
		},
	}
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Update prices and features of existing plans")
	return cmd
}

func newRunBillingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run-billing",
		Short: "Run one billing cycle now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app.App) (interface{}, error) {
				return a.Billing.RunCycle(cmd.Context(), time.Now())
			})
		},
	}
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Deactivate expired projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app.App) (interface{}, error) {
				return a.Sweeper.Sweep(cmd.Context(), time.Now())
			})
		},
	}
}

func newExpirePendingCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "expire-pending",
		Short: "Verify and settle checkouts left pending",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app.App) (interface{}, error) {
				return a.Orders.ExpireStalePending(cmd.Context(), time.Now(), timeout)
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "older-than", 0, "Pending age to settle (defaults to the configured timeout)")
	return cmd
}

func newReconcilePlansCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile-plans",
		Short: "Rewrite users.plan_type from the active subscriptions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app.App) (interface{}, error) {
				return a.Subscriptions.ReconcilePlanTypes(cmd.Context())
			})
		},
	}
}

func newOrderHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "order-history <order-id>",
		Short: "Print the recorded state changes of an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := app.Init(envFile)
			if err != nil {
				return err
			}
			return withDB(cmd.Context(), cfg, logger, func(db *sql.DB) error {
				events, err := audit.NewDBLogger(db).ListForOrder(cmd.Context(), args[0], limit)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), events)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", audit.DefaultListLimit, "Maximum number of events")
	return cmd
}

func withDB(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger, fn func(db *sql.DB) error) error {
	db, err := database.Open(ctx, database.Config{URL: cfg.Database.URL, Timeout: cfg.Database.Timeout})
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Debug("database connection established")
	return fn(db)
}

func withApp(cmd *cobra.Command, fn func(a *app.App) (interface{}, error)) error {
	cfg, logger, err := app.Init(envFile)
	if err != nil {
		return err
	}
	a, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := fn(a)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), res)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
