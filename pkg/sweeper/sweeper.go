// Package sweeper deactivates projects whose expiry has passed.
//
// A sweep is one bulk update, so it is idempotent and safe to run from
// several instances at once.
package sweeper

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/voceacampusului/vocea/pkg/observability"
)

var tracer = otel.Tracer("vocea/sweeper")

// Executor is satisfied by *sql.DB and *sql.Tx.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Result reports one sweep.
type Result struct {
	Deactivated int64 `json:"deactivated"`
}

// Sweeper deactivates expired projects.
type Sweeper struct {
	db      Executor
	metrics *observability.Metrics
	logger  logrus.FieldLogger
}

func New(db Executor, metrics *observability.Metrics, logger logrus.FieldLogger) *Sweeper {
	return &Sweeper{db: db, metrics: metrics, logger: logger}
}

// Sweep marks every active project with expires_at before now inactive.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (*Result, error) {
	ctx, span := tracer.Start(ctx, "sweeper.Sweep")
	defer span.End()
	start := time.Now()

	query := `UPDATE projects SET is_active = false, updated_at = $1 WHERE expires_at < $1 AND is_active = true`
	result, err := s.db.ExecContext(ctx, query, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "sweep failed")
		s.logger.WithError(err).Error("project sweep failed")
		return nil, fmt.Errorf("failed to deactivate expired projects: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get affected rows: %w", err)
	}

	span.SetAttributes(attribute.Int64("sweeper.deactivated", n))
	s.metrics.RecordDeactivated(n)
	s.logger.WithFields(logrus.Fields{
		"deactivated": n,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("project sweep completed")

	return &Result{Deactivated: n}, nil
}
