package subscriptions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/voceacampusului/vocea/pkg/apperrors"
	"github.com/voceacampusului/vocea/pkg/plans"
)

// PostgresStore reads the subscriptions table.
type PostgresStore struct {
	db     *sql.DB
	logger logrus.FieldLogger
}

func NewPostgresStore(db *sql.DB, logger logrus.FieldLogger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

const subscriptionColumns = "id, user_id, order_id, plan, status, created_at, updated_at"

// GetActive returns the user's active subscription.
func (s *PostgresStore) GetActive(ctx context.Context, userID string) (*Subscription, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+subscriptionColumns+" FROM subscriptions WHERE user_id = $1 AND status = 'active'", userID)
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound(CodeNoActiveSubscription, "no active subscription")
	}
	return sub, err
}

// ListByUser returns the user's subscriptions, newest first.
func (s *PostgresStore) ListByUser(ctx context.Context, userID string) ([]*Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+subscriptionColumns+" FROM subscriptions WHERE user_id = $1 ORDER BY created_at DESC, id DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	var out []*Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// ReconcilePlanTypes rewrites users.plan_type wherever it disagrees with
// the active subscription (or Basic when there is none).
func (s *PostgresStore) ReconcilePlanTypes(ctx context.Context) (*ReconcileResult, error) {
	query := `
		UPDATE users u
		SET plan_type = COALESCE(s.plan, $1), updated_at = NOW()
		FROM users u2
		LEFT JOIN subscriptions s ON s.user_id = u2.id AND s.status = 'active'
		WHERE u.id = u2.id
		  AND u.plan_type IS DISTINCT FROM COALESCE(s.plan, $1)
	`
	result, err := s.db.ExecContext(ctx, query, plans.TierBasic)
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile plan types: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get affected rows: %w", err)
	}

	s.logger.WithField("updated", n).Info("reconciled user plan types")
	return &ReconcileResult{Updated: n}, nil
}

func scanSubscription(row interface{ Scan(...any) error }) (*Subscription, error) {
	var (
		sub     Subscription
		orderID sql.NullString
		plan    string
		status  string
	)
	err := row.Scan(&sub.ID, &sub.UserID, &orderID, &plan, &status, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan subscription: %w", err)
	}
	sub.OrderID = orderID.String
	sub.Plan = plans.Tier(plan)
	sub.Status = Status(status)
	return &sub, nil
}
