package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/voceacampusului/vocea/pkg/apperrors"
	"github.com/voceacampusului/vocea/pkg/plans"
	"github.com/voceacampusului/vocea/pkg/subscriptions"
)

// Store persists orders and their subscription side effects.
type Store interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, orderID string) (*Order, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*Order, error)
	SetCheckoutRef(ctx context.Context, orderID, ref string) error
	// Transition writes next over prev if the stored order still matches
	// prev, and applies effect in the same transaction.
	Transition(ctx context.Context, prev, next *Order, effect SubscriptionEffect) error
	// ListDue returns active recurring orders whose next charge is due.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*Order, error)
	// Claim moves next_charge_at from observed to leaseUntil. Only one
	// caller can claim a given observed value.
	Claim(ctx context.Context, orderID string, observed, leaseUntil time.Time) (bool, error)
	// ListStalePending pages PENDING orders created before createdBefore,
	// ordered by (created_at, order_id) and starting after the cursor.
	ListStalePending(ctx context.Context, createdBefore time.Time, after PendingCursor, limit int) ([]*Order, error)
}

// PendingCursor marks the last order of a ListStalePending page. The zero
// value starts from the oldest order.
type PendingCursor struct {
	CreatedAt time.Time
	OrderID   string
}

// PostgresStore implements Store on the orders, subscriptions and users
// tables.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const orderSelect = `
	SELECT o.order_id, o.user_id, o.plan_id, p.name, o.status, o.is_recurring, o.recurring_status,
	       o.last_charge_at, o.next_charge_at, o.amount, o.currency, o.failed_attempts,
	       o.checkout_ref, o.customer_ref, o.payment_method_ref, o.created_at, o.updated_at
	FROM orders o
	JOIN plans p ON p.id = o.plan_id`

func (s *PostgresStore) Create(ctx context.Context, o *Order) error {
	query := `
		INSERT INTO orders (order_id, user_id, plan_id, status, is_recurring, amount, currency)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query,
		o.OrderID, o.UserID, o.PlanID, o.Status, o.IsRecurring, o.Amount, o.Currency,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, orderID string) (*Order, error) {
	row := s.db.QueryRowContext(ctx, orderSelect+" WHERE o.order_id = $1", orderID)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound(CodeOrderNotFound, "order not found")
	}
	return o, err
}

// ListByUser returns the user's orders, newest first.
func (s *PostgresStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Order, error) {
	return s.list(ctx, orderSelect+" WHERE o.user_id = $1 ORDER BY o.created_at DESC LIMIT $2", userID, limit)
}

func (s *PostgresStore) SetCheckoutRef(ctx context.Context, orderID, ref string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET checkout_ref = $2, updated_at = NOW() WHERE order_id = $1", orderID, ref)
	if err != nil {
		return fmt.Errorf("failed to set checkout ref: %w", err)
	}
	return nil
}

func (s *PostgresStore) Transition(ctx context.Context, prev, next *Order, effect SubscriptionEffect) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE orders SET
			status = $2,
			recurring_status = $3,
			last_charge_at = $4,
			next_charge_at = $5,
			failed_attempts = $6,
			customer_ref = $7,
			payment_method_ref = $8,
			updated_at = NOW()
		WHERE order_id = $1
		  AND status = $9
		  AND recurring_status IS NOT DISTINCT FROM $10
		  AND failed_attempts = $11
	`
	result, err := tx.ExecContext(ctx, query,
		next.OrderID, next.Status, nullString(string(next.RecurringStatus)),
		next.LastChargeAt, next.NextChargeAt, next.FailedAttempts,
		nullString(next.CustomerRef), nullString(next.PaymentMethodRef),
		prev.Status, nullString(string(prev.RecurringStatus)), prev.FailedAttempts,
	)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		return ErrConflict
	}

	switch effect {
	case EffectActivate:
		if err := activate(ctx, tx, next); err != nil {
			return err
		}
	case EffectExpire:
		if err := end(ctx, tx, next, subscriptions.StatusExpired); err != nil {
			return err
		}
	case EffectCancel:
		if err := end(ctx, tx, next, subscriptions.StatusCancelled); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// activate replaces any active subscription of the user with one for o.
func activate(ctx context.Context, tx *sql.Tx, o *Order) error {
	if _, err := tx.ExecContext(ctx,
		"UPDATE subscriptions SET status = $2, updated_at = NOW() WHERE user_id = $1 AND status = 'active'",
		o.UserID, subscriptions.StatusCancelled); err != nil {
		return fmt.Errorf("failed to close previous subscription: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO subscriptions (user_id, order_id, plan, status) VALUES ($1, $2, $3, $4)",
		o.UserID, o.OrderID, o.Plan, subscriptions.StatusActive); err != nil {
		return fmt.Errorf("failed to insert subscription: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE users SET plan_type = $2, updated_at = NOW() WHERE id = $1", o.UserID, o.Plan); err != nil {
		return fmt.Errorf("failed to update plan type: %w", err)
	}
	return nil
}

// end closes the subscription granted by o. The user drops to Basic only
// if that subscription was still the active one.
func end(ctx context.Context, tx *sql.Tx, o *Order, status subscriptions.Status) error {
	result, err := tx.ExecContext(ctx,
		"UPDATE subscriptions SET status = $2, updated_at = NOW() WHERE order_id = $1 AND status = 'active'",
		o.OrderID, status)
	if err != nil {
		return fmt.Errorf("failed to end subscription: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		return nil
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE users SET plan_type = $2, updated_at = NOW() WHERE id = $1", o.UserID, plans.TierBasic); err != nil {
		return fmt.Errorf("failed to downgrade plan type: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListDue(ctx context.Context, now time.Time, limit int) ([]*Order, error) {
	query := orderSelect + `
	WHERE o.is_recurring = true
	  AND o.status = 'PAID'
	  AND o.recurring_status = 'ACTIVE'
	  AND o.next_charge_at <= $1
	ORDER BY o.next_charge_at
	LIMIT $2`
	return s.list(ctx, query, now, limit)
}

func (s *PostgresStore) Claim(ctx context.Context, orderID string, observed, leaseUntil time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE orders SET next_charge_at = $3, updated_at = NOW()
		WHERE order_id = $1 AND next_charge_at = $2 AND recurring_status = 'ACTIVE'
	`, orderID, observed, leaseUntil)
	if err != nil {
		return false, fmt.Errorf("failed to claim order: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n == 1, nil
}

func (s *PostgresStore) ListStalePending(ctx context.Context, createdBefore time.Time, after PendingCursor, limit int) ([]*Order, error) {
	return s.list(ctx, orderSelect+` WHERE o.status = 'PENDING' AND o.created_at < $1
		AND (o.created_at, o.order_id) > ($2, $3)
		ORDER BY o.created_at, o.order_id LIMIT $4`,
		createdBefore, after.CreatedAt, after.OrderID, limit)
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*Order, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var out []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanOrder(row interface{ Scan(...any) error }) (*Order, error) {
	var (
		o                                 Order
		plan, status                      string
		recurring, checkout, customer, pm sql.NullString
		lastCharge, nextCharge            sql.NullTime
	)
	err := row.Scan(&o.OrderID, &o.UserID, &o.PlanID, &plan, &status, &o.IsRecurring, &recurring,
		&lastCharge, &nextCharge, &o.Amount, &o.Currency, &o.FailedAttempts,
		&checkout, &customer, &pm, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}
	o.Plan = plans.Tier(plan)
	o.Status = Status(status)
	o.RecurringStatus = RecurringStatus(recurring.String)
	if lastCharge.Valid {
		o.LastChargeAt = &lastCharge.Time
	}
	if nextCharge.Valid {
		o.NextChargeAt = &nextCharge.Time
	}
	o.CheckoutRef = checkout.String
	o.CustomerRef = customer.String
	o.PaymentMethodRef = pm.String
	return &o, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
