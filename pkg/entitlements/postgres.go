package entitlements

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/voceacampusului/vocea/pkg/apperrors"
	"github.com/voceacampusului/vocea/pkg/users"
)

// PostgresStore reads the user row and its active subscription in one query.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) LookupPlan(ctx context.Context, userID string) (*Lookup, error) {
	query := `
		SELECT s.plan, u.plan_type
		FROM users u
		LEFT JOIN subscriptions s ON s.user_id = u.id AND s.status = 'active'
		WHERE u.id = $1
	`
	var subPlan, planType sql.NullString
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&subPlan, &planType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound(users.CodeUserNotFound, "user not found")
	}
	if err != nil {
		return nil, apperrors.Internal("entitlements.LookupPlan", fmt.Errorf("query user plan: %w", err))
	}
	return &Lookup{SubscriptionPlan: subPlan.String, UserPlanType: planType.String}, nil
}
