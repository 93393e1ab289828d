package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/voceacampusului/vocea/pkg/apperrors"
	"github.com/voceacampusului/vocea/pkg/plans"
)

// PostgresStore reads and writes the users table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const userColumns = "id, clerk_id, email, first_name, last_name, university, plan_type, created_at, updated_at"

func (s *PostgresStore) Get(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id)
	return scanUser(row)
}

func (s *PostgresStore) GetByClerkID(ctx context.Context, clerkID string) (*User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE clerk_id = $1", clerkID)
	return scanUser(row)
}

// EnsureUser returns the user for clerkID, creating a Basic account on
// first sight. A changed email is written through.
func (s *PostgresStore) EnsureUser(ctx context.Context, clerkID, email string) (*User, error) {
	query := `
		INSERT INTO users (id, clerk_id, email, plan_type)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (clerk_id) DO UPDATE SET
			email = CASE WHEN EXCLUDED.email = '' THEN users.email ELSE EXCLUDED.email END,
			updated_at = CASE WHEN EXCLUDED.email <> '' AND EXCLUDED.email <> users.email THEN NOW() ELSE users.updated_at END
		RETURNING ` + userColumns

	row := s.db.QueryRowContext(ctx, query, uuid.NewString(), clerkID, email, plans.TierBasic)
	u, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure user: %w", err)
	}
	return u, nil
}

// SetPlanType overwrites the denormalized plan column.
func (s *PostgresStore) SetPlanType(ctx context.Context, id string, tier plans.Tier) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE users SET plan_type = $2, updated_at = NOW() WHERE id = $1", id, tier)
	if err != nil {
		return fmt.Errorf("failed to set plan type: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to set plan type: %w", err)
	}
	if n == 0 {
		return apperrors.NotFound(CodeUserNotFound, "user not found")
	}
	return nil
}

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var (
		u                               User
		firstName, lastName, university sql.NullString
		planType                        sql.NullString
	)
	err := row.Scan(&u.ID, &u.ClerkID, &u.Email, &firstName, &lastName, &university,
		&planType, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.Wrap(apperrors.KindNotFound, CodeUserNotFound, "user not found", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	u.FirstName = firstName.String
	u.LastName = lastName.String
	u.University = university.String
	u.PlanType = plans.Tier(planType.String)
	return &u, nil
}
