package projects

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/voceacampusului/vocea/pkg/apperrors"
	"github.com/voceacampusului/vocea/pkg/plans"
	"github.com/voceacampusului/vocea/pkg/users"
)

// PostgresStore reads and writes the projects table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const projectColumns = "id, user_id, title, description, is_active, expires_at, created_at, updated_at"

// CountActive returns how many active projects the user owns.
func (s *PostgresStore) CountActive(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM projects WHERE user_id = $1 AND is_active = true", userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count projects: %w", err)
	}
	return n, nil
}

// CreateWithinLimit inserts p unless the owner already has limit active
// projects. The owner row is locked for the duration of the check so two
// concurrent creates cannot both pass it. limit == plans.Unlimited skips
// the count.
func (s *PostgresStore) CreateWithinLimit(ctx context.Context, p *Project, limit int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var owner string
	err = tx.QueryRowContext(ctx, "SELECT id FROM users WHERE id = $1 FOR UPDATE", p.UserID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NotFound(users.CodeUserNotFound, "user not found")
	}
	if err != nil {
		return fmt.Errorf("failed to lock user: %w", err)
	}

	if limit != plans.Unlimited {
		var active int
		err = tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM projects WHERE user_id = $1 AND is_active = true", p.UserID).Scan(&active)
		if err != nil {
			return fmt.Errorf("failed to count projects: %w", err)
		}
		if active >= limit {
			return &LimitExceededError{Active: active, Limit: limit}
		}
	}

	query := `
		INSERT INTO projects (id, user_id, title, description, is_active, expires_at)
		VALUES ($1, $2, $3, $4, true, $5)
		RETURNING created_at, updated_at
	`
	err = tx.QueryRowContext(ctx, query, p.ID, p.UserID, p.Title, p.Description, p.ExpiresAt).
		Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert project: %w", err)
	}
	p.IsActive = true

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit project: %w", err)
	}
	return nil
}

// ListByUser returns the user's projects, newest first.
func (s *PostgresStore) ListByUser(ctx context.Context, userID string, activeOnly bool) ([]*Project, error) {
	query := "SELECT " + projectColumns + " FROM projects WHERE user_id = $1"
	if activeOnly {
		query += " AND is_active = true"
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var out []*Project
	for rows.Next() {
		var (
			p    Project
			desc sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.UserID, &p.Title, &desc, &p.IsActive,
			&p.ExpiresAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		p.Description = desc.String
		out = append(out, &p)
	}
	return out, rows.Err()
}
