package plans

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/lib/pq"
	"github.com/voceacampusului/vocea/pkg/apperrors"
)

// CodePlanNotFound is returned when a plan id or name has no row.
const CodePlanNotFound = "PLAN_NOT_FOUND"

// Store persists the catalog.
type Store interface {
	Seed(ctx context.Context, catalog *Catalog, overwrite bool) ([]Plan, error)
	List(ctx context.Context) ([]Plan, error)
	Get(ctx context.Context, id int64) (*Plan, error)
	GetByName(ctx context.Context, name Tier) (*Plan, error)
}

// PostgresStore is a Store over the plans table. Lookups by id are cached;
// plans only change through Seed, which purges the cache.
type PostgresStore struct {
	db    *sql.DB
	cache *lru.LRU[int64, Plan]
}

// NewPostgresStore creates a plan store. cacheTTL <= 0 disables expiry.
func NewPostgresStore(db *sql.DB, cacheTTL time.Duration) *PostgresStore {
	return &PostgresStore{
		db:    db,
		cache: lru.NewLRU[int64, Plan](32, nil, cacheTTL),
	}
}

const planColumns = "id, name, price, currency, features, project_quota, created_at, updated_at"

// Seed writes every catalog plan. Existing rows are left alone unless
// overwrite is set.
func (s *PostgresStore) Seed(ctx context.Context, catalog *Catalog, overwrite bool) ([]Plan, error) {
	query := `
		INSERT INTO plans (name, price, currency, features, project_quota)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO NOTHING
	`
	if overwrite {
		query = `
			INSERT INTO plans (name, price, currency, features, project_quota)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (name) DO UPDATE SET
				price = EXCLUDED.price,
				currency = EXCLUDED.currency,
				features = EXCLUDED.features,
				project_quota = EXCLUDED.project_quota,
				updated_at = NOW()
		`
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, p := range catalog.Plans() {
		if _, err := tx.ExecContext(ctx, query,
			p.Name, p.Price, p.Currency, pq.Array(p.Features), p.ProjectQuota,
		); err != nil {
			return nil, fmt.Errorf("failed to seed plan %s: %w", p.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit plans: %w", err)
	}
	s.cache.Purge()

	return s.List(ctx)
}

// List returns every stored plan ordered by price.
func (s *PostgresStore) List(ctx context.Context) ([]Plan, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+planColumns+" FROM plans ORDER BY price, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	var out []Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// Get returns the plan with the given id.
func (s *PostgresStore) Get(ctx context.Context, id int64) (*Plan, error) {
	if p, ok := s.cache.Get(id); ok {
		c := p.clone()
		return &c, nil
	}

	row := s.db.QueryRowContext(ctx, "SELECT "+planColumns+" FROM plans WHERE id = $1", id)
	p, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound(CodePlanNotFound, "plan not found")
	}
	if err != nil {
		return nil, err
	}

	s.cache.Add(id, p.clone())
	return p, nil
}

// GetByName returns the plan row for a tier.
func (s *PostgresStore) GetByName(ctx context.Context, name Tier) (*Plan, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+planColumns+" FROM plans WHERE name = $1", name)
	p, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound(CodePlanNotFound, "plan not found")
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPlan(row scanner) (*Plan, error) {
	var (
		p        Plan
		name     string
		features pq.StringArray
	)
	err := row.Scan(&p.ID, &name, &p.Price, &p.Currency, &features, &p.ProjectQuota, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan plan: %w", err)
	}
	p.Name = Tier(name)
	p.Features = []string(features)
	return &p, nil
}
