package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/voceacampusului/vocea/pkg/apperrors"
	"github.com/voceacampusului/vocea/pkg/observability"
	"github.com/voceacampusului/vocea/pkg/plans"
	"github.com/voceacampusului/vocea/pkg/projects"
)

const (
	CodeQuotaExceeded = "QUOTA_EXCEEDED"
	CodeInvalidExpiry = "INVALID_EXPIRY"
)

// DefaultProjectLifetime applies when a create request carries no expiry.
const DefaultProjectLifetime = 30 * 24 * time.Hour

// Decision is the answer to "may this user create one more project".
type Decision struct {
	Allowed bool `json:"allowed"`
	// Remaining is plans.Unlimited for unbounded tiers.
	Remaining int        `json:"remaining"`
	Limit     int        `json:"limit"`
	Active    int        `json:"active"`
	Tier      plans.Tier `json:"tier"`
}

// TierResolver resolves a user's current tier.
type TierResolver interface {
	Resolve(ctx context.Context, userID string) (plans.Tier, error)
}

// ProjectStore counts and creates projects.
type ProjectStore interface {
	CountActive(ctx context.Context, userID string) (int, error)
	CreateWithinLimit(ctx context.Context, p *projects.Project, limit int) error
}

// Config tunes the Enforcer.
type Config struct {
	DefaultLifetime time.Duration
}

// Enforcer applies tier quotas to project creation.
type Enforcer struct {
	resolver TierResolver
	catalog  *plans.Catalog
	projects ProjectStore
	metrics  *observability.Metrics
	logger   logrus.FieldLogger
	lifetime time.Duration
	now      func() time.Time
}

// NewEnforcer creates an Enforcer. metrics may be nil.
func NewEnforcer(resolver TierResolver, catalog *plans.Catalog, store ProjectStore, cfg Config, metrics *observability.Metrics, logger logrus.FieldLogger) *Enforcer {
	lifetime := cfg.DefaultLifetime
	if lifetime <= 0 {
		lifetime = DefaultProjectLifetime
	}
	return &Enforcer{
		resolver: resolver,
		catalog:  catalog,
		projects: store,
		metrics:  metrics,
		logger:   logger,
		lifetime: lifetime,
		now:      time.Now,
	}
}

// Evaluate computes a decision from a limit and the current active count.
func Evaluate(limit, active int) Decision {
	if limit == plans.Unlimited {
		return Decision{Allowed: true, Remaining: plans.Unlimited, Limit: limit, Active: active}
	}
	remaining := limit - active
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: remaining > 0, Remaining: remaining, Limit: limit, Active: active}
}

// CanCreateProject reports whether the user may create another project.
func (e *Enforcer) CanCreateProject(ctx context.Context, userID string) (*Decision, error) {
	tier, err := e.resolver.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}

	active, err := e.projects.CountActive(ctx, userID)
	if err != nil {
		return nil, apperrors.Internal("quota.CanCreateProject", err)
	}

	d := Evaluate(e.catalog.QuotaFor(tier), active)
	d.Tier = tier
	return &d, nil
}

// CreateProject creates a project if the user's tier allows one more.
// The limit is checked and the row inserted in a single transaction.
func (e *Enforcer) CreateProject(ctx context.Context, userID string, req *projects.CreateRequest) (*projects.Project, error) {
	tier, err := e.resolver.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	limit := e.catalog.QuotaFor(tier)

	now := e.now().UTC()
	expiresAt := now.Add(e.lifetime)
	if req.ExpiresAt != nil {
		if !req.ExpiresAt.After(now) {
			return nil, apperrors.Validation(CodeInvalidExpiry, "expires_at must be in the future").
				WithField("expires_at", "must be in the future")
		}
		expiresAt = req.ExpiresAt.UTC()
	}

	p := &projects.Project{
		ID:          uuid.NewString(),
		UserID:      userID,
		Title:       req.Title,
		Description: req.Description,
		ExpiresAt:   expiresAt,
	}

	err = e.projects.CreateWithinLimit(ctx, p, limit)
	var limitErr *projects.LimitExceededError
	switch {
	case errors.As(err, &limitErr):
		e.metrics.RecordQuotaDenial(string(tier))
		e.logger.WithFields(logrus.Fields{
			"user_id": userID,
			"tier":    tier,
			"active":  limitErr.Active,
			"limit":   limitErr.Limit,
		}).Info("project quota exceeded")
		return nil, apperrors.Wrap(apperrors.KindForbidden, CodeQuotaExceeded,
			fmt.Sprintf("plan %s allows %d active projects", tier, limit), err)
	case err != nil:
		if _, ok := apperrors.As(err); ok {
			return nil, err
		}
		return nil, apperrors.Internal("quota.CreateProject", err)
	}

	e.logger.WithFields(logrus.Fields{
		"user_id":    userID,
		"project_id": p.ID,
		"tier":       tier,
	}).Info("project created")
	return p, nil
}
