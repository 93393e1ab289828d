package entitlements

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/voceacampusului/vocea/pkg/plans"
)

// Store loads the resolution inputs for one user. It returns a NotFound
// apperror when the user does not exist.
type Store interface {
	LookupPlan(ctx context.Context, userID string) (*Lookup, error)
}

// Resolver maps users to tiers.
type Resolver struct {
	store   Store
	catalog *plans.Catalog
	logger  logrus.FieldLogger
}

func NewResolver(store Store, catalog *plans.Catalog, logger logrus.FieldLogger) *Resolver {
	return &Resolver{store: store, catalog: catalog, logger: logger}
}

// Resolve returns the user's current tier.
func (r *Resolver) Resolve(ctx context.Context, userID string) (plans.Tier, error) {
	e, err := r.Entitlement(ctx, userID)
	if err != nil {
		return "", err
	}
	return e.Tier, nil
}

// Entitlement returns the tier together with its plan and project limit.
func (r *Resolver) Entitlement(ctx context.Context, userID string) (*Entitlement, error) {
	lookup, err := r.store.LookupPlan(ctx, userID)
	if err != nil {
		return nil, err
	}

	tier, source := Decide(lookup)
	if source == SourceUser {
		r.logger.WithFields(logrus.Fields{
			"user_id":   userID,
			"plan_type": lookup.UserPlanType,
		}).Debug("tier resolved from legacy plan_type")
	}

	plan, _ := r.catalog.Get(tier)
	return &Entitlement{
		UserID:       userID,
		Tier:         tier,
		Source:       source,
		Plan:         plan,
		ProjectLimit: r.catalog.QuotaFor(tier),
	}, nil
}

// Decide applies the precedence rules to a lookup.
func Decide(l *Lookup) (plans.Tier, Source) {
	if l == nil {
		return plans.TierBasic, SourceDefault
	}
	if t, ok := plans.ParseTier(l.SubscriptionPlan); ok {
		return t, SourceSubscription
	}
	if t, ok := plans.ParseTier(l.UserPlanType); ok {
		return t, SourceUser
	}
	return plans.TierBasic, SourceDefault
}
