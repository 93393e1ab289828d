package entitlements

import "github.com/voceacampusului/vocea/pkg/plans"

// Source records which input decided a tier.
type Source string

const (
	SourceSubscription Source = "subscription"
	SourceUser         Source = "user"
	SourceDefault      Source = "default"
)

// Lookup is the raw data a resolution needs. Empty strings mean absent.
type Lookup struct {
	SubscriptionPlan string
	UserPlanType     string
}

// Entitlement is a resolved tier with its plan details.
type Entitlement struct {
	UserID string     `json:"user_id"`
	Tier   plans.Tier `json:"tier"`
	Source Source     `json:"source"`
	Plan   plans.Plan `json:"plan"`
	// ProjectLimit is plans.Unlimited for unbounded tiers.
	ProjectLimit int `json:"project_limit"`
}
