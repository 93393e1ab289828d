package subscriptions

import (
	"time"

	"github.com/voceacampusului/vocea/pkg/plans"
)

// Status of a subscription.
type Status string

const (
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// CodeNoActiveSubscription is returned by GetActive when the user has none.
const CodeNoActiveSubscription = "NO_ACTIVE_SUBSCRIPTION"

// Subscription binds a user to a plan. OrderID is the order that paid for it.
type Subscription struct {
	ID        int64      `json:"id"`
	UserID    string     `json:"user_id"`
	OrderID   string     `json:"order_id,omitempty"`
	Plan      plans.Tier `json:"plan"`
	Status    Status     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ReconcileResult reports a plan_type repair pass.
type ReconcileResult struct {
	Updated int64 `json:"updated"`
}
