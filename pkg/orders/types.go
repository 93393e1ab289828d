package orders

import (
	"errors"
	"time"

	"github.com/voceacampusului/vocea/pkg/notifications"
	"github.com/voceacampusului/vocea/pkg/plans"
)

// Status is the payment status of an order.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusPaid    Status = "PAID"
	StatusFailed  Status = "FAILED"
)

// RecurringStatus is set only on recurring orders once paid or cancelled.
type RecurringStatus string

const (
	RecurringActive    RecurringStatus = "ACTIVE"
	RecurringCancelled RecurringStatus = "CANCELLED"
	RecurringFailed    RecurringStatus = "FAILED"
)

// State is the lifecycle state derived from Status and RecurringStatus.
type State string

const (
	StatePending            State = "PENDING"
	StatePaid               State = "PAID"
	StateFailed             State = "FAILED"
	StateRecurringActive    State = "RECURRING_ACTIVE"
	StateRecurringFailed    State = "RECURRING_FAILED"
	StateRecurringCancelled State = "RECURRING_CANCELLED"
)

// Terminal reports whether no event can move the state further.
func (s State) Terminal() bool {
	return s == StateFailed || s == StateRecurringCancelled
}

// Event drives a transition.
type Event string

const (
	EventPaymentConfirmed Event = "payment_confirmed"
	EventPaymentFailed    Event = "payment_failed"
	EventChargeSucceeded  Event = "charge_succeeded"
	EventChargeFailed     Event = "charge_failed"
	EventCancelled        Event = "cancelled"
)

// SubscriptionEffect is the change a transition makes to the user's
// subscription.
type SubscriptionEffect string

const (
	EffectNone     SubscriptionEffect = ""
	EffectActivate SubscriptionEffect = "activate"
	EffectExpire   SubscriptionEffect = "expire"
	EffectCancel   SubscriptionEffect = "cancel"
)

const (
	CodeOrderNotFound     = "ORDER_NOT_FOUND"
	CodeOrderForbidden    = "ORDER_FORBIDDEN"
	CodeInvalidTransition = "INVALID_ORDER_TRANSITION"
	CodeInvalidPlan       = "INVALID_PLAN"
	CodeNotRecurring      = "ORDER_NOT_RECURRING"
)

var (
	// ErrInvalidTransition is returned when an event does not apply to
	// the order's state.
	ErrInvalidTransition = errors.New("invalid order transition")
	// ErrConflict is returned by Store.Transition when the order changed
	// since it was read.
	ErrConflict = errors.New("order changed concurrently")
)

// Order is a purchase of a plan. Orders are never deleted.
type Order struct {
	OrderID         string          `json:"order_id"`
	UserID          string          `json:"user_id"`
	PlanID          int64           `json:"plan_id"`
	Plan            plans.Tier      `json:"plan"`
	Status          Status          `json:"status"`
	IsRecurring     bool            `json:"is_recurring"`
	RecurringStatus RecurringStatus `json:"recurring_status,omitempty"`
	LastChargeAt    *time.Time      `json:"last_charge_at,omitempty"`
	NextChargeAt    *time.Time      `json:"next_charge_at,omitempty"`
	Amount          int64           `json:"amount"`
	Currency        string          `json:"currency"`
	FailedAttempts  int             `json:"failed_attempts"`

	CheckoutRef      string `json:"-"`
	CustomerRef      string `json:"-"`
	PaymentMethodRef string `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// State derives the lifecycle state.
func (o *Order) State() State {
	switch o.Status {
	case StatusPending:
		return StatePending
	case StatusFailed:
		return StateFailed
	}
	if !o.IsRecurring {
		return StatePaid
	}
	switch o.RecurringStatus {
	case RecurringActive:
		return StateRecurringActive
	case RecurringFailed:
		return StateRecurringFailed
	case RecurringCancelled:
		return StateRecurringCancelled
	}
	return StatePaid
}

// Outcome describes an applied event.
type Outcome struct {
	Event        Event
	From         State
	To           State
	Changed      bool
	Subscription SubscriptionEffect
	Notify       notifications.Kind
	// Retrying is set when a declined charge was rescheduled.
	Retrying bool
}

// CheckoutRequest is the body of a plan purchase.
type CheckoutRequest struct {
	Plan      string `json:"plan" validate:"required"`
	Recurring bool   `json:"recurring"`
}

// CheckoutResponse carries the new order and where to send the user.
type CheckoutResponse struct {
	Order       *Order `json:"order"`
	RedirectURL string `json:"redirect_url"`
}

// PendingResult reports an ExpireStalePending pass.
type PendingResult struct {
	Confirmed int `json:"confirmed"`
	Failed    int `json:"failed"`
	Errors    int `json:"errors"`
}
