package orders

import (
	"fmt"
	"time"

	"github.com/voceacampusului/vocea/pkg/notifications"
)

// MachineConfig configures the transition rules.
type MachineConfig struct {
	// BillingPeriodMonths is the renewal period of recurring orders.
	BillingPeriodMonths int
	Retry               RetryConfig
	// CancelOnExhaustion moves an order whose retries ran out to
	// RECURRING_CANCELLED instead of RECURRING_FAILED.
	CancelOnExhaustion bool
}

// DefaultMachineConfig returns monthly billing with the default retry policy.
func DefaultMachineConfig() MachineConfig {
	return MachineConfig{
		BillingPeriodMonths: 1,
		Retry:               DefaultRetryConfig(),
		CancelOnExhaustion:  true,
	}
}

// Machine applies events to orders. It holds no state and does no I/O.
type Machine struct {
	months             int
	retry              *RetryPolicy
	cancelOnExhaustion bool
}

func NewMachine(cfg MachineConfig) *Machine {
	if cfg.BillingPeriodMonths <= 0 {
		cfg.BillingPeriodMonths = 1
	}
	return &Machine{
		months:             cfg.BillingPeriodMonths,
		retry:              NewRetryPolicy(cfg.Retry),
		cancelOnExhaustion: cfg.CancelOnExhaustion,
	}
}

// NextCharge returns the renewal date for a charge taken at from.
func (m *Machine) NextCharge(from time.Time) time.Time {
	return from.AddDate(0, m.months, 0)
}

// Apply returns o with ev applied. An event already reflected in the state
// returns Changed == false and o unchanged.
func (m *Machine) Apply(o Order, ev Event, now time.Time) (Order, *Outcome, error) {
	from := o.State()
	out := &Outcome{Event: ev, From: from, To: from}

	switch ev {
	case EventPaymentConfirmed:
		switch from {
		case StatePending:
			o.Status = StatusPaid
			if o.IsRecurring {
				next := m.NextCharge(now)
				o.RecurringStatus = RecurringActive
				o.LastChargeAt = timePtr(now)
				o.NextChargeAt = &next
				o.FailedAttempts = 0
			}
			out.Subscription = EffectActivate
			out.Notify = notifications.KindPaymentConfirmed
		case StatePaid, StateRecurringActive, StateRecurringFailed, StateRecurringCancelled:
			return o, out, nil
		default:
			return o, out, invalid(from, ev)
		}

	case EventPaymentFailed:
		switch from {
		case StatePending:
			o.Status = StatusFailed
			out.Notify = notifications.KindPaymentFailed
		case StateFailed:
			return o, out, nil
		default:
			return o, out, invalid(from, ev)
		}

	case EventChargeSucceeded:
		if from != StateRecurringActive {
			return o, out, invalid(from, ev)
		}
		next := m.NextCharge(now)
		o.LastChargeAt = timePtr(now)
		o.NextChargeAt = &next
		o.FailedAttempts = 0
		out.Notify = notifications.KindSubscriptionRenewed

	case EventChargeFailed:
		if from != StateRecurringActive {
			return o, out, invalid(from, ev)
		}
		attempts := o.FailedAttempts + 1
		o.FailedAttempts = attempts
		if m.retry.ShouldRetry(attempts) {
			retryAt := now.Add(m.retry.NextRetryDelay(attempts))
			o.NextChargeAt = &retryAt
			out.Retrying = true
			break
		}
		o.NextChargeAt = nil
		if m.cancelOnExhaustion {
			o.RecurringStatus = RecurringCancelled
		} else {
			o.RecurringStatus = RecurringFailed
		}
		out.Subscription = EffectExpire
		out.Notify = notifications.KindSubscriptionFailed

	case EventCancelled:
		switch from {
		case StatePending:
			o.Status = StatusFailed
			if o.IsRecurring {
				o.RecurringStatus = RecurringCancelled
			}
			out.Notify = notifications.KindPaymentFailed
		case StateRecurringActive, StateRecurringFailed:
			o.RecurringStatus = RecurringCancelled
			o.NextChargeAt = nil
			out.Subscription = EffectCancel
			out.Notify = notifications.KindSubscriptionCancelled
		case StateRecurringCancelled, StateFailed:
			return o, out, nil
		default:
			return o, out, invalid(from, ev)
		}

	default:
		return o, out, fmt.Errorf("unknown event %q", ev)
	}

	out.To = o.State()
	out.Changed = true
	o.UpdatedAt = now
	return o, out, nil
}

func invalid(from State, ev Event) error {
	return fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev, from)
}

func timePtr(t time.Time) *time.Time {
	return &t
}
