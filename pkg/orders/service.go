package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/voceacampusului/vocea/pkg/apperrors"
	"github.com/voceacampusului/vocea/pkg/audit"
	"github.com/voceacampusului/vocea/pkg/notifications"
	"github.com/voceacampusului/vocea/pkg/observability"
	"github.com/voceacampusului/vocea/pkg/payments"
	"github.com/voceacampusului/vocea/pkg/plans"
)

// DefaultPendingTimeout is how long a checkout may stay unpaid.
const DefaultPendingTimeout = 24 * time.Hour

const stalePendingBatch = 100

// Notifier delivers notifications without blocking the caller.
type Notifier interface {
	Dispatch(ctx context.Context, kind notifications.Kind, payload notifications.Payload) <-chan struct{}
}

// ServiceConfig configures the order Service.
type ServiceConfig struct {
	SuccessURL     string
	CancelURL      string
	PendingTimeout time.Duration
	Machine        MachineConfig
}

// PlanSource reads the stored plan row for a tier.
type PlanSource interface {
	GetByName(ctx context.Context, name plans.Tier) (*plans.Plan, error)
}

// Service runs order lifecycle operations against a Store.
type Service struct {
	store    Store
	catalog  *plans.Catalog
	plans    PlanSource
	provider payments.Provider
	machine  *Machine
	notifier Notifier
	audit    audit.Logger
	metrics  *observability.Metrics
	logger   logrus.FieldLogger
	cfg      ServiceConfig
	now      func() time.Time

	// pendingBatch is the page size of ExpireStalePending.
	pendingBatch int
}

// NewService creates a Service. catalog must carry stored plan IDs.
// notifier and metrics may be nil.
func NewService(store Store, catalog *plans.Catalog, provider payments.Provider, notifier Notifier,
	cfg ServiceConfig, metrics *observability.Metrics, logger logrus.FieldLogger) *Service {
	if cfg.PendingTimeout <= 0 {
		cfg.PendingTimeout = DefaultPendingTimeout
	}
	return &Service{
		store:        store,
		catalog:      catalog,
		provider:     provider,
		machine:      NewMachine(cfg.Machine),
		notifier:     notifier,
		audit:        audit.NoOp{},
		metrics:      metrics,
		logger:       logger,
		cfg:          cfg,
		now:          time.Now,
		pendingBatch: stalePendingBatch,
	}
}

func (s *Service) purchasablePlan(ctx context.Context, tier plans.Tier) (plans.Plan, error) {
	if s.plans != nil {
		p, err := s.plans.GetByName(ctx, tier)
		if err != nil {
			if _, ok := apperrors.As(err); ok {
				return plans.Plan{}, err
			}
			return plans.Plan{}, apperrors.Internal("orders.Checkout", err)
		}
		return *p, nil
	}
	p, ok := s.catalog.Get(tier)
	if !ok || p.ID == 0 {
		return plans.Plan{}, apperrors.Internal("orders.Checkout", fmt.Errorf("plan %s is not seeded", tier))
	}
	return p, nil
}

// SetPlanSource prices checkouts from src instead of the in-memory
// catalog, so orders charge what GET /plans lists.
func (s *Service) SetPlanSource(src PlanSource) {
	s.plans = src
}

// SetAuditLogger records every applied transition to l.
func (s *Service) SetAuditLogger(l audit.Logger) {
	s.audit = l
}

// Machine exposes the transition rules, mainly for the billing driver.
func (s *Service) Machine() *Machine {
	return s.machine
}

// Checkout creates a PENDING order for the plan and starts a hosted
// checkout for it.
func (s *Service) Checkout(ctx context.Context, userID, email string, req *CheckoutRequest) (*CheckoutResponse, error) {
	tier, ok := plans.ParseTier(req.Plan)
	if !ok || !tier.Purchasable() {
		return nil, apperrors.Validation(CodeInvalidPlan, "plan cannot be purchased").WithField("plan", req.Plan)
	}
	plan, err := s.purchasablePlan(ctx, tier)
	if err != nil {
		return nil, err
	}

	order := &Order{
		OrderID:     uuid.NewString(),
		UserID:      userID,
		PlanID:      plan.ID,
		Plan:        plan.Name,
		Status:      StatusPending,
		IsRecurring: req.Recurring,
		Amount:      plan.Price,
		Currency:    plan.Currency,
	}
	if err := s.store.Create(ctx, order); err != nil {
		return nil, apperrors.Internal("orders.Checkout", err)
	}

	checkout, err := s.provider.CreateCheckout(ctx, &payments.CheckoutRequest{
		OrderID:    order.OrderID,
		UserID:     userID,
		Email:      email,
		PlanName:   string(plan.Name),
		Amount:     plan.Price,
		Currency:   plan.Currency,
		Recurring:  req.Recurring,
		SuccessURL: s.cfg.SuccessURL,
		CancelURL:  s.cfg.CancelURL,
	})
	if err != nil {
		if _, _, ferr := s.apply(ctx, order, EventPaymentFailed, nil); ferr != nil {
			s.logger.WithError(ferr).WithField("order_id", order.OrderID).Warn("failed to mark order failed")
		}
		return nil, err
	}

	if err := s.store.SetCheckoutRef(ctx, order.OrderID, checkout.Reference); err != nil {
		return nil, apperrors.Internal("orders.Checkout", err)
	}
	order.CheckoutRef = checkout.Reference

	s.logger.WithFields(logrus.Fields{
		"order_id":  order.OrderID,
		"user_id":   userID,
		"plan":      plan.Name,
		"recurring": req.Recurring,
	}).Info("checkout started")

	return &CheckoutResponse{Order: order, RedirectURL: checkout.RedirectURL}, nil
}

// HandleConfirmation applies a verified provider callback. Ignored
// confirmations return a nil Outcome.
func (s *Service) HandleConfirmation(ctx context.Context, c *payments.Confirmation) (*Outcome, error) {
	if c.Kind == payments.ConfirmationIgnored {
		return nil, nil
	}

	order, err := s.store.Get(ctx, c.OrderID)
	if err != nil {
		return nil, err
	}

	switch c.Kind {
	case payments.ConfirmationPaid:
		ref := c.Reference
		if ref == "" {
			ref = order.CheckoutRef
		}
		v, err := s.provider.VerifyStatus(ctx, ref)
		if err != nil {
			return nil, err
		}
		return s.applyVerification(ctx, order, v)
	case payments.ConfirmationFailed:
		_, out, err := s.apply(ctx, order, EventPaymentFailed, nil)
		return out, err
	}
	return nil, apperrors.Validation(payments.CodeInvalidPayload, "unknown confirmation kind")
}

func (s *Service) applyVerification(ctx context.Context, order *Order, v *payments.Verification) (*Outcome, error) {
	switch v.Status {
	case payments.StatusSucceeded:
		_, out, err := s.apply(ctx, order, EventPaymentConfirmed, func(o *Order) {
			if v.CustomerRef != "" {
				o.CustomerRef = v.CustomerRef
			}
			if v.PaymentMethodRef != "" {
				o.PaymentMethodRef = v.PaymentMethodRef
			}
		})
		return out, err
	case payments.StatusFailed:
		_, out, err := s.apply(ctx, order, EventPaymentFailed, nil)
		return out, err
	}
	return &Outcome{From: order.State(), To: order.State()}, nil
}

// Cancel stops a user's order. Cancelling twice is a no-op.
func (s *Service) Cancel(ctx context.Context, userID, orderID string) (*Order, error) {
	order, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, apperrors.Forbidden(CodeOrderForbidden, "order belongs to another user")
	}
	if order.State() == StatePaid {
		return nil, apperrors.Validation(CodeNotRecurring, "one-time orders cannot be cancelled")
	}
	updated, _, err := s.apply(ctx, order, EventCancelled, nil)
	return updated, err
}

// ListForUser returns the user's recent orders.
func (s *Service) ListForUser(ctx context.Context, userID string, limit int) ([]*Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	list, err := s.store.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, apperrors.Internal("orders.ListForUser", err)
	}
	return list, nil
}

// ApplyChargeResult records the outcome of a renewal charge.
func (s *Service) ApplyChargeResult(ctx context.Context, order *Order, res *payments.ChargeResult, now time.Time) (*Outcome, error) {
	ev := EventChargeFailed
	if res.Status == payments.StatusSucceeded {
		ev = EventChargeSucceeded
	}
	_, out, err := s.applyAt(ctx, order, ev, now, nil)
	if err != nil && ev == EventChargeSucceeded && errors.Is(err, ErrInvalidTransition) {
		s.logger.WithFields(logrus.Fields{
			"order_id":  order.OrderID,
			"reference": res.Reference,
		}).Error("charge succeeded for an order that is no longer active")
	}
	return out, err
}

// ExpireStalePending settles checkouts older than timeout (the configured
// pending timeout when zero): paid ones are confirmed, everything else fails.
func (s *Service) ExpireStalePending(ctx context.Context, now time.Time, timeout time.Duration) (*PendingResult, error) {
	if timeout <= 0 {
		timeout = s.cfg.PendingTimeout
	}
	result := &PendingResult{}
	var cursor PendingCursor
	for {
		stale, err := s.store.ListStalePending(ctx, now.Add(-timeout), cursor, s.pendingBatch)
		if err != nil {
			return result, apperrors.Internal("orders.ExpireStalePending", err)
		}
		for _, order := range stale {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			logger := s.logger.WithField("order_id", order.OrderID)

			v := &payments.Verification{Status: payments.StatusFailed}
			if order.CheckoutRef != "" {
				got, err := s.provider.VerifyStatus(ctx, order.CheckoutRef)
				if err != nil {
					logger.WithError(err).Warn("failed to verify stale checkout")
					result.Errors++
					continue
				}
				v = got
			}
			if v.Status == payments.StatusPending {
				v = &payments.Verification{Status: payments.StatusFailed}
			}

			out, err := s.applyVerification(ctx, order, v)
			if err != nil {
				logger.WithError(err).Warn("failed to settle stale checkout")
				result.Errors++
				continue
			}
			switch out.To {
			case StatePaid, StateRecurringActive:
				result.Confirmed++
			case StateFailed:
				result.Failed++
			}
		}
		if len(stale) < s.pendingBatch {
			break
		}
		last := stale[len(stale)-1]
		cursor = PendingCursor{CreatedAt: last.CreatedAt, OrderID: last.OrderID}
	}

	s.logger.WithFields(logrus.Fields{
		"confirmed": result.Confirmed,
		"failed":    result.Failed,
		"errors":    result.Errors,
	}).Info("settled stale checkouts")
	return result, nil
}

func (s *Service) apply(ctx context.Context, order *Order, ev Event, mutate func(*Order)) (*Order, *Outcome, error) {
	return s.applyAt(ctx, order, ev, s.now(), mutate)
}

// applyAt runs one transition. A concurrent write triggers one reload
// and retry.
func (s *Service) applyAt(ctx context.Context, order *Order, ev Event, now time.Time, mutate func(*Order)) (*Order, *Outcome, error) {
	current := order
	for attempt := 0; ; attempt++ {
		next, out, err := s.machine.Apply(*current, ev, now)
		if err != nil {
			return nil, out, apperrors.Wrap(apperrors.KindValidation, CodeInvalidTransition, "order cannot change this way", err).
				WithField("state", string(out.From))
		}
		if !out.Changed {
			return current, out, nil
		}
		if mutate != nil {
			mutate(&next)
		}

		err = s.store.Transition(ctx, current, &next, out.Subscription)
		if errors.Is(err, ErrConflict) && attempt == 0 {
			current, err = s.store.Get(ctx, order.OrderID)
			if err != nil {
				return nil, nil, err
			}
			continue
		}
		if err != nil {
			return nil, nil, apperrors.Internal("orders.Transition", err)
		}

		s.metrics.RecordTransition(string(out.From), string(out.To))
		s.logger.WithFields(logrus.Fields{
			"order_id": next.OrderID,
			"event":    ev,
			"from":     out.From,
			"to":       out.To,
			"retrying": out.Retrying,
		}).Info("order transition")
		s.record(ctx, &next, ev, out)
		s.notify(ctx, &next, out)
		return &next, out, nil
	}
}

func (s *Service) record(ctx context.Context, o *Order, ev Event, out *Outcome) {
	event := &audit.Event{
		OrderID: o.OrderID,
		UserID:  o.UserID,
		Event:   string(ev),
		From:    string(out.From),
		To:      string(out.To),
		Metadata: map[string]any{
			"failed_attempts": o.FailedAttempts,
			"retrying":        out.Retrying,
		},
	}
	if err := s.audit.Log(ctx, event); err != nil {
		s.logger.WithError(err).WithField("order_id", o.OrderID).Warn("failed to record order event")
	}
}

func (s *Service) notify(ctx context.Context, o *Order, out *Outcome) {
	if s.notifier == nil || out.Notify == "" {
		return
	}
	s.notifier.Dispatch(ctx, out.Notify, notifications.Payload{
		"order_id":        o.OrderID,
		"user_id":         o.UserID,
		"plan":            string(o.Plan),
		"amount":          o.Amount,
		"currency":        o.Currency,
		"state":           string(out.To),
		"failed_attempts": o.FailedAttempts,
	})
}
