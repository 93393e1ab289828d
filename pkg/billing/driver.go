package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/voceacampusului/vocea/pkg/apperrors"
	"github.com/voceacampusului/vocea/pkg/async"
	"github.com/voceacampusului/vocea/pkg/observability"
	"github.com/voceacampusului/vocea/pkg/orders"
	"github.com/voceacampusului/vocea/pkg/payments"
)

var tracer = otel.Tracer("vocea/billing")

// CycleLockKey is the Redis key held while a cycle runs.
const CycleLockKey = "billing:cycle"

// OrderStore lists and claims due orders.
type OrderStore interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]*orders.Order, error)
	Claim(ctx context.Context, orderID string, observed, leaseUntil time.Time) (bool, error)
}

// ChargeApplier feeds charge results into the order state machine.
type ChargeApplier interface {
	ApplyChargeResult(ctx context.Context, order *orders.Order, res *payments.ChargeResult, now time.Time) (*orders.Outcome, error)
}

// Charger initiates off-session charges.
type Charger interface {
	InitiateCharge(ctx context.Context, req *payments.ChargeRequest) (*payments.ChargeResult, error)
}

// Config tunes the billing cycle.
type Config struct {
	BatchSize     int
	Workers       int
	Lease         time.Duration
	ChargeTimeout time.Duration
	LockTTL       time.Duration
}

// DefaultConfig returns the default cycle settings.
func DefaultConfig() Config {
	return Config{
		BatchSize:     200,
		Workers:       4,
		Lease:         15 * time.Minute,
		ChargeTimeout: 30 * time.Second,
		LockTTL:       10 * time.Minute,
	}
}

// Result summarizes one cycle.
type Result struct {
	Due            int  `json:"due"`
	Charged        int  `json:"charged"`
	Declined       int  `json:"declined"`
	Exhausted      int  `json:"exhausted"`
	Skipped        int  `json:"skipped"`
	Errors         int  `json:"errors"`
	// Failed is Declined + Exhausted + Errors.
	Failed         int  `json:"failed"`
	AlreadyRunning bool `json:"already_running"`
}

// Driver charges due recurring orders.
type Driver struct {
	store   OrderStore
	applier ChargeApplier
	charger Charger
	locker  Locker
	cfg     Config
	metrics *observability.Metrics
	logger  logrus.FieldLogger
}

// NewDriver creates a Driver. locker and metrics may be nil; without a
// locker only the per-order claim guards against concurrent cycles.
func NewDriver(store OrderStore, applier ChargeApplier, charger Charger, locker Locker, cfg Config, metrics *observability.Metrics, logger logrus.FieldLogger) *Driver {
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.Lease <= 0 {
		cfg.Lease = def.Lease
	}
	if cfg.ChargeTimeout <= 0 {
		cfg.ChargeTimeout = def.ChargeTimeout
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = def.LockTTL
	}
	return &Driver{
		store:   store,
		applier: applier,
		charger: charger,
		locker:  locker,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
	}
}

// IdempotencyKey identifies one charge attempt of a billing period.
func IdempotencyKey(o *orders.Order) string {
	var last int64
	if o.LastChargeAt != nil {
		last = o.LastChargeAt.Unix()
	}
	return fmt.Sprintf("%s:%d:%d", o.OrderID, last, o.FailedAttempts)
}

// RunCycle charges every order due at now.
func (d *Driver) RunCycle(ctx context.Context, now time.Time) (*Result, error) {
	ctx, span := tracer.Start(ctx, "billing.RunCycle")
	defer span.End()
	start := time.Now()

	if d.locker != nil {
		release, ok, err := d.locker.Acquire(ctx, CycleLockKey, d.cfg.LockTTL)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "lock failed")
			d.metrics.RecordCycle("failed", time.Since(start))
			return nil, apperrors.Upstream("billing.Lock", err)
		}
		if !ok {
			d.logger.Info("billing cycle already running")
			d.metrics.RecordCycle("locked", time.Since(start))
			return &Result{AlreadyRunning: true}, nil
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				d.logger.WithError(err).Warn("failed to release billing lock")
			}
		}()
	}

	due, err := d.store.ListDue(ctx, now, d.cfg.BatchSize)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list due failed")
		d.metrics.RecordCycle("failed", time.Since(start))
		return nil, apperrors.Internal("billing.ListDue", err)
	}

	var charged, declined, exhausted, skipped atomic.Int64
	errs := async.Batch(ctx, due, d.cfg.Workers, d.cfg.ChargeTimeout, func(ctx context.Context, o *orders.Order) error {
		out, err := d.chargeOne(ctx, o, now)
		switch {
		case err != nil:
			return err
		case out == nil:
			skipped.Add(1)
		case out.To == orders.StateRecurringActive && !out.Retrying:
			charged.Add(1)
		case out.Retrying:
			declined.Add(1)
		default:
			exhausted.Add(1)
		}
		return nil
	})

	result := &Result{
		Due:       len(due),
		Charged:   int(charged.Load()),
		Declined:  int(declined.Load()),
		Exhausted: int(exhausted.Load()),
		Skipped:   int(skipped.Load()),
		Errors:    len(errs),
	}
	result.Failed = result.Declined + result.Exhausted + result.Errors

	span.SetAttributes(
		attribute.Int("billing.due", result.Due),
		attribute.Int("billing.charged", result.Charged),
		attribute.Int("billing.declined", result.Declined),
		attribute.Int("billing.errors", result.Errors),
	)

	logger := d.logger.WithFields(logrus.Fields{
		"due":       result.Due,
		"charged":   result.Charged,
		"declined":  result.Declined,
		"exhausted": result.Exhausted,
		"skipped":   result.Skipped,
		"errors":    result.Errors,
		"duration":  time.Since(start).String(),
	})
	if len(errs) > 0 {
		logger = logger.WithError(errors.Join(errs...))
		span.SetStatus(codes.Error, "some charges failed")
		logger.Warn("billing cycle completed with errors")
	} else {
		logger.Info("billing cycle completed")
	}
	d.metrics.RecordCycle("completed", time.Since(start))
	return result, nil
}

// chargeOne returns a nil Outcome when another driver owns the order.
func (d *Driver) chargeOne(ctx context.Context, o *orders.Order, now time.Time) (*orders.Outcome, error) {
	if o.NextChargeAt == nil {
		return nil, nil
	}
	logger := d.logger.WithField("order_id", o.OrderID)

	claimed, err := d.store.Claim(ctx, o.OrderID, *o.NextChargeAt, now.Add(d.cfg.Lease))
	if err != nil {
		return nil, fmt.Errorf("claim %s: %w", o.OrderID, err)
	}
	if !claimed {
		logger.Debug("order claimed elsewhere")
		return nil, nil
	}

	res, err := d.charger.InitiateCharge(ctx, &payments.ChargeRequest{
		OrderID:          o.OrderID,
		CustomerRef:      o.CustomerRef,
		PaymentMethodRef: o.PaymentMethodRef,
		Amount:           o.Amount,
		Currency:         o.Currency,
		Description:      "Vocea Campusului " + strings.ToLower(string(o.Plan)) + " renewal",
		IdempotencyKey:   IdempotencyKey(o),
	})
	if err != nil {
		d.metrics.RecordCharge("error")
		logger.WithError(err).Warn("charge request failed, order stays leased")
		return nil, fmt.Errorf("charge %s: %w", o.OrderID, err)
	}

	if res.Status == payments.StatusSucceeded {
		d.metrics.RecordCharge("succeeded")
	} else {
		d.metrics.RecordCharge("declined")
		logger.WithField("reason", res.FailureReason).Info("charge declined")
	}

	out, err := d.applier.ApplyChargeResult(ctx, o, res, now)
	if err != nil {
		return nil, fmt.Errorf("apply charge %s: %w", o.OrderID, err)
	}
	return out, nil
}
