// Package billing runs the recurring billing cycle.
//
// A cycle takes a cluster-wide lock, lists recurring orders whose
// next_charge_at has passed and charges each one off-session. Before
// charging, an order is claimed by moving next_charge_at forward by a
// lease; a second driver that read the same row loses the claim and skips
// it. If the provider call fails outright the lease is left in place and
// the order becomes due again once it expires. Provider idempotency keys
// are derived from the order's last charge and attempt count, so the
// retried call cannot charge twice.
//
// Charge results go back through the order state machine (see
// pkg/orders), which reschedules declined charges with backoff and expires
// the subscription once retries run out.
//
// Usage:
//
//	driver := billing.NewDriver(orderStore, orderService, provider, billing.NewRedisLocker(rdb), cfg, metrics, logger)
//	result, err := driver.RunCycle(ctx, time.Now())
package billing
