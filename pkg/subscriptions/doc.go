// Package subscriptions reads the per-user subscription records.
//
// A user has at most one active subscription; a partial unique index on
// (user_id) WHERE status = 'active' enforces it. Subscriptions are written
// by the order state machine (pkg/orders) in the same transaction as the
// order transition that causes them. This package only reads them and
// repairs the denormalized users.plan_type column from them.
package subscriptions
