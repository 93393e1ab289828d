// Package entitlements answers which plan tier a user is currently
// entitled to.
//
// The active subscription is authoritative. When a user has none, the
// legacy users.plan_type column is consulted, and anything missing or
// unrecognized resolves to Basic. Reads go straight to the primary store
// and are never cached, so a confirmed payment is visible to the next
// request.
package entitlements
