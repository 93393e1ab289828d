// Package users stores marketplace accounts and their identity mapping.
package users

import (
	"time"

	"github.com/voceacampusului/vocea/pkg/plans"
)

// CodeUserNotFound is returned when a user id or clerk id has no row.
const CodeUserNotFound = "USER_NOT_FOUND"

// User is a marketplace account. PlanType is a denormalized copy of the
// active subscription's plan, kept for legacy readers.
type User struct {
	ID         string     `json:"id"`
	ClerkID    string     `json:"clerk_id"`
	Email      string     `json:"email"`
	FirstName  string     `json:"first_name,omitempty"`
	LastName   string     `json:"last_name,omitempty"`
	University string     `json:"university,omitempty"`
	PlanType   plans.Tier `json:"plan_type"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
