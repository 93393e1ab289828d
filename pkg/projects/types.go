// Package projects stores user projects (marketplace listings).
package projects

import (
	"fmt"
	"time"
)

const CodeProjectNotFound = "PROJECT_NOT_FOUND"

// Project is a listing owned by a user. Only active projects count
// against the owner's quota.
type Project struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	IsActive    bool      `json:"is_active"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateRequest is the user-supplied part of a new project.
type CreateRequest struct {
	Title       string     `json:"title" validate:"required,min=3,max=120"`
	Description string     `json:"description" validate:"max=5000"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// LimitExceededError is returned by CreateWithinLimit when the owner
// already has limit active projects.
type LimitExceededError struct {
	Active int
	Limit  int
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("active project limit reached: %d/%d", e.Active, e.Limit)
}
