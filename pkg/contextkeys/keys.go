// Package contextkeys provides centralized context key definitions
//
// All context keys used across the application are defined here so key
// usage stays discoverable.
//
//	ctx = contextkeys.WithUserID(ctx, user.ID)
//	userID := contextkeys.GetUserID(ctx)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// UserKey contains *users.User
	// Set by: identity.Middleware
	// Required by: every /me endpoint
	UserKey Key = "user"

	// UserIDKey contains the internal user id string
	// Set by: identity.Middleware
	// Used by: logger fields, rate limiter keys
	UserIDKey Key = "user_id"

	// RequestIDKey contains the request id string (UUID)
	// Set by: httputil.RequestIDMiddleware
	RequestIDKey Key = "request_id"

	// LoggerKey contains a logrus.FieldLogger scoped to the request
	// Set by: httputil.LoggingMiddleware, extended with user_id by identity.Middleware
	LoggerKey Key = "logger"
)

// WithUser adds the authenticated user to the context
func WithUser(ctx context.Context, user interface{}) context.Context {
	return context.WithValue(ctx, UserKey, user)
}

// WithUserID adds user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetUserID retrieves user ID from context
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}
