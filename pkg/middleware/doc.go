// Package middleware provides request guards for the API router.
//
// # Ordering
//
// Per-user guards read the user id set by identity.Middleware, so they
// must be mounted inside it:
//
//	me := router.PathPrefix("/me").Subrouter()
//	me.Use(resolver.Middleware)                // sets the user
//	me.Handle("/checkout", middleware.RateLimit(limiter, middleware.UserKey, logger)(checkout))
//	me.Handle("/projects", middleware.EnforceProjectQuota(enforcer, logger)(create))
//
// Mounted outside identity.Middleware, UserKey returns "" and RateLimit
// falls back to the client address.
//
// Cron endpoints are guarded by CronAuth, a shared bearer secret compared
// in constant time.
package middleware
