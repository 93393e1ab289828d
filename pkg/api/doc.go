// Package api exposes the HTTP surface: the public plan list, the
// authenticated /me routes, the payment webhook and the cron triggers.
//
// Routes:
//
//	GET  /plans
//	GET  /me/entitlement
//	GET  /me/quota
//	GET  /me/projects
//	POST /me/projects
//	POST /me/checkout
//	GET  /me/orders
//	POST /me/orders/{orderID}/cancel
//	POST /payments/webhook
//	POST /internal/cron/billing
//	POST /internal/cron/sweep
//	POST /internal/cron/pending
//
// Every dependency is an interface so handlers can be tested with
// httptest and in-memory fakes.
package api
