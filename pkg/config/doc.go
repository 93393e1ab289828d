// Package config loads process configuration from VOCEA_* environment
// variables, optionally seeded from a .env file.
//
// Required settings:
//
//	VOCEA_DATABASE_URL="postgres://localhost/vocea?sslmode=disable"
//	VOCEA_CRON_SECRET="..."
//
// Payments (required when VOCEA_PAYMENTS_ENABLED=true):
//
//	VOCEA_PAYMENTS_STRIPE_SECRET_KEY="sk_live_..."
//	VOCEA_PAYMENTS_WEBHOOK_SECRET="whsec_..."
//	VOCEA_PAYMENTS_SUCCESS_URL="https://app.example/billing/success"
//	VOCEA_PAYMENTS_CANCEL_URL="https://app.example/billing/cancel"
//
// Billing tuning:
//
//	VOCEA_BILLING_WORKERS="4"
//	VOCEA_BILLING_RETRY_MAX_ATTEMPTS="3"
//	VOCEA_BILLING_RETRY_INITIAL_DELAY="1h"
//	VOCEA_BILLING_CANCEL_ON_EXHAUSTION="true"
//
// Every field carries its default in a struct tag; see Config.
package config
