package payments

import "context"

// Status is the outcome of a charge or checkout.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusPending   Status = "pending"
)

const (
	CodeInvalidSignature = "INVALID_SIGNATURE"
	CodeInvalidPayload   = "INVALID_WEBHOOK_PAYLOAD"
)

// ChargeRequest is an off-session charge against a saved payment method.
// Requests with the same IdempotencyKey are charged at most once.
type ChargeRequest struct {
	OrderID          string
	CustomerRef      string
	PaymentMethodRef string
	Amount           int64 // minor units
	Currency         string
	Description      string
	IdempotencyKey   string
}

// ChargeResult reports a charge the provider accepted or declined.
type ChargeResult struct {
	Status        Status
	Reference     string
	FailureReason string
}

// CheckoutRequest starts a hosted checkout for an order.
type CheckoutRequest struct {
	OrderID    string
	UserID     string
	Email      string
	PlanName   string
	Amount     int64
	Currency   string
	Recurring  bool
	SuccessURL string
	CancelURL  string
}

// Checkout is a created hosted checkout.
type Checkout struct {
	Reference   string
	RedirectURL string
}

// Verification is the provider's view of a checkout.
type Verification struct {
	Status           Status
	CustomerRef      string
	PaymentMethodRef string
}

// ConfirmationKind classifies a webhook.
type ConfirmationKind string

const (
	ConfirmationPaid    ConfirmationKind = "paid"
	ConfirmationFailed  ConfirmationKind = "failed"
	ConfirmationIgnored ConfirmationKind = "ignored"
)

// Confirmation is a verified provider callback about an order.
type Confirmation struct {
	EventID   string
	EventType string
	Kind      ConfirmationKind
	OrderID   string
	Reference string
	Reason    string
}

// Provider is the payment provider.
type Provider interface {
	CreateCheckout(ctx context.Context, req *CheckoutRequest) (*Checkout, error)
	InitiateCharge(ctx context.Context, req *ChargeRequest) (*ChargeResult, error)
	VerifyStatus(ctx context.Context, reference string) (*Verification, error)
}

// WebhookParser verifies and decodes provider callbacks.
type WebhookParser interface {
	ParseWebhook(payload []byte, signature string) (*Confirmation, error)
}
