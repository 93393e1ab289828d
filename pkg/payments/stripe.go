package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/webhook"
	"github.com/voceacampusului/vocea/pkg/apperrors"
)

// StripeConfig holds Stripe credentials.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

// StripeProvider implements Provider and WebhookParser on Stripe.
type StripeProvider struct {
	webhookSecret string

	createSession       func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	getSession          func(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	createPaymentIntent func(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// NewStripeProvider configures the Stripe client.
func NewStripeProvider(cfg StripeConfig) *StripeProvider {
	stripe.Key = strings.TrimSpace(cfg.SecretKey)
	return &StripeProvider{
		webhookSecret:       strings.TrimSpace(cfg.WebhookSecret),
		createSession:       session.New,
		getSession:          session.Get,
		createPaymentIntent: paymentintent.New,
	}
}

// CreateCheckout creates a hosted Checkout Session for the order. For
// recurring orders the card is saved on a customer for off-session reuse.
func (p *StripeProvider) CreateCheckout(ctx context.Context, req *CheckoutRequest) (*Checkout, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.OrderID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(req.Currency)),
					UnitAmount: stripe.Int64(req.Amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("Vocea Campusului " + req.PlanName),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}
	if req.Recurring {
		params.CustomerCreation = stripe.String("always")
		params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{
			SetupFutureUsage: stripe.String("off_session"),
		}
	}
	params.AddMetadata("order_id", req.OrderID)
	params.AddMetadata("user_id", req.UserID)
	params.SetIdempotencyKey("checkout:" + req.OrderID)
	params.Context = ctx

	sess, err := p.createSession(params)
	if err != nil {
		return nil, apperrors.Upstream("payments.CreateCheckout", err)
	}
	return &Checkout{Reference: sess.ID, RedirectURL: sess.URL}, nil
}

// InitiateCharge confirms an off-session PaymentIntent. Card declines are
// returned as StatusFailed results.
func (p *StripeProvider) InitiateCharge(ctx context.Context, req *ChargeRequest) (*ChargeResult, error) {
	if req.CustomerRef == "" || req.PaymentMethodRef == "" {
		return &ChargeResult{Status: StatusFailed, FailureReason: "no saved payment method"}, nil
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.Amount),
		Currency:      stripe.String(strings.ToLower(req.Currency)),
		Customer:      stripe.String(req.CustomerRef),
		PaymentMethod: stripe.String(req.PaymentMethodRef),
		OffSession:    stripe.Bool(true),
		Confirm:       stripe.Bool(true),
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	params.AddMetadata("order_id", req.OrderID)
	params.SetIdempotencyKey(req.IdempotencyKey)
	params.Context = ctx

	pi, err := p.createPaymentIntent(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
			result := &ChargeResult{Status: StatusFailed, FailureReason: declineReason(stripeErr)}
			if stripeErr.PaymentIntent != nil {
				result.Reference = stripeErr.PaymentIntent.ID
			}
			return result, nil
		}
		return nil, apperrors.Upstream("payments.InitiateCharge", err)
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded, stripe.PaymentIntentStatusProcessing:
		return &ChargeResult{Status: StatusSucceeded, Reference: pi.ID}, nil
	default:
		return &ChargeResult{
			Status:        StatusFailed,
			Reference:     pi.ID,
			FailureReason: "payment intent " + string(pi.Status),
		}, nil
	}
}

func declineReason(e *stripe.Error) string {
	if e.DeclineCode != "" {
		return string(e.DeclineCode)
	}
	if e.Code != "" {
		return string(e.Code)
	}
	return e.Msg
}

// VerifyStatus looks up a Checkout Session and the payment method it saved.
func (p *StripeProvider) VerifyStatus(ctx context.Context, reference string) (*Verification, error) {
	params := &stripe.CheckoutSessionParams{}
	params.AddExpand("payment_intent")
	params.Context = ctx

	sess, err := p.getSession(reference, params)
	if err != nil {
		return nil, apperrors.Upstream("payments.VerifyStatus", err)
	}

	v := &Verification{Status: StatusPending}
	switch {
	case sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid:
		v.Status = StatusSucceeded
	case sess.Status == stripe.CheckoutSessionStatusExpired:
		v.Status = StatusFailed
	}
	if sess.Customer != nil {
		v.CustomerRef = sess.Customer.ID
	}
	if sess.PaymentIntent != nil && sess.PaymentIntent.PaymentMethod != nil {
		v.PaymentMethodRef = sess.PaymentIntent.PaymentMethod.ID
	}
	return v, nil
}

type checkoutSessionEvent struct {
	ID                string            `json:"id"`
	ClientReferenceID string            `json:"client_reference_id"`
	PaymentStatus     string            `json:"payment_status"`
	Status            string            `json:"status"`
	Metadata          map[string]string `json:"metadata"`
}

// ParseWebhook verifies the Stripe-Signature header and classifies the
// event. Unrelated event types come back as ConfirmationIgnored.
func (p *StripeProvider) ParseWebhook(payload []byte, signature string) (*Confirmation, error) {
	if p.webhookSecret == "" || strings.TrimSpace(signature) == "" {
		return nil, apperrors.Validation(CodeInvalidSignature, "missing webhook signature")
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, CodeInvalidSignature, "invalid webhook signature", err)
	}

	c := &Confirmation{EventID: event.ID, EventType: string(event.Type), Kind: ConfirmationIgnored}

	var kind ConfirmationKind
	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		kind = ConfirmationPaid
	case "checkout.session.async_payment_failed", "checkout.session.expired":
		kind = ConfirmationFailed
	default:
		return c, nil
	}

	var sess checkoutSessionEvent
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, CodeInvalidPayload, "malformed checkout session", err)
	}

	c.Reference = sess.ID
	c.OrderID = sess.ClientReferenceID
	if c.OrderID == "" {
		c.OrderID = sess.Metadata["order_id"]
	}
	if c.OrderID == "" {
		return nil, apperrors.Validation(CodeInvalidPayload, fmt.Sprintf("checkout session %s has no order reference", sess.ID))
	}

	switch {
	case kind == ConfirmationFailed:
		c.Kind = ConfirmationFailed
		c.Reason = string(event.Type)
	case sess.PaymentStatus == "paid" || sess.PaymentStatus == "no_payment_required":
		c.Kind = ConfirmationPaid
	default:
		// Completed but still awaiting an asynchronous payment method.
		c.Kind = ConfirmationIgnored
	}
	return c, nil
}
