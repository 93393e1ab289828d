package payments

import (
	"context"

	"github.com/voceacampusului/vocea/pkg/apperrors"
)

const CodePaymentsDisabled = "PAYMENTS_DISABLED"

// Disabled rejects every payment operation. It stands in for the provider
// when payments are switched off so the rest of the service still runs.
type Disabled struct{}

func errDisabled() error {
	return apperrors.Wrap(apperrors.KindUpstream, CodePaymentsDisabled, "payments are disabled", nil)
}

func (Disabled) CreateCheckout(ctx context.Context, req *CheckoutRequest) (*Checkout, error) {
	return nil, errDisabled()
}

func (Disabled) InitiateCharge(ctx context.Context, req *ChargeRequest) (*ChargeResult, error) {
	return nil, errDisabled()
}

func (Disabled) VerifyStatus(ctx context.Context, reference string) (*Verification, error) {
	return nil, errDisabled()
}

func (Disabled) ParseWebhook(payload []byte, signature string) (*Confirmation, error) {
	return nil, errDisabled()
}
