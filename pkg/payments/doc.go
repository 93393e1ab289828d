// Package payments is the boundary to the payment provider.
//
// Provider covers the three calls the subscription lifecycle needs: a
// hosted checkout for the first payment, off-session charges for renewals
// and a status lookup used when a confirmation callback never arrives.
// WebhookParser turns signed provider callbacks into Confirmations.
//
// StripeProvider implements both on Stripe. The first payment goes
// through a Checkout Session that saves the card for off-session use;
// renewals are confirmed PaymentIntents against the saved card. A card
// decline is a ChargeResult with StatusFailed, not an error; errors mean
// the outcome is unknown.
package payments
