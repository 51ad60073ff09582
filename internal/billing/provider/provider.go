// Package provider abstracts the external payment processor so the
// billing sweep and tests do not depend on live Stripe calls.
package provider

import "context"

// ChargeResult reports the outcome of one renewal charge attempt.
type ChargeResult struct {
	InvoiceID       string
	PaymentIntentID string
	AmountPaidCents int64
	Paid            bool
	FailureMessage  string
}

type Provider interface {
	// ChargeSubscription creates and pays a renewal invoice for the
	// provider subscription. A declined card returns Paid=false with a
	// FailureMessage, not an error; errors mean the attempt itself failed.
	ChargeSubscription(ctx context.Context, providerCustomerID, providerSubscriptionID string, amountCents int64, description string) (ChargeResult, error)

	// CancelSubscription cancels the provider-side subscription so no
	// further invoices are generated.
	CancelSubscription(ctx context.Context, providerSubscriptionID string) error
}
