package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/stripe/stripe-go/v78"
)

var ErrInvalidSubscription = errors.New("invalid_subscription")

type Service interface {
	// ProcessWebhookEvent applies one provider event to the subscription
	// ledger. Unknown event types and events for unknown subscriptions
	// are ignored. Redelivered events are deduplicated by invoice id.
	ProcessWebhookEvent(ctx context.Context, event stripe.Event) error

	// RunBillingSweep charges every subscription whose current period has
	// ended, activating or suspending it based on the outcome.
	RunBillingSweep(ctx context.Context) (SweepSummary, error)

	// RunSuspensionSweep suspends devices owned by customers whose grace
	// period has lapsed without payment.
	RunSuspensionSweep(ctx context.Context) (SuspensionSweepSummary, error)

	// CancelSubscription cancels at the provider first, then locally.
	CancelSubscription(ctx context.Context, id snowflake.ID) error

	// ListPayments returns the payment history for a subscription, newest
	// first.
	ListPayments(ctx context.Context, subscriptionID snowflake.ID) ([]PaymentRecord, error)
}
