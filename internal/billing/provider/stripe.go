package provider

import (
	"context"
	"errors"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/invoice"
	"github.com/stripe/stripe-go/v78/invoiceitem"
	"github.com/stripe/stripe-go/v78/subscription"
	"go.uber.org/zap"

	"github.com/Boateng555/smartmailbox/internal/config"
)

type stripeProvider struct {
	log     *zap.Logger
	timeout time.Duration
}

// NewStripe wires the Stripe API key and returns a Provider backed by the
// live Stripe API.
func NewStripe(cfg config.Config, log *zap.Logger) Provider {
	stripe.Key = cfg.StripeAPIKey
	return &stripeProvider{
		log:     log.Named("stripe.provider"),
		timeout: cfg.ProviderTimeout,
	}
}

func (p *stripeProvider) ChargeSubscription(ctx context.Context, providerCustomerID, providerSubscriptionID string, amountCents int64, description string) (ChargeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	_, err := invoiceitem.New(&stripe.InvoiceItemParams{
		Params:      stripe.Params{Context: ctx},
		Customer:    stripe.String(providerCustomerID),
		Amount:      stripe.Int64(amountCents),
		Currency:    stripe.String(string(stripe.CurrencyUSD)),
		Description: stripe.String(description),
	})
	if err != nil {
		return ChargeResult{}, err
	}

	inv, err := invoice.New(&stripe.InvoiceParams{
		Params:       stripe.Params{Context: ctx},
		Customer:     stripe.String(providerCustomerID),
		Subscription: stripe.String(providerSubscriptionID),
		AutoAdvance:  stripe.Bool(false),
		Description:  stripe.String(description),
	})
	if err != nil {
		return ChargeResult{}, err
	}

	paid, err := invoice.Pay(inv.ID, &stripe.InvoicePayParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		// A declined card is a billing outcome, not a transport failure.
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
			p.log.Warn("charge declined",
				zap.String("provider_customer_id", providerCustomerID),
				zap.String("invoice_id", inv.ID),
				zap.String("decline_code", string(stripeErr.Code)),
			)
			return ChargeResult{
				InvoiceID:      inv.ID,
				Paid:           false,
				FailureMessage: stripeErr.Msg,
			}, nil
		}
		return ChargeResult{}, err
	}

	result := ChargeResult{
		InvoiceID:       paid.ID,
		AmountPaidCents: paid.AmountPaid,
		Paid:            paid.Paid,
	}
	if paid.PaymentIntent != nil {
		result.PaymentIntentID = paid.PaymentIntent.ID
	}
	return result, nil
}

func (p *stripeProvider) CancelSubscription(ctx context.Context, providerSubscriptionID string) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	_, err := subscription.Cancel(providerSubscriptionID, &stripe.SubscriptionCancelParams{
		Params: stripe.Params{Context: ctx},
	})
	return err
}
