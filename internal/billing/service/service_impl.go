package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stripe/stripe-go/v78"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	billingdomain "github.com/Boateng555/smartmailbox/internal/billing/domain"
	"github.com/Boateng555/smartmailbox/internal/billing/provider"
	"github.com/Boateng555/smartmailbox/internal/clock"
	"github.com/Boateng555/smartmailbox/internal/config"
	devicedomain "github.com/Boateng555/smartmailbox/internal/device/domain"
	"github.com/Boateng555/smartmailbox/internal/metrics"
	plandomain "github.com/Boateng555/smartmailbox/internal/plan/domain"
	subscriptiondomain "github.com/Boateng555/smartmailbox/internal/subscription/domain"
)

const fallbackFailureReason = "Payment failed"

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	cfg   config.Config
	genID *snowflake.Node
	clock clock.Clock
	repo  billingdomain.Repository

	subsvc   subscriptiondomain.Service
	subrepo  subscriptiondomain.Repository
	plansvc  plandomain.Service
	devsvc   devicedomain.Service
	provider provider.Provider
	metrics  *metrics.Metrics
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Cfg   config.Config
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  billingdomain.Repository

	Subsvc   subscriptiondomain.Service
	Subrepo  subscriptiondomain.Repository
	Plansvc  plandomain.Service
	Devsvc   devicedomain.Service
	Provider provider.Provider
	Metrics  *metrics.Metrics
}

func NewService(p ServiceParam) billingdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("billing.service"),
		cfg:   p.Cfg,
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,

		subsvc:   p.Subsvc,
		subrepo:  p.Subrepo,
		plansvc:  p.Plansvc,
		devsvc:   p.Devsvc,
		provider: p.Provider,
		metrics:  p.Metrics,
	}
}

// ProcessWebhookEvent implements domain.Service.
func (s *Service) ProcessWebhookEvent(ctx context.Context, event stripe.Event) error {
	s.metrics.WebhookEvents.WithLabelValues(string(event.Type)).Inc()

	switch string(event.Type) {
	case "invoice.payment_succeeded":
		return s.handleInvoicePaid(ctx, event)
	case "invoice.payment_failed":
		return s.handleInvoiceFailed(ctx, event)
	case "customer.subscription.deleted":
		return s.handleProviderCancelled(ctx, event)
	case "customer.subscription.updated":
		return s.handleProviderUpdated(ctx, event)
	default:
		s.log.Debug("ignoring webhook event", zap.String("type", string(event.Type)))
		return nil
	}
}

func (s *Service) handleInvoicePaid(ctx context.Context, event stripe.Event) error {
	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return err
	}

	subscription, ok := s.lookupInvoiceSubscription(ctx, &inv, string(event.Type))
	if !ok {
		return nil
	}

	now := s.clock.Now()
	record := &billingdomain.PaymentRecord{
		ID:                s.genID.Generate(),
		SubscriptionID:    subscription.ID,
		AmountCents:       inv.AmountPaid,
		Currency:          "USD",
		Status:            billingdomain.PaymentStatusSucceeded,
		ProviderInvoiceID: &inv.ID,
		Description:       "Subscription renewal",
		PaidAt:            &now,
		CreatedAt:         now,
	}
	if inv.PaymentIntent != nil {
		record.ProviderPaymentIntentID = &inv.PaymentIntent.ID
	}
	if inv.Charge != nil {
		record.ProviderChargeID = &inv.Charge.ID
	}

	// One transaction: a failed transition rolls back the dedup row too,
	// so the provider's redelivery gets a clean retry.
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inserted, err := s.repo.InsertDedup(ctx, tx, record)
		if err != nil {
			return err
		}
		if !inserted {
			s.log.Debug("duplicate payment_succeeded delivery",
				zap.String("provider_invoice_id", inv.ID),
			)
			return nil
		}

		s.log.Info("payment succeeded",
			zap.String("subscription_id", subscription.ID.String()),
			zap.Int64("amount_cents", inv.AmountPaid),
			zap.String("provider_invoice_id", inv.ID),
		)
		return s.subsvc.ActivateTx(ctx, tx, subscription.ID)
	})
}

func (s *Service) handleInvoiceFailed(ctx context.Context, event stripe.Event) error {
	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return err
	}

	subscription, ok := s.lookupInvoiceSubscription(ctx, &inv, string(event.Type))
	if !ok {
		return nil
	}

	reason := fallbackFailureReason
	if inv.LastFinalizationError != nil && inv.LastFinalizationError.Msg != "" {
		reason = inv.LastFinalizationError.Msg
	}

	now := s.clock.Now()
	record := &billingdomain.PaymentRecord{
		ID:                s.genID.Generate(),
		SubscriptionID:    subscription.ID,
		AmountCents:       inv.AmountDue,
		Currency:          "USD",
		Status:            billingdomain.PaymentStatusFailed,
		ProviderInvoiceID: &inv.ID,
		Description:       "Subscription renewal",
		FailureReason:     reason,
		CreatedAt:         now,
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inserted, err := s.repo.InsertDedup(ctx, tx, record)
		if err != nil {
			return err
		}
		if !inserted {
			s.log.Debug("duplicate payment_failed delivery",
				zap.String("provider_invoice_id", inv.ID),
			)
			return nil
		}

		s.log.Warn("payment failed",
			zap.String("subscription_id", subscription.ID.String()),
			zap.String("provider_invoice_id", inv.ID),
			zap.String("reason", reason),
		)
		return s.subsvc.SuspendTx(ctx, tx, subscription.ID, s.cfg.GracePeriodDays)
	})
}

func (s *Service) handleProviderCancelled(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return err
	}

	subscription, ok := s.lookupProviderSubscription(ctx, sub.ID, string(event.Type))
	if !ok {
		return nil
	}

	s.log.Info("provider cancelled subscription",
		zap.String("subscription_id", subscription.ID.String()),
		zap.String("provider_subscription_id", sub.ID),
	)
	return s.subsvc.Cancel(ctx, subscription.ID)
}

func (s *Service) handleProviderUpdated(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return err
	}

	subscription, ok := s.lookupProviderSubscription(ctx, sub.ID, string(event.Type))
	if !ok {
		return nil
	}
	if sub.CurrentPeriodStart == 0 || sub.CurrentPeriodEnd == 0 {
		s.log.Warn("subscription.updated without period timestamps",
			zap.String("provider_subscription_id", sub.ID),
		)
		return nil
	}

	return s.subsvc.UpdatePeriod(ctx, subscription.ID,
		time.Unix(sub.CurrentPeriodStart, 0).UTC(),
		time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
	)
}

// lookupInvoiceSubscription resolves the local subscription for an invoice
// event. Events for unknown subscriptions are acknowledged so the provider
// stops retrying them.
func (s *Service) lookupInvoiceSubscription(ctx context.Context, inv *stripe.Invoice, eventType string) (subscriptiondomain.Subscription, bool) {
	if inv.Subscription == nil || inv.Subscription.ID == "" {
		s.log.Warn("invoice event without subscription", zap.String("type", eventType))
		return subscriptiondomain.Subscription{}, false
	}
	return s.lookupProviderSubscription(ctx, inv.Subscription.ID, eventType)
}

func (s *Service) lookupProviderSubscription(ctx context.Context, providerSubscriptionID, eventType string) (subscriptiondomain.Subscription, bool) {
	subscription, err := s.subsvc.GetByProviderSubscriptionID(ctx, providerSubscriptionID)
	if err != nil {
		s.log.Warn("webhook event for unknown subscription",
			zap.String("type", eventType),
			zap.String("provider_subscription_id", providerSubscriptionID),
			zap.Error(err),
		)
		return subscriptiondomain.Subscription{}, false
	}
	return subscription, true
}

// RunBillingSweep implements domain.Service. Each subscription is processed
// independently; one failure never aborts the sweep.
func (s *Service) RunBillingSweep(ctx context.Context) (billingdomain.SweepSummary, error) {
	var summary billingdomain.SweepSummary

	// Keyset pagination: the cursor only moves forward, so a row whose
	// renewal errors out is visited at most once per pass.
	var cursor snowflake.ID
	for {
		due, err := s.subrepo.FindDueForBilling(ctx, s.db, s.clock.Now(), cursor, s.cfg.SweepBatchSize)
		if err != nil {
			return summary, err
		}
		if len(due) == 0 {
			break
		}
		cursor = due[len(due)-1].ID

		for i := range due {
			summary.Processed++
			if err := s.renewSubscription(ctx, due[i]); err != nil {
				summary.Failed++
				s.metrics.SweepOutcomes.WithLabelValues("billing_sweep", "failed").Inc()
				s.log.Error("renewal failed",
					zap.String("subscription_id", due[i].ID.String()),
					zap.Error(err),
				)
				continue
			}
			summary.Succeeded++
			s.metrics.SweepOutcomes.WithLabelValues("billing_sweep", "succeeded").Inc()
		}

		if len(due) < s.cfg.SweepBatchSize {
			break
		}
	}

	s.log.Info("billing sweep complete",
		zap.Int("processed", summary.Processed),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

// renewSubscription settles one due subscription: charge and renew, or
// suspend.
func (s *Service) renewSubscription(ctx context.Context, subscription subscriptiondomain.Subscription) error {
	plan, err := s.plansvc.GetByID(ctx, subscription.PlanID.String())
	if err != nil {
		return err
	}

	if subscription.Status == subscriptiondomain.StatusTrial && !subscription.HasPaymentMethod() {
		// The provider can move current_period_end inside the trial window;
		// the trial itself decides when the free period is over.
		if subscription.TrialEnd != nil && s.clock.Now().Before(*subscription.TrialEnd) {
			return nil
		}
		// A trial that ends with no payment method on file cannot recover,
		// so it is suspended without a grace window.
		if err := s.subsvc.Suspend(ctx, subscription.ID, 0); err != nil {
			return err
		}
		return s.recordFailure(ctx, subscription.ID, plan.PriceMonthlyCents, nil, "No payment method on file")
	}

	if subscription.ProviderCustomerID == nil || subscription.ProviderSubscriptionID == nil {
		if err := s.subsvc.Suspend(ctx, subscription.ID, s.cfg.GracePeriodDays); err != nil {
			return err
		}
		return s.recordFailure(ctx, subscription.ID, plan.PriceMonthlyCents, nil, "Subscription not linked to payment provider")
	}

	result, err := s.provider.ChargeSubscription(ctx,
		*subscription.ProviderCustomerID,
		*subscription.ProviderSubscriptionID,
		plan.PriceMonthlyCents,
		"Monthly subscription - "+plan.Name,
	)
	if err != nil {
		if suspendErr := s.subsvc.Suspend(ctx, subscription.ID, s.cfg.GracePeriodDays); suspendErr != nil {
			return suspendErr
		}
		if recordErr := s.recordFailure(ctx, subscription.ID, plan.PriceMonthlyCents, nil, err.Error()); recordErr != nil {
			return recordErr
		}
		return err
	}

	if !result.Paid {
		if err := s.subsvc.Suspend(ctx, subscription.ID, s.cfg.GracePeriodDays); err != nil {
			return err
		}
		reason := result.FailureMessage
		if reason == "" {
			reason = fallbackFailureReason
		}
		var invoiceID *string
		if result.InvoiceID != "" {
			invoiceID = &result.InvoiceID
		}
		if err := s.recordFailure(ctx, subscription.ID, plan.PriceMonthlyCents, invoiceID, reason); err != nil {
			return err
		}
		s.log.Warn("renewal charge declined",
			zap.String("subscription_id", subscription.ID.String()),
			zap.String("reason", reason),
		)
		return nil
	}

	if err := s.subsvc.Activate(ctx, subscription.ID); err != nil {
		return err
	}
	if err := s.subsvc.RenewPeriod(ctx, subscription.ID); err != nil {
		return err
	}

	now := s.clock.Now()
	record := &billingdomain.PaymentRecord{
		ID:             s.genID.Generate(),
		SubscriptionID: subscription.ID,
		AmountCents:    result.AmountPaidCents,
		Currency:       "USD",
		Status:         billingdomain.PaymentStatusSucceeded,
		Description:    "Monthly subscription - " + plan.Name,
		PaidAt:         &now,
		CreatedAt:      now,
	}
	if result.InvoiceID != "" {
		record.ProviderInvoiceID = &result.InvoiceID
	}
	if result.PaymentIntentID != "" {
		record.ProviderPaymentIntentID = &result.PaymentIntentID
	}
	if record.ProviderInvoiceID != nil {
		_, err = s.repo.InsertDedup(ctx, s.db, record)
		return err
	}
	return s.repo.Insert(ctx, s.db, record)
}

func (s *Service) recordFailure(ctx context.Context, subscriptionID snowflake.ID, amountCents int64, providerInvoiceID *string, reason string) error {
	record := &billingdomain.PaymentRecord{
		ID:                s.genID.Generate(),
		SubscriptionID:    subscriptionID,
		AmountCents:       amountCents,
		Currency:          "USD",
		Status:            billingdomain.PaymentStatusFailed,
		ProviderInvoiceID: providerInvoiceID,
		Description:       "Subscription renewal",
		FailureReason:     reason,
		CreatedAt:         s.clock.Now(),
	}
	if providerInvoiceID != nil {
		_, err := s.repo.InsertDedup(ctx, s.db, record)
		return err
	}
	return s.repo.Insert(ctx, s.db, record)
}

// RunSuspensionSweep implements domain.Service. Suspended subscriptions
// whose grace window lapsed are expired and their owner's devices demoted.
func (s *Service) RunSuspensionSweep(ctx context.Context) (billingdomain.SuspensionSweepSummary, error) {
	var summary billingdomain.SuspensionSweepSummary

	var cursor snowflake.ID
	for {
		lapsed, err := s.subrepo.FindLapsedGrace(ctx, s.db, s.clock.Now(), cursor, s.cfg.SweepBatchSize)
		if err != nil {
			return summary, err
		}
		if len(lapsed) == 0 {
			break
		}
		cursor = lapsed[len(lapsed)-1].ID

		for i := range lapsed {
			summary.Processed++
			suspended, err := s.expireAndSuspendDevices(ctx, lapsed[i])
			if err != nil {
				summary.Failed++
				s.metrics.SweepOutcomes.WithLabelValues("suspension_sweep", "failed").Inc()
				s.log.Error("suspension sweep entry failed",
					zap.String("subscription_id", lapsed[i].ID.String()),
					zap.Error(err),
				)
				continue
			}
			summary.DevicesSuspended += suspended
			s.metrics.SweepOutcomes.WithLabelValues("suspension_sweep", "succeeded").Inc()
		}

		if len(lapsed) < s.cfg.SweepBatchSize {
			break
		}
	}

	s.log.Info("suspension sweep complete",
		zap.Int("processed", summary.Processed),
		zap.Int("devices_suspended", summary.DevicesSuspended),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

func (s *Service) expireAndSuspendDevices(ctx context.Context, subscription subscriptiondomain.Subscription) (int, error) {
	if err := s.subsvc.Expire(ctx, subscription.ID); err != nil {
		return 0, err
	}

	suspended, err := s.devsvc.SuspendActiveForOwner(ctx, subscription.CustomerID)
	if err != nil {
		return 0, err
	}
	if suspended > 0 {
		s.log.Info("suspended devices for lapsed subscription",
			zap.String("customer_id", subscription.CustomerID.String()),
			zap.Int("devices", suspended),
		)
	}
	return suspended, nil
}

// CancelSubscription implements domain.Service.
func (s *Service) CancelSubscription(ctx context.Context, id snowflake.ID) error {
	if id == 0 {
		return billingdomain.ErrInvalidSubscription
	}

	subscription, err := s.subsvc.GetByID(ctx, id.String())
	if err != nil {
		return err
	}

	if subscription.ProviderSubscriptionID != nil {
		if err := s.provider.CancelSubscription(ctx, *subscription.ProviderSubscriptionID); err != nil {
			return err
		}
	}
	return s.subsvc.Cancel(ctx, subscription.ID)
}

// ListPayments implements domain.Service.
func (s *Service) ListPayments(ctx context.Context, subscriptionID snowflake.ID) ([]billingdomain.PaymentRecord, error) {
	if subscriptionID == 0 {
		return nil, billingdomain.ErrInvalidSubscription
	}
	return s.repo.FindBySubscriptionID(ctx, s.db, subscriptionID)
}
