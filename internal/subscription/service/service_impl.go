package service

import (
	"context"
	"strings"
	"time"

	"github.com/Boateng555/smartmailbox/internal/clock"
	"github.com/Boateng555/smartmailbox/internal/config"
	plandomain "github.com/Boateng555/smartmailbox/internal/plan/domain"
	subscriptiondomain "github.com/Boateng555/smartmailbox/internal/subscription/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	cfg   config.Config
	genID *snowflake.Node
	clock clock.Clock
	repo  subscriptiondomain.Repository

	plansvc plandomain.Service
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Cfg   config.Config
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  subscriptiondomain.Repository

	Plansvc plandomain.Service
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("subscription.service"),
		cfg:   p.Cfg,
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,

		plansvc: p.Plansvc,
	}
}

// CreateTrial implements domain.Service.
func (s *Service) CreateTrial(ctx context.Context, req subscriptiondomain.CreateTrialRequest) (subscriptiondomain.Subscription, error) {
	customerID, err := s.parseID(req.CustomerID, subscriptiondomain.ErrInvalidCustomer)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	tier := req.Tier
	if tier == "" {
		tier = plandomain.TierBasic
	}
	plan, err := s.plansvc.GetActiveByTier(ctx, tier)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	var subscription subscriptiondomain.Subscription
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindByCustomerID(ctx, tx, customerID)
		if err != nil {
			return err
		}
		if existing != nil {
			subscription = *existing
			return nil
		}

		now := s.clock.Now()
		trialEnd := now.Add(time.Duration(s.cfg.TrialDays) * 24 * time.Hour)
		subscription = subscriptiondomain.Subscription{
			ID:                 s.genID.Generate(),
			CustomerID:         customerID,
			PlanID:             plan.ID,
			Status:             subscriptiondomain.StatusTrial,
			TrialStart:         &now,
			TrialEnd:           &trialEnd,
			CurrentPeriodStart: now,
			CurrentPeriodEnd:   trialEnd,
			AutoRenew:          true,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := s.repo.Insert(ctx, tx, &subscription); err != nil {
			return err
		}
		s.log.Info("created trial subscription",
			zap.String("customer_id", customerID.String()),
			zap.String("plan", string(plan.Tier)),
			zap.Time("trial_end", trialEnd),
		)
		return nil
	})
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	return subscription, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (subscriptiondomain.Subscription, error) {
	subscriptionID, err := s.parseID(id, subscriptiondomain.ErrInvalidSubscription)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	subscription, err := s.repo.FindByID(ctx, s.db, subscriptionID)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if subscription == nil {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrSubscriptionNotFound
	}
	return *subscription, nil
}

// GetByCustomerID implements domain.Service.
func (s *Service) GetByCustomerID(ctx context.Context, customerID snowflake.ID) (subscriptiondomain.Subscription, error) {
	if customerID == 0 {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidCustomer
	}

	subscription, err := s.repo.FindByCustomerID(ctx, s.db, customerID)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if subscription == nil {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrSubscriptionNotFound
	}
	return *subscription, nil
}

func (s *Service) GetByProviderSubscriptionID(ctx context.Context, providerSubscriptionID string) (subscriptiondomain.Subscription, error) {
	providerSubscriptionID = strings.TrimSpace(providerSubscriptionID)
	if providerSubscriptionID == "" {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidSubscription
	}

	subscription, err := s.repo.FindByProviderSubscriptionID(ctx, s.db, providerSubscriptionID)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if subscription == nil {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrSubscriptionNotFound
	}
	return *subscription, nil
}

func applyActivate(subscription *subscriptiondomain.Subscription, now time.Time) {
	subscription.Status = subscriptiondomain.StatusActive
	subscription.GracePeriodEnd = nil
}

func applySuspend(gracePeriodDays int) func(*subscriptiondomain.Subscription, time.Time) {
	if gracePeriodDays < 0 {
		gracePeriodDays = 0
	}
	return func(subscription *subscriptiondomain.Subscription, now time.Time) {
		graceEnd := now.Add(time.Duration(gracePeriodDays) * 24 * time.Hour)
		subscription.Status = subscriptiondomain.StatusSuspended
		subscription.GracePeriodEnd = &graceEnd
	}
}

// Activate transitions to active and clears the grace window. Idempotent.
func (s *Service) Activate(ctx context.Context, id snowflake.ID) error {
	return s.transition(ctx, id, applyActivate)
}

// ActivateTx applies Activate inside the caller's transaction.
func (s *Service) ActivateTx(ctx context.Context, tx *gorm.DB, id snowflake.ID) error {
	return s.transitionIn(ctx, tx, id, applyActivate)
}

// Suspend transitions to suspended and opens a grace window.
func (s *Service) Suspend(ctx context.Context, id snowflake.ID, gracePeriodDays int) error {
	return s.transition(ctx, id, applySuspend(gracePeriodDays))
}

// SuspendTx applies Suspend inside the caller's transaction.
func (s *Service) SuspendTx(ctx context.Context, tx *gorm.DB, id snowflake.ID, gracePeriodDays int) error {
	return s.transitionIn(ctx, tx, id, applySuspend(gracePeriodDays))
}

// Cancel is terminal. The record is retained for history.
func (s *Service) Cancel(ctx context.Context, id snowflake.ID) error {
	return s.transition(ctx, id, func(subscription *subscriptiondomain.Subscription, now time.Time) {
		subscription.Status = subscriptiondomain.StatusCancelled
		subscription.CancelledAt = &now
		subscription.AutoRenew = false
	})
}

// Expire marks a suspended subscription whose grace window lapsed without
// payment. The grace window is cleared so entitlement checks stop honouring it.
func (s *Service) Expire(ctx context.Context, id snowflake.ID) error {
	return s.transition(ctx, id, func(subscription *subscriptiondomain.Subscription, now time.Time) {
		subscription.Status = subscriptiondomain.StatusExpired
		subscription.GracePeriodEnd = nil
		subscription.AutoRenew = false
	})
}

// RenewPeriod advances the billing window without changing status.
func (s *Service) RenewPeriod(ctx context.Context, id snowflake.ID) error {
	return s.transition(ctx, id, func(subscription *subscriptiondomain.Subscription, now time.Time) {
		subscription.CurrentPeriodStart = now
		subscription.CurrentPeriodEnd = now.Add(s.cfg.BillingPeriod)
	})
}

// UpdatePeriod overwrites the billing window from provider-supplied
// timestamps without changing status.
func (s *Service) UpdatePeriod(ctx context.Context, id snowflake.ID, periodStart, periodEnd time.Time) error {
	if periodEnd.Before(periodStart) {
		return subscriptiondomain.ErrInvalidPeriod
	}
	return s.transition(ctx, id, func(subscription *subscriptiondomain.Subscription, now time.Time) {
		subscription.CurrentPeriodStart = periodStart
		subscription.CurrentPeriodEnd = periodEnd
	})
}

func (s *Service) AttachProvider(ctx context.Context, id snowflake.ID, customerID, subscriptionID, paymentMethodID *string) error {
	return s.transition(ctx, id, func(subscription *subscriptiondomain.Subscription, now time.Time) {
		if customerID != nil {
			subscription.ProviderCustomerID = customerID
		}
		if subscriptionID != nil {
			subscription.ProviderSubscriptionID = subscriptionID
		}
		if paymentMethodID != nil {
			subscription.ProviderPaymentMethodID = paymentMethodID
		}
	})
}

// transition applies a mutation under a row lock on the subscription.
// Concurrent transitions on the same row serialize; the later write wins.
func (s *Service) transition(ctx context.Context, id snowflake.ID, apply func(*subscriptiondomain.Subscription, time.Time)) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.transitionIn(ctx, tx, id, apply)
	})
}

func (s *Service) transitionIn(ctx context.Context, tx *gorm.DB, id snowflake.ID, apply func(*subscriptiondomain.Subscription, time.Time)) error {
	if id == 0 {
		return subscriptiondomain.ErrInvalidSubscription
	}

	subscription, err := s.repo.FindByIDForUpdate(ctx, tx, id)
	if err != nil {
		return err
	}
	if subscription == nil {
		return subscriptiondomain.ErrSubscriptionNotFound
	}

	now := s.clock.Now()
	apply(subscription, now)
	subscription.UpdatedAt = now

	return s.repo.UpdateLifecycle(ctx, tx, subscription)
}

func (s *Service) parseID(value string, invalidErr error) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, invalidErr
	}
	return id, nil
}
