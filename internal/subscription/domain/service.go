package domain

import (
	"context"
	"errors"
	"time"

	plandomain "github.com/Boateng555/smartmailbox/internal/plan/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type CreateTrialRequest struct {
	CustomerID string          `json:"customer_id"`
	Tier       plandomain.Tier `json:"tier"`
}

type Service interface {
	// CreateTrial creates a 7-day trial subscription for the customer, or
	// returns the existing non-cancelled subscription when one exists.
	CreateTrial(ctx context.Context, req CreateTrialRequest) (Subscription, error)
	GetByID(ctx context.Context, id string) (Subscription, error)
	// GetByCustomerID returns the customer's non-cancelled subscription.
	GetByCustomerID(ctx context.Context, customerID snowflake.ID) (Subscription, error)
	GetByProviderSubscriptionID(ctx context.Context, providerSubscriptionID string) (Subscription, error)

	// Transitions. Each applies under a row lock on the subscription;
	// redundant transitions are no-ops, not errors.
	Activate(ctx context.Context, id snowflake.ID) error
	Suspend(ctx context.Context, id snowflake.ID, gracePeriodDays int) error
	Cancel(ctx context.Context, id snowflake.ID) error
	Expire(ctx context.Context, id snowflake.ID) error
	RenewPeriod(ctx context.Context, id snowflake.ID) error
	UpdatePeriod(ctx context.Context, id snowflake.ID, periodStart, periodEnd time.Time) error

	// ActivateTx and SuspendTx apply the same transitions inside a
	// caller-held transaction, for callers that must commit the status flip
	// together with their own writes.
	ActivateTx(ctx context.Context, tx *gorm.DB, id snowflake.ID) error
	SuspendTx(ctx context.Context, tx *gorm.DB, id snowflake.ID, gracePeriodDays int) error

	AttachProvider(ctx context.Context, id snowflake.ID, customerID, subscriptionID, paymentMethodID *string) error
}

var (
	ErrInvalidCustomer      = errors.New("invalid_customer")
	ErrInvalidSubscription  = errors.New("invalid_subscription")
	ErrInvalidPeriod        = errors.New("invalid_period")
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrSubscriptionExists   = errors.New("subscription_exists")
)
