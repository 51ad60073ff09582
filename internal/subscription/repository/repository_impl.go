package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	subscriptiondomain "github.com/Boateng555/smartmailbox/internal/subscription/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repository struct{}

func Provide() subscriptiondomain.Repository {
	return &repository{}
}

// sqlite has no FOR UPDATE; its single-writer transactions serialize
// conflicting updates anyway.
func lockSuffix(db *gorm.DB, suffix string) string {
	if strings.EqualFold(db.Dialector.Name(), "sqlite") {
		return ""
	}
	return suffix
}

func (r *repository) Insert(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Create(subscription).Error
}

func (r *repository) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	return r.findOne(ctx, db, "id = ?", id)
}

func (r *repository) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var subscriptions []subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM subscriptions WHERE id = ?`+lockSuffix(db, ` FOR UPDATE`),
		id,
	).Scan(&subscriptions).Error
	if err != nil {
		return nil, err
	}
	if len(subscriptions) == 0 {
		return nil, nil
	}
	return &subscriptions[0], nil
}

func (r *repository) FindByCustomerID(ctx context.Context, db *gorm.DB, customerID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	return r.findOne(ctx, db, "customer_id = ? AND status != ?", customerID, subscriptiondomain.StatusCancelled)
}

func (r *repository) FindByProviderSubscriptionID(ctx context.Context, db *gorm.DB, providerSubscriptionID string) (*subscriptiondomain.Subscription, error) {
	return r.findOne(ctx, db, "provider_subscription_id = ?", providerSubscriptionID)
}

// The sweep queries are keyset-paginated snapshot reads: the caller carries
// the last-seen id forward so a row it could not process is never refetched
// within the same pass. Row locks are taken by the transitions, not here.
func (r *repository) FindDueForBilling(ctx context.Context, db *gorm.DB, now time.Time, afterID snowflake.ID, limit int) ([]subscriptiondomain.Subscription, error) {
	var subscriptions []subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM subscriptions
		 WHERE status IN (?, ?) AND current_period_end <= ? AND id > ?
		 ORDER BY id
		 LIMIT ?`,
		subscriptiondomain.StatusActive,
		subscriptiondomain.StatusTrial,
		now,
		afterID,
		limit,
	).Scan(&subscriptions).Error
	return subscriptions, err
}

func (r *repository) FindLapsedGrace(ctx context.Context, db *gorm.DB, now time.Time, afterID snowflake.ID, limit int) ([]subscriptiondomain.Subscription, error) {
	var subscriptions []subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM subscriptions
		 WHERE status = ? AND grace_period_end IS NOT NULL AND grace_period_end <= ? AND id > ?
		 ORDER BY id
		 LIMIT ?`,
		subscriptiondomain.StatusSuspended,
		now,
		afterID,
		limit,
	).Scan(&subscriptions).Error
	return subscriptions, err
}

func (r *repository) UpdateLifecycle(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?, current_period_start = ?, current_period_end = ?,
		     cancelled_at = ?, grace_period_end = ?, auto_renew = ?,
		     provider_customer_id = ?, provider_subscription_id = ?, provider_payment_method_id = ?,
		     updated_at = ?
		 WHERE id = ?`,
		subscription.Status,
		subscription.CurrentPeriodStart,
		subscription.CurrentPeriodEnd,
		subscription.CancelledAt,
		subscription.GracePeriodEnd,
		subscription.AutoRenew,
		subscription.ProviderCustomerID,
		subscription.ProviderSubscriptionID,
		subscription.ProviderPaymentMethodID,
		subscription.UpdatedAt,
		subscription.ID,
	).Error
}

func (r *repository) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*subscriptiondomain.Subscription, error) {
	var subscription subscriptiondomain.Subscription
	err := db.WithContext(ctx).Where(query, args...).First(&subscription).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &subscription, nil
}
