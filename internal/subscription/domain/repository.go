package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindByCustomerID(ctx context.Context, db *gorm.DB, customerID snowflake.ID) (*Subscription, error)
	FindByProviderSubscriptionID(ctx context.Context, db *gorm.DB, providerSubscriptionID string) (*Subscription, error)
	// FindDueForBilling pages through trial/active subscriptions whose
	// period has lapsed, in id order starting after afterID. Snapshot read;
	// transitions take the row lock themselves.
	FindDueForBilling(ctx context.Context, db *gorm.DB, now time.Time, afterID snowflake.ID, limit int) ([]Subscription, error)
	// FindLapsedGrace pages through suspended subscriptions whose grace
	// window has passed, in id order starting after afterID.
	FindLapsedGrace(ctx context.Context, db *gorm.DB, now time.Time, afterID snowflake.ID, limit int) ([]Subscription, error)
	UpdateLifecycle(ctx context.Context, db *gorm.DB, subscription *Subscription) error
}
