package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, record *PaymentRecord) error

	// InsertDedup inserts the record unless a row with the same provider
	// invoice id already exists. It reports whether a row was written.
	InsertDedup(ctx context.Context, db *gorm.DB, record *PaymentRecord) (bool, error)

	FindBySubscriptionID(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) ([]PaymentRecord, error)
}
