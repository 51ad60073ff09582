package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	billingdomain "github.com/Boateng555/smartmailbox/internal/billing/domain"
)

type repository struct{}

func Provide() billingdomain.Repository {
	return &repository{}
}

func (r *repository) Insert(ctx context.Context, db *gorm.DB, record *billingdomain.PaymentRecord) error {
	return db.WithContext(ctx).Create(record).Error
}

func (r *repository) InsertDedup(ctx context.Context, db *gorm.DB, record *billingdomain.PaymentRecord) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider_invoice_id"}},
			DoNothing: true,
		}).
		Create(record)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) FindBySubscriptionID(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) ([]billingdomain.PaymentRecord, error) {
	var records []billingdomain.PaymentRecord
	err := db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("created_at DESC").
		Find(&records).Error
	return records, err
}
