package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, record *UsageRecord) error
	FindMonth(ctx context.Context, db *gorm.DB, deviceID snowflake.ID, year, month int) (*UsageRecord, error)
	FindMonthForUpdate(ctx context.Context, db *gorm.DB, deviceID snowflake.ID, year, month int) (*UsageRecord, error)
	Update(ctx context.Context, db *gorm.DB, record *UsageRecord) error
}
