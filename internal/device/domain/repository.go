package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, device *Device) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Device, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Device, error)
	FindBySerialNumber(ctx context.Context, db *gorm.DB, serialNumber string) (*Device, error)
	FindActiveByOwner(ctx context.Context, db *gorm.DB, ownerID snowflake.ID) ([]Device, error)
	Update(ctx context.Context, db *gorm.DB, device *Device) error
}
