package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, plan *Plan) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Plan, error)
	FindByTier(ctx context.Context, db *gorm.DB, tier Tier) (*Plan, error)
	List(ctx context.Context, db *gorm.DB) ([]Plan, error)
}
