package repository

import (
	"context"
	"errors"

	plandomain "github.com/Boateng555/smartmailbox/internal/plan/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repository struct{}

func Provide() plandomain.Repository {
	return &repository{}
}

func (r *repository) Insert(ctx context.Context, db *gorm.DB, plan *plandomain.Plan) error {
	return db.WithContext(ctx).Create(plan).Error
}

func (r *repository) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*plandomain.Plan, error) {
	var plan plandomain.Plan
	err := db.WithContext(ctx).Where("id = ?", id).First(&plan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &plan, nil
}

func (r *repository) FindByTier(ctx context.Context, db *gorm.DB, tier plandomain.Tier) (*plandomain.Plan, error) {
	var plan plandomain.Plan
	err := db.WithContext(ctx).Where("tier = ?", tier).First(&plan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &plan, nil
}

func (r *repository) List(ctx context.Context, db *gorm.DB) ([]plandomain.Plan, error) {
	var plans []plandomain.Plan
	err := db.WithContext(ctx).Order("price_monthly_cents ASC").Find(&plans).Error
	return plans, err
}
