package domain

import (
	"context"
	"errors"
)

type Service interface {
	// SeedDefaults idempotently ensures the canonical tiers exist.
	SeedDefaults(ctx context.Context) error
	GetActiveByTier(ctx context.Context, tier Tier) (Plan, error)
	GetByID(ctx context.Context, id string) (Plan, error)
	List(ctx context.Context) ([]Plan, error)
}

var (
	ErrInvalidTier  = errors.New("invalid_tier")
	ErrPlanNotFound = errors.New("plan_not_found")
)
