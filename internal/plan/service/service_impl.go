package service

import (
	"context"
	"strings"

	"github.com/Boateng555/smartmailbox/internal/clock"
	plandomain "github.com/Boateng555/smartmailbox/internal/plan/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  plandomain.Repository
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  plandomain.Repository
}

func NewService(p ServiceParam) plandomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("plan.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// defaultPlans are the canonical tiers. Limits of 0 mean unlimited.
func defaultPlans() []plandomain.Plan {
	return []plandomain.Plan{
		{
			Name:                     "Basic",
			Tier:                     plandomain.TierBasic,
			PriceMonthlyCents:        500,
			NotificationLimit:        100,
			DataLimitMB:              1024,
			OverageNotificationCents: 10,
			OverageDataCentsPerMB:    1,
			Active:                   true,
		},
		{
			Name:                     "Plus",
			Tier:                     plandomain.TierPlus,
			PriceMonthlyCents:        1000,
			NotificationLimit:        500,
			DataLimitMB:              5120,
			OverageNotificationCents: 10,
			OverageDataCentsPerMB:    1,
			Active:                   true,
		},
		{
			Name:                     "Premium",
			Tier:                     plandomain.TierPremium,
			PriceMonthlyCents:        2000,
			NotificationLimit:        0,
			DataLimitMB:              20480,
			OverageNotificationCents: 10,
			OverageDataCentsPerMB:    1,
			Active:                   true,
		},
	}
}

// SeedDefaults creates the canonical tiers if absent, keyed by tier.
func (s *Service) SeedDefaults(ctx context.Context) error {
	now := s.clock.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, plan := range defaultPlans() {
			existing, err := s.repo.FindByTier(ctx, tx, plan.Tier)
			if err != nil {
				return err
			}
			if existing != nil {
				continue
			}
			plan.ID = s.genID.Generate()
			plan.CreatedAt = now
			plan.UpdatedAt = now
			if err := s.repo.Insert(ctx, tx, &plan); err != nil {
				return err
			}
			s.log.Info("seeded plan", zap.String("tier", string(plan.Tier)), zap.String("name", plan.Name))
		}
		return nil
	})
}

func (s *Service) GetActiveByTier(ctx context.Context, tier plandomain.Tier) (plandomain.Plan, error) {
	switch tier {
	case plandomain.TierBasic, plandomain.TierPlus, plandomain.TierPremium:
	default:
		return plandomain.Plan{}, plandomain.ErrInvalidTier
	}

	plan, err := s.repo.FindByTier(ctx, s.db, tier)
	if err != nil {
		return plandomain.Plan{}, err
	}
	if plan == nil || !plan.Active {
		return plandomain.Plan{}, plandomain.ErrPlanNotFound
	}
	return *plan, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (plandomain.Plan, error) {
	planID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || planID == 0 {
		return plandomain.Plan{}, plandomain.ErrPlanNotFound
	}

	plan, err := s.repo.FindByID(ctx, s.db, planID)
	if err != nil {
		return plandomain.Plan{}, err
	}
	if plan == nil {
		return plandomain.Plan{}, plandomain.ErrPlanNotFound
	}
	return *plan, nil
}

func (s *Service) List(ctx context.Context) ([]plandomain.Plan, error) {
	return s.repo.List(ctx, s.db)
}
