// Package seed migrates the schema and ensures the canonical plan catalog
// exists before the app starts serving.
package seed

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	billingdomain "github.com/Boateng555/smartmailbox/internal/billing/domain"
	devicedomain "github.com/Boateng555/smartmailbox/internal/device/domain"
	plandomain "github.com/Boateng555/smartmailbox/internal/plan/domain"
	subscriptiondomain "github.com/Boateng555/smartmailbox/internal/subscription/domain"
	usagedomain "github.com/Boateng555/smartmailbox/internal/usage/domain"
)

// Migrate creates or updates all tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&plandomain.Plan{},
		&subscriptiondomain.Subscription{},
		&devicedomain.Device{},
		&usagedomain.UsageRecord{},
		&billingdomain.PaymentRecord{},
	)
}

func register(lc fx.Lifecycle, db *gorm.DB, log *zap.Logger, plansvc plandomain.Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := Migrate(db); err != nil {
				return err
			}
			if err := plansvc.SeedDefaults(ctx); err != nil {
				return err
			}
			log.Info("schema migrated and plan catalog seeded")
			return nil
		},
	})
}

var Module = fx.Module("seed",
	fx.Invoke(register),
)
