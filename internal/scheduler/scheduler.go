// Package scheduler runs the periodic billing and suspension sweeps.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	billingdomain "github.com/Boateng555/smartmailbox/internal/billing/domain"
	"github.com/Boateng555/smartmailbox/internal/config"
)

type Scheduler struct {
	log     *zap.Logger
	cfg     config.Config
	billing billingdomain.Service
}

func New(cfg config.Config, log *zap.Logger, billing billingdomain.Service) *Scheduler {
	return &Scheduler{
		log:     log.Named("scheduler"),
		cfg:     cfg,
		billing: billing,
	}
}

// RunOnce executes one full pass: renewals first, then grace-period
// enforcement, so a subscription suspended this pass gets its full grace
// window before its devices are touched.
func (s *Scheduler) RunOnce(ctx context.Context) {
	start := time.Now()

	billingSummary, err := s.billing.RunBillingSweep(ctx)
	if err != nil {
		s.log.Error("billing sweep aborted", zap.Error(err))
	}

	suspensionSummary, err := s.billing.RunSuspensionSweep(ctx)
	if err != nil {
		s.log.Error("suspension sweep aborted", zap.Error(err))
	}

	s.log.Info("sweep pass complete",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("renewals_processed", billingSummary.Processed),
		zap.Int("renewals_failed", billingSummary.Failed),
		zap.Int("grace_lapsed", suspensionSummary.Processed),
		zap.Int("devices_suspended", suspensionSummary.DevicesSuspended),
	)
}

// Run blocks, executing RunOnce every sweep interval until the context is
// cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info("scheduler started", zap.Duration("interval", s.cfg.SweepInterval))

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}
