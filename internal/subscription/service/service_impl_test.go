package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Boateng555/smartmailbox/internal/clock"
	"github.com/Boateng555/smartmailbox/internal/config"
	plandomain "github.com/Boateng555/smartmailbox/internal/plan/domain"
	planrepository "github.com/Boateng555/smartmailbox/internal/plan/repository"
	planservice "github.com/Boateng555/smartmailbox/internal/plan/service"
	subscriptiondomain "github.com/Boateng555/smartmailbox/internal/subscription/domain"
	subscriptionrepository "github.com/Boateng555/smartmailbox/internal/subscription/repository"
)

func mustNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return node
}

func testConfig() config.Config {
	return config.Config{
		TrialDays:       7,
		GracePeriodDays: 3,
		BillingPeriod:   30 * 24 * time.Hour,
		SweepBatchSize:  50,
	}
}

func setupSubscriptionService(t *testing.T, fc *clock.FakeClock) (subscriptiondomain.Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	_ = db.Exec("PRAGMA busy_timeout = 5000").Error

	if err := db.AutoMigrate(&plandomain.Plan{}, &subscriptiondomain.Subscription{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node := mustNode(t)
	plansvc := planservice.NewService(planservice.ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fc,
		Repo:  planrepository.Provide(),
	})
	if err := plansvc.SeedDefaults(context.Background()); err != nil {
		t.Fatalf("seed plans: %v", err)
	}

	svc := NewService(ServiceParam{
		DB:      db,
		Log:     zap.NewNop(),
		Cfg:     testConfig(),
		GenID:   node,
		Clock:   fc,
		Repo:    subscriptionrepository.Provide(),
		Plansvc: plansvc,
	})
	return svc, db
}

func TestCreateTrialSevenDayWindow(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	fc := clock.NewFakeClock(now)
	svc, _ := setupSubscriptionService(t, fc)
	ctx := context.Background()

	customerID := mustNode(t).Generate()
	sub, err := svc.CreateTrial(ctx, subscriptiondomain.CreateTrialRequest{
		CustomerID: customerID.String(),
		Tier:       plandomain.TierBasic,
	})
	if err != nil {
		t.Fatalf("create trial: %v", err)
	}

	if sub.Status != subscriptiondomain.StatusTrial {
		t.Fatalf("expected trial status, got %s", sub.Status)
	}
	wantEnd := now.Add(7 * 24 * time.Hour)
	if sub.TrialEnd == nil || !sub.TrialEnd.Equal(wantEnd) {
		t.Fatalf("expected trial_end %v, got %v", wantEnd, sub.TrialEnd)
	}
	if !sub.CurrentPeriodEnd.Equal(wantEnd) {
		t.Fatalf("trial period should end with the trial, got %v", sub.CurrentPeriodEnd)
	}
	if !sub.IsActive(now) {
		t.Fatalf("fresh trial should be active")
	}

	again, err := svc.CreateTrial(ctx, subscriptiondomain.CreateTrialRequest{
		CustomerID: customerID.String(),
		Tier:       plandomain.TierPlus,
	})
	if err != nil {
		t.Fatalf("create trial again: %v", err)
	}
	if again.ID != sub.ID {
		t.Fatalf("second trial request must return the existing subscription")
	}
}

func TestSuspendOpensGraceThenActivateClears(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	fc := clock.NewFakeClock(now)
	svc, _ := setupSubscriptionService(t, fc)
	ctx := context.Background()

	customerID := mustNode(t).Generate()
	sub, err := svc.CreateTrial(ctx, subscriptiondomain.CreateTrialRequest{CustomerID: customerID.String()})
	if err != nil {
		t.Fatalf("create trial: %v", err)
	}

	if err := svc.Suspend(ctx, sub.ID, 3); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	got, err := svc.GetByID(ctx, sub.ID.String())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != subscriptiondomain.StatusSuspended {
		t.Fatalf("expected suspended, got %s", got.Status)
	}
	wantGrace := now.Add(3 * 24 * time.Hour)
	if got.GracePeriodEnd == nil || !got.GracePeriodEnd.Equal(wantGrace) {
		t.Fatalf("expected grace_period_end %v, got %v", wantGrace, got.GracePeriodEnd)
	}
	if !got.IsActive(now.Add(24 * time.Hour)) {
		t.Fatalf("suspended subscription inside grace should still be active")
	}

	if err := svc.Activate(ctx, sub.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}
	got, err = svc.GetByID(ctx, sub.ID.String())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != subscriptiondomain.StatusActive {
		t.Fatalf("expected active, got %s", got.Status)
	}
	if got.GracePeriodEnd != nil {
		t.Fatalf("activation must clear the grace window")
	}
}

func TestActivateIsIdempotent(t *testing.T) {
	fc := clock.NewFakeClock(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	svc, _ := setupSubscriptionService(t, fc)
	ctx := context.Background()

	sub, err := svc.CreateTrial(ctx, subscriptiondomain.CreateTrialRequest{CustomerID: mustNode(t).Generate().String()})
	if err != nil {
		t.Fatalf("create trial: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := svc.Activate(ctx, sub.ID); err != nil {
			t.Fatalf("activate %d: %v", i, err)
		}
	}
	got, err := svc.GetByID(ctx, sub.ID.String())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != subscriptiondomain.StatusActive {
		t.Fatalf("expected active, got %s", got.Status)
	}
}

func TestCancelIsTerminal(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	fc := clock.NewFakeClock(now)
	svc, _ := setupSubscriptionService(t, fc)
	ctx := context.Background()

	customerID := mustNode(t).Generate()
	sub, err := svc.CreateTrial(ctx, subscriptiondomain.CreateTrialRequest{CustomerID: customerID.String()})
	if err != nil {
		t.Fatalf("create trial: %v", err)
	}

	if err := svc.Cancel(ctx, sub.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	got, err := svc.GetByID(ctx, sub.ID.String())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != subscriptiondomain.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", got.Status)
	}
	if got.CancelledAt == nil || got.AutoRenew {
		t.Fatalf("cancel must stamp cancelled_at and clear auto_renew")
	}

	// Cancelled subscriptions drop out of customer lookups so the customer
	// can start over.
	if _, err := svc.GetByCustomerID(ctx, customerID); !errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound) {
		t.Fatalf("expected not found after cancel, got %v", err)
	}
}

func TestExpireClearsGrace(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	fc := clock.NewFakeClock(now)
	svc, _ := setupSubscriptionService(t, fc)
	ctx := context.Background()

	sub, err := svc.CreateTrial(ctx, subscriptiondomain.CreateTrialRequest{CustomerID: mustNode(t).Generate().String()})
	if err != nil {
		t.Fatalf("create trial: %v", err)
	}
	if err := svc.Suspend(ctx, sub.ID, 3); err != nil {
		t.Fatalf("suspend: %v", err)
	}

	fc.Advance(4 * 24 * time.Hour)
	if err := svc.Expire(ctx, sub.ID); err != nil {
		t.Fatalf("expire: %v", err)
	}
	got, err := svc.GetByID(ctx, sub.ID.String())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != subscriptiondomain.StatusExpired {
		t.Fatalf("expected expired, got %s", got.Status)
	}
	if got.GracePeriodEnd != nil || got.AutoRenew {
		t.Fatalf("expire must drop the grace window and auto_renew")
	}
	if got.IsActive(fc.Now()) {
		t.Fatalf("expired subscription must not be active")
	}
}

func TestRenewPeriodAdvancesBillingWindow(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	fc := clock.NewFakeClock(now)
	svc, _ := setupSubscriptionService(t, fc)
	ctx := context.Background()

	sub, err := svc.CreateTrial(ctx, subscriptiondomain.CreateTrialRequest{CustomerID: mustNode(t).Generate().String()})
	if err != nil {
		t.Fatalf("create trial: %v", err)
	}

	fc.Advance(7 * 24 * time.Hour)
	if err := svc.RenewPeriod(ctx, sub.ID); err != nil {
		t.Fatalf("renew: %v", err)
	}

	got, err := svc.GetByID(ctx, sub.ID.String())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.CurrentPeriodStart.Equal(fc.Now()) {
		t.Fatalf("expected period start %v, got %v", fc.Now(), got.CurrentPeriodStart)
	}
	if !got.CurrentPeriodEnd.Equal(fc.Now().Add(30 * 24 * time.Hour)) {
		t.Fatalf("expected 30 day period, got %v", got.CurrentPeriodEnd)
	}
}

func TestUpdatePeriodRejectsInvertedWindow(t *testing.T) {
	fc := clock.NewFakeClock(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	svc, _ := setupSubscriptionService(t, fc)
	ctx := context.Background()

	sub, err := svc.CreateTrial(ctx, subscriptiondomain.CreateTrialRequest{CustomerID: mustNode(t).Generate().String()})
	if err != nil {
		t.Fatalf("create trial: %v", err)
	}

	start := fc.Now()
	if err := svc.UpdatePeriod(ctx, sub.ID, start, start.Add(-time.Hour)); !errors.Is(err, subscriptiondomain.ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}
}
