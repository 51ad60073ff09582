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
	devicedomain "github.com/Boateng555/smartmailbox/internal/device/domain"
	devicerepository "github.com/Boateng555/smartmailbox/internal/device/repository"
	plandomain "github.com/Boateng555/smartmailbox/internal/plan/domain"
	planrepository "github.com/Boateng555/smartmailbox/internal/plan/repository"
	planservice "github.com/Boateng555/smartmailbox/internal/plan/service"
	subscriptiondomain "github.com/Boateng555/smartmailbox/internal/subscription/domain"
	subscriptionrepository "github.com/Boateng555/smartmailbox/internal/subscription/repository"
	subscriptionservice "github.com/Boateng555/smartmailbox/internal/subscription/service"
)

func mustNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return node
}

type deviceFixture struct {
	devices devicedomain.Service
	subs    subscriptiondomain.Service
	node    *snowflake.Node
}

func setupDeviceService(t *testing.T, fc *clock.FakeClock) deviceFixture {
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

	if err := db.AutoMigrate(&plandomain.Plan{}, &subscriptiondomain.Subscription{}, &devicedomain.Device{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node := mustNode(t)
	cfg := config.Config{
		TrialDays:       7,
		GracePeriodDays: 3,
		BillingPeriod:   30 * 24 * time.Hour,
		SweepBatchSize:  50,
	}

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

	subsvc := subscriptionservice.NewService(subscriptionservice.ServiceParam{
		DB:      db,
		Log:     zap.NewNop(),
		Cfg:     cfg,
		GenID:   node,
		Clock:   fc,
		Repo:    subscriptionrepository.Provide(),
		Plansvc: plansvc,
	})

	devsvc := NewService(ServiceParam{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  fc,
		Repo:   devicerepository.Provide(),
		Subsvc: subsvc,
	})

	return deviceFixture{devices: devsvc, subs: subsvc, node: node}
}

func TestRegisterRejectsDuplicateSerial(t *testing.T) {
	fc := clock.NewFakeClock(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	f := setupDeviceService(t, fc)
	ctx := context.Background()

	if _, err := f.devices.Register(ctx, devicedomain.RegisterRequest{SerialNumber: "SM-0001"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := f.devices.Register(ctx, devicedomain.RegisterRequest{SerialNumber: "SM-0001"}); !errors.Is(err, devicedomain.ErrDeviceExists) {
		t.Fatalf("expected ErrDeviceExists, got %v", err)
	}
}

func TestCanOperateFollowsSubscriptionWindow(t *testing.T) {
	fc := clock.NewFakeClock(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	f := setupDeviceService(t, fc)
	ctx := context.Background()

	device, err := f.devices.Register(ctx, devicedomain.RegisterRequest{SerialNumber: "SM-0002"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	// Unclaimed device never operates.
	if ok, err := f.devices.CanOperate(ctx, device); err != nil || ok {
		t.Fatalf("expected unclaimed device denied, got ok=%v err=%v", ok, err)
	}

	ownerID := f.node.Generate()
	if _, err := f.subs.CreateTrial(ctx, subscriptiondomain.CreateTrialRequest{CustomerID: ownerID.String()}); err != nil {
		t.Fatalf("create trial: %v", err)
	}
	if err := f.devices.Activate(ctx, device.ID, ownerID); err != nil {
		t.Fatalf("activate: %v", err)
	}

	device, err = f.devices.GetByID(ctx, device.ID.String())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok, err := f.devices.CanOperate(ctx, device); err != nil || !ok {
		t.Fatalf("expected trial device allowed, got ok=%v err=%v", ok, err)
	}

	// Trial over, status not yet corrected by any sweep.
	fc.Advance(8 * 24 * time.Hour)
	if ok, err := f.devices.CanOperate(ctx, device); err != nil || ok {
		t.Fatalf("expected device denied after trial lapse, got ok=%v err=%v", ok, err)
	}
}

func TestHeartbeatBypassesEntitlement(t *testing.T) {
	fc := clock.NewFakeClock(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	f := setupDeviceService(t, fc)
	ctx := context.Background()

	device, err := f.devices.Register(ctx, devicedomain.RegisterRequest{SerialNumber: "SM-0003"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := f.devices.Suspend(ctx, device.ID); err != nil {
		t.Fatalf("suspend: %v", err)
	}

	if err := f.devices.Heartbeat(ctx, device.ID); err != nil {
		t.Fatalf("heartbeat on suspended device: %v", err)
	}
	got, err := f.devices.GetByID(ctx, device.ID.String())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != devicedomain.StatusOnline || got.LastSeenAt == nil {
		t.Fatalf("heartbeat must mark the device online and stamp last_seen_at")
	}
	if got.LifecycleState != devicedomain.LifecycleSuspended {
		t.Fatalf("heartbeat must not change the lifecycle state")
	}
}

func TestActivateRejectsDecommissioned(t *testing.T) {
	fc := clock.NewFakeClock(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	f := setupDeviceService(t, fc)
	ctx := context.Background()

	device, err := f.devices.Register(ctx, devicedomain.RegisterRequest{SerialNumber: "SM-0004"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := f.devices.Decommission(ctx, device.ID); err != nil {
		t.Fatalf("decommission: %v", err)
	}

	if err := f.devices.Activate(ctx, device.ID, f.node.Generate()); !errors.Is(err, devicedomain.ErrDeviceDecommissioned) {
		t.Fatalf("expected ErrDeviceDecommissioned, got %v", err)
	}
}

func TestSuspendActiveForOwnerIsIdempotent(t *testing.T) {
	fc := clock.NewFakeClock(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	f := setupDeviceService(t, fc)
	ctx := context.Background()

	ownerID := f.node.Generate()
	for i := 0; i < 2; i++ {
		device, err := f.devices.Register(ctx, devicedomain.RegisterRequest{SerialNumber: fmt.Sprintf("SM-01%02d", i)})
		if err != nil {
			t.Fatalf("register: %v", err)
		}
		if err := f.devices.Activate(ctx, device.ID, ownerID); err != nil {
			t.Fatalf("activate: %v", err)
		}
	}

	suspended, err := f.devices.SuspendActiveForOwner(ctx, ownerID)
	if err != nil {
		t.Fatalf("suspend for owner: %v", err)
	}
	if suspended != 2 {
		t.Fatalf("expected 2 devices suspended, got %d", suspended)
	}

	suspended, err = f.devices.SuspendActiveForOwner(ctx, ownerID)
	if err != nil {
		t.Fatalf("suspend for owner again: %v", err)
	}
	if suspended != 0 {
		t.Fatalf("second sweep must be a no-op, suspended %d", suspended)
	}
}
