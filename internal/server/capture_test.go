package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	billingdomain "github.com/Boateng555/smartmailbox/internal/billing/domain"
	"github.com/Boateng555/smartmailbox/internal/billing/provider"
	billingrepository "github.com/Boateng555/smartmailbox/internal/billing/repository"
	billingservice "github.com/Boateng555/smartmailbox/internal/billing/service"
	"github.com/Boateng555/smartmailbox/internal/clock"
	"github.com/Boateng555/smartmailbox/internal/config"
	devicedomain "github.com/Boateng555/smartmailbox/internal/device/domain"
	devicerepository "github.com/Boateng555/smartmailbox/internal/device/repository"
	deviceservice "github.com/Boateng555/smartmailbox/internal/device/service"
	"github.com/Boateng555/smartmailbox/internal/metrics"
	plandomain "github.com/Boateng555/smartmailbox/internal/plan/domain"
	planrepository "github.com/Boateng555/smartmailbox/internal/plan/repository"
	planservice "github.com/Boateng555/smartmailbox/internal/plan/service"
	"github.com/Boateng555/smartmailbox/internal/scheduler"
	subscriptiondomain "github.com/Boateng555/smartmailbox/internal/subscription/domain"
	subscriptionrepository "github.com/Boateng555/smartmailbox/internal/subscription/repository"
	subscriptionservice "github.com/Boateng555/smartmailbox/internal/subscription/service"
	usagedomain "github.com/Boateng555/smartmailbox/internal/usage/domain"
	usagerepository "github.com/Boateng555/smartmailbox/internal/usage/repository"
	usageservice "github.com/Boateng555/smartmailbox/internal/usage/service"
)

var testMetrics = metrics.New()

type noopProvider struct{}

func (noopProvider) ChargeSubscription(ctx context.Context, providerCustomerID, providerSubscriptionID string, amountCents int64, description string) (provider.ChargeResult, error) {
	return provider.ChargeResult{Paid: true, AmountPaidCents: amountCents}, nil
}

func (noopProvider) CancelSubscription(ctx context.Context, providerSubscriptionID string) error {
	return nil
}

type serverFixture struct {
	engine  *gin.Engine
	db      *gorm.DB
	node    *snowflake.Node
	clock   *clock.FakeClock
	subs    subscriptiondomain.Service
	devices devicedomain.Service
}

func setupServerFixture(t *testing.T, fc *clock.FakeClock) serverFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

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

	if err := db.AutoMigrate(
		&plandomain.Plan{},
		&subscriptiondomain.Subscription{},
		&devicedomain.Device{},
		&usagedomain.UsageRecord{},
		&billingdomain.PaymentRecord{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	cfg := config.Config{
		HTTPAddr:        ":0",
		TrialDays:       7,
		GracePeriodDays: 3,
		BillingPeriod:   30 * 24 * time.Hour,
		SweepInterval:   24 * time.Hour,
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

	devsvc := deviceservice.NewService(deviceservice.ServiceParam{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  fc,
		Repo:   devicerepository.Provide(),
		Subsvc: subsvc,
	})

	usagesvc := usageservice.NewService(usageservice.ServiceParam{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     fc,
		Repo:      usagerepository.Provide(),
		Subsvc:    subsvc,
		Plansvc:   plansvc,
		Devicesvc: devsvc,
	})

	billingsvc := billingservice.NewService(billingservice.ServiceParam{
		DB:       db,
		Log:      zap.NewNop(),
		Cfg:      cfg,
		GenID:    node,
		Clock:    fc,
		Repo:     billingrepository.Provide(),
		Subsvc:   subsvc,
		Subrepo:  subscriptionrepository.Provide(),
		Plansvc:  plansvc,
		Devsvc:   devsvc,
		Provider: noopProvider{},
		Metrics:  testMetrics,
	})

	engine := NewEngine(cfg)
	NewServer(ServerParams{
		Gin:             engine,
		Cfg:             cfg,
		DB:              db,
		Log:             zap.NewNop(),
		Plansvc:         plansvc,
		SubscriptionSvc: subsvc,
		Devicesvc:       devsvc,
		Usagesvc:        usagesvc,
		BillingSvc:      billingsvc,
		Metrics:         testMetrics,
		Scheduler:       scheduler.New(cfg, zap.NewNop(), billingsvc),
	})

	return serverFixture{
		engine:  engine,
		db:      db,
		node:    node,
		clock:   fc,
		subs:    subsvc,
		devices: devsvc,
	}
}

func (f serverFixture) claimDevice(t *testing.T, serial string) devicedomain.Device {
	t.Helper()
	ctx := context.Background()

	device, err := f.devices.Register(ctx, devicedomain.RegisterRequest{SerialNumber: serial})
	if err != nil {
		t.Fatalf("register: %v", err)
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
		t.Fatalf("get device: %v", err)
	}
	return device
}

func (f serverFixture) postCapture(t *testing.T, deviceID snowflake.ID, dataBytes int64) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(map[string]int64{"data_bytes": dataBytes})
	req := httptest.NewRequest(http.MethodPost, "/api/devices/"+deviceID.String()+"/capture", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func TestCaptureAccepted(t *testing.T) {
	fc := clock.NewFakeClock(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	f := setupServerFixture(t, fc)

	device := f.claimDevice(t, "SM-3000")
	w := f.postCapture(t, device.ID, 2*1024*1024)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Allowed bool                    `json:"allowed"`
		Usage   usagedomain.UsageRecord `json:"usage"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Allowed || resp.Usage.NotificationCount != 1 {
		t.Fatalf("unexpected response: %s", w.Body.String())
	}
}

func TestCapturePaymentRequiredAfterTrialLapse(t *testing.T) {
	fc := clock.NewFakeClock(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	f := setupServerFixture(t, fc)

	device := f.claimDevice(t, "SM-3001")
	fc.Advance(8 * 24 * time.Hour)

	w := f.postCapture(t, device.ID, 1024)
	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Reason != usagedomain.ReasonSubscriptionNotActive {
		t.Fatalf("expected %q, got %q", usagedomain.ReasonSubscriptionNotActive, resp.Reason)
	}
}

func TestCaptureRateLimitedAtNotificationCap(t *testing.T) {
	fc := clock.NewFakeClock(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	f := setupServerFixture(t, fc)

	device := f.claimDevice(t, "SM-3002")

	var sub subscriptiondomain.Subscription
	if err := f.db.First(&sub).Error; err != nil {
		t.Fatalf("load subscription: %v", err)
	}
	now := fc.Now()
	record := usagedomain.UsageRecord{
		ID:                f.node.Generate(),
		DeviceID:          device.ID,
		SubscriptionID:    sub.ID,
		Year:              now.Year(),
		Month:             int(now.Month()),
		NotificationCount: 100,
		NotificationLimit: 100,
		DataLimitMB:       1024,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := f.db.Create(&record).Error; err != nil {
		t.Fatalf("seed usage: %v", err)
	}

	w := f.postCapture(t, device.ID, 1024)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Reason != usagedomain.ReasonNotificationLimitReached {
		t.Fatalf("expected %q, got %q", usagedomain.ReasonNotificationLimitReached, resp.Reason)
	}
}

func TestCaptureForbiddenForUnclaimedDevice(t *testing.T) {
	fc := clock.NewFakeClock(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	f := setupServerFixture(t, fc)

	device, err := f.devices.Register(context.Background(), devicedomain.RegisterRequest{SerialNumber: "SM-3003"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	w := f.postCapture(t, device.ID, 1024)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", w.Code, w.Body.String())
	}
}

func TestUnsignedWebhookAcceptedWithoutSecret(t *testing.T) {
	fc := clock.NewFakeClock(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	f := setupServerFixture(t, fc)

	payload := []byte(`{"type":"customer.created","data":{"object":{}}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestListPlansSeeded(t *testing.T) {
	fc := clock.NewFakeClock(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	f := setupServerFixture(t, fc)

	req := httptest.NewRequest(http.MethodGet, "/api/plans", nil)
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Plans []plandomain.Plan `json:"plans"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Plans) != 3 {
		t.Fatalf("expected 3 plans, got %d", len(resp.Plans))
	}
}
