package service

import (
	"context"
	"errors"
	"math"

	"github.com/Boateng555/smartmailbox/internal/clock"
	devicedomain "github.com/Boateng555/smartmailbox/internal/device/domain"
	plandomain "github.com/Boateng555/smartmailbox/internal/plan/domain"
	subscriptiondomain "github.com/Boateng555/smartmailbox/internal/subscription/domain"
	usagedomain "github.com/Boateng555/smartmailbox/internal/usage/domain"
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
	repo  usagedomain.Repository

	subsvc    subscriptiondomain.Service
	plansvc   plandomain.Service
	devicesvc devicedomain.Service
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  usagedomain.Repository

	Subsvc    subscriptiondomain.Service
	Plansvc   plandomain.Service
	Devicesvc devicedomain.Service
}

func NewService(p ServiceParam) usagedomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("usage.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,

		subsvc:    p.Subsvc,
		plansvc:   p.Plansvc,
		devicesvc: p.Devicesvc,
	}
}

func bytesToMB(b int64) float64 {
	return float64(b) / (1024 * 1024)
}

// CheckUsageLimits implements domain.Service. Advisory only: the
// authoritative check happens again inside CheckAndRecord's transaction.
func (s *Service) CheckUsageLimits(ctx context.Context, device devicedomain.Device, additionalBytes int64) (usagedomain.CheckResult, error) {
	denied, subscription, plan, err := s.gate(ctx, device)
	if err != nil {
		return usagedomain.CheckResult{}, err
	}
	if denied != "" {
		return usagedomain.CheckResult{Allowed: false, Reason: denied}, nil
	}

	var result usagedomain.CheckResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := s.resolveMonth(ctx, tx, device.ID, subscription, plan, false)
		if err != nil {
			return err
		}
		result = s.evaluate(record, additionalBytes)
		return nil
	})
	if err != nil {
		return usagedomain.CheckResult{}, err
	}
	return result, nil
}

// RecordNotification implements domain.Service.
func (s *Service) RecordNotification(ctx context.Context, device devicedomain.Device, dataBytes int64) (*usagedomain.UsageRecord, error) {
	if !device.HasOwner() {
		return nil, usagedomain.ErrInvalidDevice
	}

	subscription, plan, err := s.resolveSubscription(ctx, device)
	if err != nil {
		return nil, err
	}
	if subscription == nil {
		return nil, nil
	}

	var record *usagedomain.UsageRecord
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err = s.resolveMonth(ctx, tx, device.ID, subscription, plan, true)
		if err != nil {
			return err
		}
		return s.increment(ctx, tx, record, plan, dataBytes)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// CheckAndRecord implements domain.Service. The limit check and the
// increment share one transaction and the month row's lock, closing the
// window where two concurrent captures both pass the check.
func (s *Service) CheckAndRecord(ctx context.Context, device devicedomain.Device, dataBytes int64) (usagedomain.CheckResult, error) {
	denied, subscription, plan, err := s.gate(ctx, device)
	if err != nil {
		return usagedomain.CheckResult{}, err
	}
	if denied != "" {
		return usagedomain.CheckResult{Allowed: false, Reason: denied}, nil
	}

	var result usagedomain.CheckResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := s.resolveMonth(ctx, tx, device.ID, subscription, plan, true)
		if err != nil {
			return err
		}

		result = s.evaluate(record, dataBytes)
		if !result.Allowed {
			return nil
		}

		if err := s.increment(ctx, tx, record, plan, dataBytes); err != nil {
			return err
		}
		result.Record = record
		return nil
	})
	if err != nil {
		return usagedomain.CheckResult{}, err
	}
	return result, nil
}

func (s *Service) GetCurrentMonth(ctx context.Context, deviceID snowflake.ID) (*usagedomain.UsageRecord, error) {
	if deviceID == 0 {
		return nil, usagedomain.ErrInvalidDevice
	}
	now := s.clock.Now()
	return s.repo.FindMonth(ctx, s.db, deviceID, now.Year(), int(now.Month()))
}

// gate applies the entitlement checks that precede any usage accounting.
// A non-empty reason means denial; a missing subscription is a denial, not
// an error.
func (s *Service) gate(ctx context.Context, device devicedomain.Device) (string, *subscriptiondomain.Subscription, *plandomain.Plan, error) {
	if !device.HasOwner() {
		return usagedomain.ReasonDeviceNotActivated, nil, nil, nil
	}

	subscription, plan, err := s.resolveSubscription(ctx, device)
	if err != nil {
		return "", nil, nil, err
	}
	if subscription == nil {
		return usagedomain.ReasonNoSubscription, nil, nil, nil
	}

	canOperate, err := s.devicesvc.CanOperate(ctx, device)
	if err != nil {
		return "", nil, nil, err
	}
	if !canOperate {
		return usagedomain.ReasonSubscriptionNotActive, nil, nil, nil
	}
	return "", subscription, plan, nil
}

func (s *Service) resolveSubscription(ctx context.Context, device devicedomain.Device) (*subscriptiondomain.Subscription, *plandomain.Plan, error) {
	subscription, err := s.subsvc.GetByCustomerID(ctx, *device.OwnerID)
	if err != nil {
		if errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound) {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	plan, err := s.plansvc.GetByID(ctx, subscription.PlanID.String())
	if err != nil {
		return nil, nil, err
	}
	return &subscription, &plan, nil
}

// resolveMonth finds or lazily creates the (device, year, month) record,
// snapshotting the plan's limits at creation time. With forUpdate the row
// is locked for the remainder of the transaction.
func (s *Service) resolveMonth(
	ctx context.Context,
	tx *gorm.DB,
	deviceID snowflake.ID,
	subscription *subscriptiondomain.Subscription,
	plan *plandomain.Plan,
	forUpdate bool,
) (*usagedomain.UsageRecord, error) {
	now := s.clock.Now()
	year, month := now.Year(), int(now.Month())

	var record *usagedomain.UsageRecord
	var err error
	if forUpdate {
		record, err = s.repo.FindMonthForUpdate(ctx, tx, deviceID, year, month)
	} else {
		record, err = s.repo.FindMonth(ctx, tx, deviceID, year, month)
	}
	if err != nil {
		return nil, err
	}
	if record != nil {
		return record, nil
	}

	record = &usagedomain.UsageRecord{
		ID:                s.genID.Generate(),
		DeviceID:          deviceID,
		SubscriptionID:    subscription.ID,
		Year:              year,
		Month:             month,
		NotificationLimit: plan.NotificationLimit,
		DataLimitMB:       plan.DataLimitMB,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.Insert(ctx, tx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// evaluate checks one more notification of additionalBytes against the
// record's snapshot limits. A limit of 0 never denies on that axis.
func (s *Service) evaluate(record *usagedomain.UsageRecord, additionalBytes int64) usagedomain.CheckResult {
	if record.NotificationLimit > 0 && record.NotificationCount >= record.NotificationLimit {
		return usagedomain.CheckResult{Allowed: false, Reason: usagedomain.ReasonNotificationLimitReached, Record: record}
	}
	if record.DataLimitMB > 0 && record.DataUsedMB+bytesToMB(additionalBytes) > float64(record.DataLimitMB) {
		return usagedomain.CheckResult{Allowed: false, Reason: usagedomain.ReasonDataLimitReached, Record: record}
	}
	return usagedomain.CheckResult{Allowed: true, Reason: usagedomain.ReasonOK, Record: record}
}

// increment bumps the counters and recomputes overage. Unit prices come
// from the current plan, not the snapshot; the limits compared against are
// the snapshot's.
func (s *Service) increment(ctx context.Context, tx *gorm.DB, record *usagedomain.UsageRecord, plan *plandomain.Plan, dataBytes int64) error {
	wasNearLimit := record.IsNearLimit()

	record.NotificationCount++
	if dataBytes > 0 {
		record.DataUsedMB += bytesToMB(dataBytes)
	}

	if record.NotificationLimit > 0 && record.NotificationCount > record.NotificationLimit {
		record.OverageNotifications = record.NotificationCount - record.NotificationLimit
	}
	if record.DataLimitMB > 0 && record.DataUsedMB > float64(record.DataLimitMB) {
		record.OverageDataMB = record.DataUsedMB - float64(record.DataLimitMB)
	}

	record.OverageChargeCents = int64(record.OverageNotifications)*plan.OverageNotificationCents +
		int64(math.Round(record.OverageDataMB*float64(plan.OverageDataCentsPerMB)))

	record.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, tx, record); err != nil {
		return err
	}

	if !wasNearLimit && record.IsNearLimit() && !record.IsOverLimit() {
		s.log.Warn("device approaching usage limits",
			zap.String("device_id", record.DeviceID.String()),
			zap.Float64("notification_usage_percent", record.NotificationUsagePercent()),
			zap.Float64("data_usage_percent", record.DataUsagePercent()),
		)
	}
	return nil
}
