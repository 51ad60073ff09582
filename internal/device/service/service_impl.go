package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Boateng555/smartmailbox/internal/clock"
	devicedomain "github.com/Boateng555/smartmailbox/internal/device/domain"
	subscriptiondomain "github.com/Boateng555/smartmailbox/internal/subscription/domain"
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
	repo  devicedomain.Repository

	subsvc subscriptiondomain.Service
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  devicedomain.Repository

	Subsvc subscriptiondomain.Service
}

func NewService(p ServiceParam) devicedomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("device.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,

		subsvc: p.Subsvc,
	}
}

func (s *Service) Register(ctx context.Context, req devicedomain.RegisterRequest) (devicedomain.Device, error) {
	serial := strings.TrimSpace(req.SerialNumber)
	if serial == "" {
		return devicedomain.Device{}, devicedomain.ErrInvalidSerialNumber
	}

	existing, err := s.repo.FindBySerialNumber(ctx, s.db, serial)
	if err != nil {
		return devicedomain.Device{}, err
	}
	if existing != nil {
		return devicedomain.Device{}, devicedomain.ErrDeviceExists
	}

	now := s.clock.Now()
	device := devicedomain.Device{
		ID:             s.genID.Generate(),
		SerialNumber:   serial,
		LifecycleState: devicedomain.LifecyclePreActivation,
		Status:         devicedomain.StatusOffline,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Insert(ctx, s.db, &device); err != nil {
		return devicedomain.Device{}, err
	}

	s.log.Info("registered device", zap.String("serial_number", serial))
	return device, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (devicedomain.Device, error) {
	deviceID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || deviceID == 0 {
		return devicedomain.Device{}, devicedomain.ErrInvalidDevice
	}

	device, err := s.repo.FindByID(ctx, s.db, deviceID)
	if err != nil {
		return devicedomain.Device{}, err
	}
	if device == nil {
		return devicedomain.Device{}, devicedomain.ErrDeviceNotFound
	}
	return *device, nil
}

func (s *Service) GetBySerialNumber(ctx context.Context, serialNumber string) (devicedomain.Device, error) {
	serial := strings.TrimSpace(serialNumber)
	if serial == "" {
		return devicedomain.Device{}, devicedomain.ErrInvalidSerialNumber
	}

	device, err := s.repo.FindBySerialNumber(ctx, s.db, serial)
	if err != nil {
		return devicedomain.Device{}, err
	}
	if device == nil {
		return devicedomain.Device{}, devicedomain.ErrDeviceNotFound
	}
	return *device, nil
}

// Activate implements domain.Service.
func (s *Service) Activate(ctx context.Context, id snowflake.ID, ownerID snowflake.ID) error {
	if ownerID == 0 {
		return devicedomain.ErrInvalidOwner
	}
	return s.update(ctx, id, func(device *devicedomain.Device, now time.Time) error {
		if device.LifecycleState == devicedomain.LifecycleDecommissioned {
			return devicedomain.ErrDeviceDecommissioned
		}
		device.OwnerID = &ownerID
		device.LifecycleState = devicedomain.LifecycleActiveSubscription
		device.ActivatedAt = &now
		return nil
	})
}

func (s *Service) Suspend(ctx context.Context, id snowflake.ID) error {
	return s.update(ctx, id, func(device *devicedomain.Device, now time.Time) error {
		device.LifecycleState = devicedomain.LifecycleSuspended
		return nil
	})
}

func (s *Service) Resume(ctx context.Context, id snowflake.ID) error {
	return s.update(ctx, id, func(device *devicedomain.Device, now time.Time) error {
		if !device.HasOwner() {
			return devicedomain.ErrInvalidOwner
		}
		device.LifecycleState = devicedomain.LifecycleActiveSubscription
		return nil
	})
}

func (s *Service) Decommission(ctx context.Context, id snowflake.ID) error {
	return s.update(ctx, id, func(device *devicedomain.Device, now time.Time) error {
		device.LifecycleState = devicedomain.LifecycleDecommissioned
		device.Status = devicedomain.StatusOffline
		return nil
	})
}

func (s *Service) Heartbeat(ctx context.Context, id snowflake.ID) error {
	return s.update(ctx, id, func(device *devicedomain.Device, now time.Time) error {
		device.Status = devicedomain.StatusOnline
		device.LastSeenAt = &now
		return nil
	})
}

// CanOperate implements the entitlement gate. A missing subscription means
// not entitled, never an error.
func (s *Service) CanOperate(ctx context.Context, device devicedomain.Device) (bool, error) {
	if !device.HasOwner() {
		return false, nil
	}
	if device.LifecycleState != devicedomain.LifecycleActiveSubscription {
		return false, nil
	}

	subscription, err := s.subsvc.GetByCustomerID(ctx, *device.OwnerID)
	if err != nil {
		if errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound) {
			return false, nil
		}
		return false, err
	}
	return subscription.IsActive(s.clock.Now()), nil
}

// SuspendActiveForOwner implements domain.Service. Already-suspended
// devices are untouched, which makes the grace-period sweep idempotent.
func (s *Service) SuspendActiveForOwner(ctx context.Context, ownerID snowflake.ID) (int, error) {
	if ownerID == 0 {
		return 0, devicedomain.ErrInvalidOwner
	}

	devices, err := s.repo.FindActiveByOwner(ctx, s.db, ownerID)
	if err != nil {
		return 0, err
	}

	suspended := 0
	for _, device := range devices {
		if err := s.Suspend(ctx, device.ID); err != nil {
			s.log.Warn("failed to suspend device",
				zap.String("device_id", device.ID.String()),
				zap.Error(err),
			)
			continue
		}
		suspended++
		s.log.Info("suspended device after grace period",
			zap.String("device_id", device.ID.String()),
			zap.String("serial_number", device.SerialNumber),
		)
	}
	return suspended, nil
}

func (s *Service) update(ctx context.Context, id snowflake.ID, apply func(*devicedomain.Device, time.Time) error) error {
	if id == 0 {
		return devicedomain.ErrInvalidDevice
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		device, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if device == nil {
			return devicedomain.ErrDeviceNotFound
		}

		now := s.clock.Now()
		if err := apply(device, now); err != nil {
			return err
		}
		device.UpdatedAt = now

		return s.repo.Update(ctx, tx, device)
	})
}
