package repository

import (
	"context"
	"errors"
	"strings"

	devicedomain "github.com/Boateng555/smartmailbox/internal/device/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repository struct{}

func Provide() devicedomain.Repository {
	return &repository{}
}

func (r *repository) Insert(ctx context.Context, db *gorm.DB, device *devicedomain.Device) error {
	return db.WithContext(ctx).Create(device).Error
}

func (r *repository) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*devicedomain.Device, error) {
	return r.findOne(ctx, db, "id = ?", id)
}

func (r *repository) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*devicedomain.Device, error) {
	suffix := ` FOR UPDATE`
	if strings.EqualFold(db.Dialector.Name(), "sqlite") {
		suffix = ""
	}
	var devices []devicedomain.Device
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM devices WHERE id = ?`+suffix,
		id,
	).Scan(&devices).Error
	if err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		return nil, nil
	}
	return &devices[0], nil
}

func (r *repository) FindBySerialNumber(ctx context.Context, db *gorm.DB, serialNumber string) (*devicedomain.Device, error) {
	return r.findOne(ctx, db, "serial_number = ?", serialNumber)
}

func (r *repository) FindActiveByOwner(ctx context.Context, db *gorm.DB, ownerID snowflake.ID) ([]devicedomain.Device, error) {
	var devices []devicedomain.Device
	err := db.WithContext(ctx).
		Where("owner_id = ? AND lifecycle_state = ?", ownerID, devicedomain.LifecycleActiveSubscription).
		Find(&devices).Error
	return devices, err
}

func (r *repository) Update(ctx context.Context, db *gorm.DB, device *devicedomain.Device) error {
	return db.WithContext(ctx).Exec(
		`UPDATE devices
		 SET owner_id = ?, lifecycle_state = ?, status = ?, activated_at = ?, last_seen_at = ?, updated_at = ?
		 WHERE id = ?`,
		device.OwnerID,
		device.LifecycleState,
		device.Status,
		device.ActivatedAt,
		device.LastSeenAt,
		device.UpdatedAt,
		device.ID,
	).Error
}

func (r *repository) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*devicedomain.Device, error) {
	var device devicedomain.Device
	err := db.WithContext(ctx).Where(query, args...).First(&device).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &device, nil
}
