package repository

import (
	"context"
	"errors"
	"strings"

	usagedomain "github.com/Boateng555/smartmailbox/internal/usage/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repository struct{}

func Provide() usagedomain.Repository {
	return &repository{}
}

func (r *repository) Insert(ctx context.Context, db *gorm.DB, record *usagedomain.UsageRecord) error {
	return db.WithContext(ctx).Create(record).Error
}

func (r *repository) FindMonth(ctx context.Context, db *gorm.DB, deviceID snowflake.ID, year, month int) (*usagedomain.UsageRecord, error) {
	var record usagedomain.UsageRecord
	err := db.WithContext(ctx).
		Where("device_id = ? AND year = ? AND month = ?", deviceID, year, month).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (r *repository) FindMonthForUpdate(ctx context.Context, db *gorm.DB, deviceID snowflake.ID, year, month int) (*usagedomain.UsageRecord, error) {
	suffix := ` FOR UPDATE`
	if strings.EqualFold(db.Dialector.Name(), "sqlite") {
		suffix = ""
	}
	var records []usagedomain.UsageRecord
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM usage_records WHERE device_id = ? AND year = ? AND month = ?`+suffix,
		deviceID,
		year,
		month,
	).Scan(&records).Error
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

func (r *repository) Update(ctx context.Context, db *gorm.DB, record *usagedomain.UsageRecord) error {
	return db.WithContext(ctx).Exec(
		`UPDATE usage_records
		 SET notification_count = ?, data_used_mb = ?,
		     overage_notifications = ?, overage_data_mb = ?, overage_charge_cents = ?,
		     updated_at = ?
		 WHERE id = ?`,
		record.NotificationCount,
		record.DataUsedMB,
		record.OverageNotifications,
		record.OverageDataMB,
		record.OverageChargeCents,
		record.UpdatedAt,
		record.ID,
	).Error
}
