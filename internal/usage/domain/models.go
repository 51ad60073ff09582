// Package domain contains per-device monthly usage metering models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// UsageRecord is one device's counters for one calendar month. Limits are
// snapshotted from the owning subscription's plan when the record is
// created, so a mid-month plan change never rewrites what "over the limit"
// meant for usage already counted. Overage charges, by contrast, are always
// recomputed from the plan's current unit prices.
type UsageRecord struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	DeviceID       snowflake.ID `gorm:"not null;uniqueIndex:idx_usage_device_month" json:"device_id"`
	SubscriptionID snowflake.ID `gorm:"not null;index" json:"subscription_id"`
	Year           int          `gorm:"not null;uniqueIndex:idx_usage_device_month" json:"year"`
	Month          int          `gorm:"not null;uniqueIndex:idx_usage_device_month" json:"month"`

	NotificationCount int     `gorm:"not null;default:0" json:"notification_count"`
	DataUsedMB        float64 `gorm:"not null;default:0" json:"data_used_mb"`

	// Snapshot of the plan limits at record creation. 0 means unlimited.
	NotificationLimit int `gorm:"not null" json:"notification_limit"`
	DataLimitMB       int `gorm:"not null" json:"data_limit_mb"`

	OverageNotifications int     `gorm:"not null;default:0" json:"overage_notifications"`
	OverageDataMB        float64 `gorm:"not null;default:0" json:"overage_data_mb"`
	OverageChargeCents   int64   `gorm:"not null;default:0" json:"overage_charge_cents"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (UsageRecord) TableName() string { return "usage_records" }

func (u UsageRecord) NotificationUsagePercent() float64 {
	if u.NotificationLimit == 0 {
		return 0
	}
	return float64(u.NotificationCount) / float64(u.NotificationLimit) * 100
}

func (u UsageRecord) DataUsagePercent() float64 {
	if u.DataLimitMB == 0 {
		return 0
	}
	return u.DataUsedMB / float64(u.DataLimitMB) * 100
}

// IsNearLimit reports whether either axis has crossed 80% of its snapshot
// limit.
func (u UsageRecord) IsNearLimit() bool {
	return u.NotificationUsagePercent() >= 80 || u.DataUsagePercent() >= 80
}

func (u UsageRecord) IsOverLimit() bool {
	return (u.NotificationCount > u.NotificationLimit && u.NotificationLimit > 0) ||
		(u.DataUsedMB > float64(u.DataLimitMB) && u.DataLimitMB > 0)
}
