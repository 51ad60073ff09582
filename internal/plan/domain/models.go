// Package domain contains the subscription plan catalog models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Tier identifies a plan level.
type Tier string

const (
	TierBasic   Tier = "basic"
	TierPlus    Tier = "plus"
	TierPremium Tier = "premium"
)

// Plan is a subscription tier with monthly caps and overage pricing.
// A limit of 0 means unlimited on that axis.
type Plan struct {
	ID                       snowflake.ID `gorm:"primaryKey" json:"id"`
	Name                     string       `gorm:"type:text;not null;uniqueIndex" json:"name"`
	Tier                     Tier         `gorm:"type:text;not null;uniqueIndex" json:"tier"`
	PriceMonthlyCents        int64        `gorm:"not null" json:"price_monthly_cents"`
	NotificationLimit        int          `gorm:"not null" json:"notification_limit"`
	DataLimitMB              int          `gorm:"not null" json:"data_limit_mb"`
	OverageNotificationCents int64        `gorm:"not null" json:"overage_notification_cents"`
	OverageDataCentsPerMB    int64        `gorm:"not null" json:"overage_data_cents_per_mb"`
	Active                   bool         `gorm:"not null;default:true" json:"active"`
	CreatedAt                time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt                time.Time    `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Plan) TableName() string { return "plans" }

func (p Plan) IsUnlimitedNotifications() bool { return p.NotificationLimit == 0 }

func (p Plan) IsUnlimitedData() bool { return p.DataLimitMB == 0 }
