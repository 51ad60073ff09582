// Package domain contains device lifecycle models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// LifecycleState tracks where a device sits in the ownership/billing
// lifecycle. Only active_subscription devices may perform billable work.
type LifecycleState string

const (
	LifecyclePreActivation      LifecycleState = "pre_activation"
	LifecycleActiveSubscription LifecycleState = "active_subscription"
	LifecycleSuspended          LifecycleState = "suspended"
	LifecycleReturned           LifecycleState = "returned"
	LifecycleDecommissioned     LifecycleState = "decommissioned"
)

// Status is the device's reported connectivity.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

type Device struct {
	ID             snowflake.ID   `gorm:"primaryKey" json:"id"`
	SerialNumber   string         `gorm:"type:text;not null;uniqueIndex" json:"serial_number"`
	OwnerID        *snowflake.ID  `gorm:"index" json:"owner_id,omitempty"`
	LifecycleState LifecycleState `gorm:"type:text;not null" json:"lifecycle_state"`
	Status         Status         `gorm:"type:text;not null" json:"status"`
	ActivatedAt    *time.Time     `json:"activated_at,omitempty"`
	LastSeenAt     *time.Time     `json:"last_seen_at,omitempty"`
	CreatedAt      time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Device) TableName() string { return "devices" }

func (d Device) HasOwner() bool { return d.OwnerID != nil && *d.OwnerID != 0 }
