// Package domain contains the customer subscription ledger models and
// state machine predicates.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Status represents lifecycle states for a subscription.
type Status string

const (
	StatusTrial     Status = "trial"
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Subscription captures a customer's billing agreement. Exactly one
// non-cancelled subscription exists per customer at a time.
type Subscription struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	CustomerID snowflake.ID `gorm:"not null;index" json:"customer_id"`
	PlanID     snowflake.ID `gorm:"not null;index" json:"plan_id"`
	Status     Status       `gorm:"type:text;not null" json:"status"`

	TrialStart         *time.Time `json:"trial_start,omitempty"`
	TrialEnd           *time.Time `json:"trial_end,omitempty"`
	CurrentPeriodStart time.Time  `gorm:"not null" json:"current_period_start"`
	CurrentPeriodEnd   time.Time  `gorm:"not null" json:"current_period_end"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	GracePeriodEnd     *time.Time `json:"grace_period_end,omitempty"`
	AutoRenew          bool       `gorm:"not null;default:true" json:"auto_renew"`

	ProviderCustomerID      *string `gorm:"type:text" json:"provider_customer_id,omitempty"`
	ProviderSubscriptionID  *string `gorm:"type:text;uniqueIndex" json:"provider_subscription_id,omitempty"`
	ProviderPaymentMethodID *string `gorm:"type:text" json:"provider_payment_method_id,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// IsInTrial reports whether the trial window still covers now. The stored
// status may be stale between sweeps, so the window is always rechecked.
func (s Subscription) IsInTrial(now time.Time) bool {
	if s.TrialEnd == nil {
		return false
	}
	return s.Status == StatusTrial && now.Before(*s.TrialEnd)
}

// IsInGracePeriod reports whether a suspended subscription is still inside
// its post-failure grace window.
func (s Subscription) IsInGracePeriod(now time.Time) bool {
	if s.GracePeriodEnd == nil {
		return false
	}
	return s.Status == StatusSuspended && now.Before(*s.GracePeriodEnd)
}

// IsActive is the single authoritative entitlement predicate. Callers must
// use this instead of inspecting Status directly: trial and grace windows
// are time-bounded overrides of a status that is only corrected by sweeps.
func (s Subscription) IsActive(now time.Time) bool {
	return s.Status == StatusActive || s.IsInTrial(now) || s.IsInGracePeriod(now)
}

// DaysUntilRenewal floors at zero, never negative.
func (s Subscription) DaysUntilRenewal(now time.Time) int {
	days := int(s.CurrentPeriodEnd.Sub(now).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// HasPaymentMethod reports whether a provider payment method is on file.
func (s Subscription) HasPaymentMethod() bool {
	return s.ProviderPaymentMethodID != nil && *s.ProviderPaymentMethodID != ""
}
