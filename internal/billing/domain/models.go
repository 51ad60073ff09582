// Package domain contains the payment audit log and sweep result models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// PaymentRecord is an append-only audit row. The provider invoice id is
// unique so redelivered webhook events dedupe instead of double-recording.
type PaymentRecord struct {
	ID             snowflake.ID  `gorm:"primaryKey" json:"id"`
	SubscriptionID snowflake.ID  `gorm:"not null;index" json:"subscription_id"`
	AmountCents    int64         `gorm:"not null" json:"amount_cents"`
	Currency       string        `gorm:"type:text;not null;default:USD" json:"currency"`
	Status         PaymentStatus `gorm:"type:text;not null" json:"status"`

	ProviderInvoiceID       *string `gorm:"type:text;uniqueIndex" json:"provider_invoice_id,omitempty"`
	ProviderPaymentIntentID *string `gorm:"type:text" json:"provider_payment_intent_id,omitempty"`
	ProviderChargeID        *string `gorm:"type:text" json:"provider_charge_id,omitempty"`

	Description   string     `gorm:"type:text" json:"description"`
	FailureReason string     `gorm:"type:text" json:"failure_reason,omitempty"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
	CreatedAt     time.Time  `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (PaymentRecord) TableName() string { return "payment_records" }

// SweepSummary aggregates one pass of the monthly billing sweep.
type SweepSummary struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// SuspensionSweepSummary aggregates one pass of the grace-period sweep.
type SuspensionSweepSummary struct {
	Processed        int `json:"processed"`
	DevicesSuspended int `json:"devices_suspended"`
	Failed           int `json:"failed"`
}
