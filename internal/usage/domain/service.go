package domain

import (
	"context"
	"errors"

	devicedomain "github.com/Boateng555/smartmailbox/internal/device/domain"
	"github.com/bwmarrin/snowflake"
)

// Denial reasons returned to device clients. These are ordinary return
// values, not errors.
const (
	ReasonOK                       = "OK"
	ReasonDeviceNotActivated       = "Device not activated"
	ReasonSubscriptionNotActive    = "Subscription not active"
	ReasonNoSubscription           = "No subscription found"
	ReasonNotificationLimitReached = "Notification limit reached"
	ReasonDataLimitReached         = "Data limit reached"
)

// CheckResult carries the gate decision plus the month's counters so
// clients can back off intelligently.
type CheckResult struct {
	Allowed bool         `json:"allowed"`
	Reason  string       `json:"reason"`
	Record  *UsageRecord `json:"record,omitempty"`
}

type Service interface {
	// CheckUsageLimits is the advisory pre-flight check: it resolves the
	// current month's record (creating it with snapshot limits if absent)
	// and reports whether one more notification of additionalBytes would
	// fit. It reserves nothing.
	CheckUsageLimits(ctx context.Context, device devicedomain.Device, additionalBytes int64) (CheckResult, error)

	// RecordNotification increments the month's counters and recomputes
	// overage using the plan's current unit prices.
	RecordNotification(ctx context.Context, device devicedomain.Device, dataBytes int64) (*UsageRecord, error)

	// CheckAndRecord performs the limit check and the increment inside one
	// transaction holding the month row's lock, so two concurrent captures
	// cannot both pass the check before either increments.
	CheckAndRecord(ctx context.Context, device devicedomain.Device, dataBytes int64) (CheckResult, error)

	// GetCurrentMonth returns the device's record for the current month,
	// if any.
	GetCurrentMonth(ctx context.Context, deviceID snowflake.ID) (*UsageRecord, error)
}

var (
	ErrInvalidDevice = errors.New("invalid_device")
)
