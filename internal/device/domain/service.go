package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type RegisterRequest struct {
	SerialNumber string `json:"serial_number"`
}

type Service interface {
	Register(ctx context.Context, req RegisterRequest) (Device, error)
	GetByID(ctx context.Context, id string) (Device, error)
	GetBySerialNumber(ctx context.Context, serialNumber string) (Device, error)

	// Activate claims the device for a customer and starts its billable
	// lifecycle.
	Activate(ctx context.Context, id snowflake.ID, ownerID snowflake.ID) error
	Suspend(ctx context.Context, id snowflake.ID) error
	// Resume reverts to active_subscription, but only when an owner is set.
	Resume(ctx context.Context, id snowflake.ID) error
	// Decommission is terminal and forces the device offline.
	Decommission(ctx context.Context, id snowflake.ID) error
	Heartbeat(ctx context.Context, id snowflake.ID) error

	// CanOperate is the entitlement gate: owner present, device in
	// active_subscription, and the owner's subscription active per the
	// derived predicate. Gates billable work only, never heartbeats.
	CanOperate(ctx context.Context, device Device) (bool, error)

	// SuspendActiveForOwner demotes all of an owner's active_subscription
	// devices, returning how many were demoted.
	SuspendActiveForOwner(ctx context.Context, ownerID snowflake.ID) (int, error)
}

var (
	ErrInvalidDevice        = errors.New("invalid_device")
	ErrInvalidSerialNumber  = errors.New("invalid_serial_number")
	ErrInvalidOwner         = errors.New("invalid_owner")
	ErrDeviceNotFound       = errors.New("device_not_found")
	ErrDeviceExists         = errors.New("device_exists")
	ErrDeviceDecommissioned = errors.New("device_decommissioned")
)
