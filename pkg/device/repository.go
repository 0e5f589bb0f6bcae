package device

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrDeviceNotFound = errors.New("device not found")

// CreateDeviceParams are the fields required to enroll a device.
type CreateDeviceParams struct {
	UserID    uuid.UUID
	Type      DeviceType
	Name      string
	Secret    string
	KeyData   []byte
	Confirmed bool
}

// Repository provides storage for second-factor enrollments.
type Repository interface {
	CreateDevice(ctx context.Context, params CreateDeviceParams) (Device, error)
	DeleteDevice(ctx context.Context, id uuid.UUID) error
	ConfirmDevice(ctx context.Context, id uuid.UUID) error

	// UpdateCounter stores the signature counter reported by a
	// hardware token after a successful authentication.
	UpdateCounter(ctx context.Context, id uuid.UUID, counter uint32) error

	// FindConfirmedByType returns the user's confirmed devices of the
	// given type. Unconfirmed enrollments never take part in
	// verification.
	FindConfirmedByType(ctx context.Context, userID uuid.UUID, deviceType DeviceType) ([]Device, error)
}
