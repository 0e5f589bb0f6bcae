package device

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryRepository implements Repository using in-memory storage
type InMemoryRepository struct {
	mu      sync.RWMutex
	devices map[uuid.UUID]Device
}

// NewInMemoryRepository creates a new in-memory device repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		devices: make(map[uuid.UUID]Device),
	}
}

func (r *InMemoryRepository) CreateDevice(ctx context.Context, params CreateDeviceParams) (Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d := Device{
		ID:        uuid.New(),
		UserID:    params.UserID,
		Type:      params.Type,
		Name:      params.Name,
		Secret:    params.Secret,
		KeyData:   append([]byte(nil), params.KeyData...),
		Confirmed: params.Confirmed,
		CreatedAt: time.Now().UTC(),
	}
	r.devices[d.ID] = d
	return d, nil
}

func (r *InMemoryRepository) DeleteDevice(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.devices[id]; !ok {
		return ErrDeviceNotFound
	}
	delete(r.devices, id)
	return nil
}

func (r *InMemoryRepository) ConfirmDevice(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[id]
	if !ok {
		return ErrDeviceNotFound
	}
	d.Confirmed = true
	r.devices[id] = d
	return nil
}

func (r *InMemoryRepository) UpdateCounter(ctx context.Context, id uuid.UUID, counter uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[id]
	if !ok {
		return ErrDeviceNotFound
	}
	d.Counter = counter
	r.devices[id] = d
	return nil
}

func (r *InMemoryRepository) FindConfirmedByType(ctx context.Context, userID uuid.UUID, deviceType DeviceType) ([]Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var devices []Device
	for _, d := range r.devices {
		if d.UserID == userID && d.Type == deviceType && d.Confirmed {
			devices = append(devices, d)
		}
	}
	return devices, nil
}
