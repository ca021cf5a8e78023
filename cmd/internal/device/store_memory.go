package device

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is the in-memory Store used in development and tests.
type MemoryStore struct {
	mu      sync.Mutex
	devices map[string]Device // device id -> device
}

// NewMemoryStore constructs an empty in-memory device store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{devices: make(map[string]Device)}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) Upsert(ctx context.Context, d Device) (Device, bool, error) {
	if err := ctx.Err(); err != nil {
		return Device{}, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, existing := range m.devices {
		if existing.UserID == d.UserID && existing.TokenHash == d.TokenHash {
			existing.LastSeenAt = d.LastSeenAt
			existing.UserAgent = d.UserAgent
			existing.IP = d.IP
			m.devices[id] = existing
			return existing, false, nil
		}
	}

	m.devices[d.ID] = d
	return d, true, nil
}

func (m *MemoryStore) GetByID(ctx context.Context, deviceID string) (Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.devices[deviceID]
	if !ok {
		return Device{}, fmt.Errorf("device.GetByID: %w", ErrNotFound)
	}
	return d, nil
}

func (m *MemoryStore) GetByTokenHash(ctx context.Context, tokenHash string) (Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, d := range m.devices {
		if d.TokenHash == tokenHash {
			return d, nil
		}
	}
	return Device{}, fmt.Errorf("device.GetByTokenHash: %w", ErrNotFound)
}

func (m *MemoryStore) ListByUser(ctx context.Context, userID string) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Device
	for _, d := range m.devices {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeenAt.After(out[j].LastSeenAt) })
	return out, nil
}

func (m *MemoryStore) Delete(ctx context.Context, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.devices[deviceID]; !ok {
		return fmt.Errorf("device.Delete: %w", ErrNotFound)
	}
	delete(m.devices, deviceID)
	return nil
}

func (m *MemoryStore) DeleteByUser(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, d := range m.devices {
		if d.UserID == userID {
			delete(m.devices, id)
		}
	}
	return nil
}
