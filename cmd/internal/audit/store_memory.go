package audit

import (
	"context"
	"sync"
)

// MemoryStore is the in-memory audit store used in development and tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemoryStore constructs an empty in-memory audit store.
func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) Insert(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *MemoryStore) List(ctx context.Context, limit int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.entries)
	if limit > n {
		limit = n
	}
	out := make([]Entry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}
