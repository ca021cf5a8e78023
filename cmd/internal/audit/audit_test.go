package audit

import (
	"context"
	"errors"
	"testing"
)

type failingStore struct{}

func (failingStore) Insert(ctx context.Context, e Entry) error { return errors.New("store down") }
func (failingStore) List(ctx context.Context, limit int) ([]Entry, error) {
	return nil, errors.New("store down")
}

func TestRecorder_Record(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	rec := NewRecorder(store, nil)

	rec.Record(ctx, "admin-1", "edit_request.approved", "edit_request", "req-1", "phone")
	rec.Record(ctx, "admin-1", "edit_request.rejected", "edit_request", "req-2", "")

	entries, err := rec.List(ctx, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	// Newest first.
	if entries[0].TargetID != "req-2" {
		t.Fatalf("expected newest entry first, got %+v", entries[0])
	}
	if entries[1].Action != "edit_request.approved" || entries[1].ID == "" {
		t.Fatalf("unexpected entry: %+v", entries[1])
	}
}

func TestRecorder_SwallowsStoreFailure(t *testing.T) {
	t.Parallel()

	rec := NewRecorder(failingStore{}, nil)
	// Must not panic or propagate anything.
	rec.Record(context.Background(), "a", "b", "c", "d", "")
}

func TestRecorder_List_ClampsLimit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	rec := NewRecorder(store, nil)

	for i := 0; i < 5; i++ {
		rec.Record(ctx, "a", "act", "t", "id", "")
	}

	entries, err := rec.List(ctx, -1)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("expected 5 entries with clamped limit, got %d", len(entries))
	}
}
