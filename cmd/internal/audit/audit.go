// Package audit records who did what to which record. Writes are
// best-effort: a failed audit insert is reported to the log, never to the
// caller whose operation succeeded.
package audit

import (
	"context"
	"log/slog"
	"time"

	"rollbook/cmd/identity"
)

// Entry is one activity-log row.
type Entry struct {
	ID         string
	ActorID    string
	Action     string
	TargetType string
	TargetID   string
	Detail     string
	CreatedAt  time.Time
}

// Store persists audit entries.
type Store interface {
	Insert(ctx context.Context, e Entry) error
	// List returns the newest entries first, at most limit rows.
	List(ctx context.Context, limit int) ([]Entry, error)
}

// Recorder writes audit entries without ever failing its caller.
type Recorder struct {
	store Store
	log   *slog.Logger
	now   func() time.Time
}

// NewRecorder constructs a Recorder. log may be nil.
func NewRecorder(store Store, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{store: store, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// Record inserts an entry synchronously but swallows failures.
func (r *Recorder) Record(ctx context.Context, actorID, action, targetType, targetID, detail string) {
	if r == nil || r.store == nil {
		return
	}

	now := r.now()
	id, err := identity.NewULID(now)
	if err != nil {
		r.log.Warn("audit.record.failed", "action", action, "err", err)
		return
	}

	e := Entry{
		ID:         id,
		ActorID:    actorID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Detail:     detail,
		CreatedAt:  now,
	}
	if err := r.store.Insert(ctx, e); err != nil {
		r.log.Warn("audit.record.failed", "action", action, "target_id", targetID, "err", err)
	}
}

// RecordAsync runs Record in the background with its own timeout.
func (r *Recorder) RecordAsync(actorID, action, targetType, targetID, detail string) {
	if r == nil || r.store == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		r.Record(ctx, actorID, action, targetType, targetID, detail)
	}()
}

// List exposes the stored trail for the admin activity view.
func (r *Recorder) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return r.store.List(ctx, limit)
}
