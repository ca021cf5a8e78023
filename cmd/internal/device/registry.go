package device

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"rollbook/cmd/identity"
	"rollbook/cmd/security/token"
)

// Device is one tracked logged-in client.
type Device struct {
	ID        string
	UserID    string
	TokenHash string

	Label     string
	UserAgent string
	IP        *net.IP

	CreatedAt  time.Time
	LastSeenAt time.Time
}

// Store is the persistence contract for device rows.
type Store interface {
	// Upsert inserts a device or, when (UserID, TokenHash) already exists,
	// bumps last_seen_at and refreshes agent/IP on the existing row.
	// Returns the stored row and whether it was newly created.
	Upsert(ctx context.Context, d Device) (Device, bool, error)

	GetByID(ctx context.Context, deviceID string) (Device, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (Device, error)

	// ListByUser returns only the given user's devices, newest activity first.
	ListByUser(ctx context.Context, userID string) ([]Device, error)

	Delete(ctx context.Context, deviceID string) error
	DeleteByUser(ctx context.Context, userID string) error
}

// RegisterInput carries everything needed to record a logged-in client.
type RegisterInput struct {
	UserID     string
	RawToken   string
	UserAgent  string
	IP         *net.IP
	DeviceName string // optional explicit label overriding agent derivation
	Now        time.Time
}

// Registry implements register/list/revoke over a Store.
type Registry struct {
	store Store
	log   *slog.Logger
	now   func() time.Time
}

// NewRegistry constructs a Registry. log may be nil.
func NewRegistry(store Store, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{store: store, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// Register records (or re-touches) a device for the given user and token.
// Re-registering the same (user, token) is idempotent: one row, bumped
// last_seen_at, same id returned.
func (r *Registry) Register(ctx context.Context, in RegisterInput) (string, error) {
	const op = "device.Register"

	if strings.TrimSpace(in.UserID) == "" {
		return "", fmt.Errorf("%s: %w: missing user_id", op, ErrInvalidInput)
	}
	if strings.TrimSpace(in.RawToken) == "" {
		return "", fmt.Errorf("%s: %w: missing token", op, ErrInvalidInput)
	}

	now := in.Now
	if now.IsZero() {
		now = r.now()
	}

	label := strings.TrimSpace(in.DeviceName)
	if label == "" {
		label = LabelFromUserAgent(in.UserAgent)
	}

	id, err := identity.NewULID(now)
	if err != nil {
		return "", err
	}

	d := Device{
		ID:         id,
		UserID:     in.UserID,
		TokenHash:  token.HashRefreshTokenHex(in.RawToken),
		Label:      label,
		UserAgent:  strings.TrimSpace(in.UserAgent),
		IP:         in.IP,
		CreatedAt:  now,
		LastSeenAt: now,
	}

	stored, created, err := r.store.Upsert(ctx, d)
	if err != nil {
		return "", err
	}

	if created {
		r.log.Info("device.registered", "user_id", in.UserID, "device_id", stored.ID, "label", stored.Label)
	} else {
		r.log.Debug("device.touched", "user_id", in.UserID, "device_id", stored.ID)
	}

	return stored.ID, nil
}

// RegisterBestEffort runs Register in the background with its own timeout.
// Failures are logged, never returned; login must not block on this.
func (r *Registry) RegisterBestEffort(in RegisterInput) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if _, err := r.Register(ctx, in); err != nil {
			r.log.Warn("device.register.failed", "user_id", in.UserID, "err", err)
		}
	}()
}

// List returns the caller's devices only. The userID comes from the resolved
// session, never from client input.
func (r *Registry) List(ctx context.Context, userID string) ([]Device, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("device.List: %w: missing user_id", ErrInvalidInput)
	}
	return r.store.ListByUser(ctx, userID)
}

// Revoke deletes one device identified either by id or by re-hashing a raw
// token. A device owned by someone else yields ErrForbidden, not ErrNotFound,
// and the row is left intact.
func (r *Registry) Revoke(ctx context.Context, callerUserID, deviceID, rawToken string) error {
	const op = "device.Revoke"

	if strings.TrimSpace(callerUserID) == "" {
		return fmt.Errorf("%s: %w: missing user_id", op, ErrInvalidInput)
	}

	var (
		d   Device
		err error
	)
	switch {
	case strings.TrimSpace(deviceID) != "":
		d, err = r.store.GetByID(ctx, deviceID)
	case strings.TrimSpace(rawToken) != "":
		d, err = r.store.GetByTokenHash(ctx, token.HashRefreshTokenHex(rawToken))
	default:
		return fmt.Errorf("%s: %w: need device_id or token", op, ErrInvalidInput)
	}
	if err != nil {
		return err
	}

	if d.UserID != callerUserID {
		r.log.Warn("device.revoke.denied", "user_id", callerUserID, "device_id", d.ID)
		return fmt.Errorf("%s: %w", op, ErrForbidden)
	}

	if err := r.store.Delete(ctx, d.ID); err != nil {
		return err
	}

	r.log.Info("device.revoked", "user_id", callerUserID, "device_id", d.ID)
	return nil
}

// RevokeAll removes every device row for a user. Used when an admin deletes
// the user or force-logs-out all of their clients.
func (r *Registry) RevokeAll(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("device.RevokeAll: %w: missing user_id", ErrInvalidInput)
	}
	return r.store.DeleteByUser(ctx, userID)
}
