package device

import (
	"context"
	"errors"
	"testing"
	"time"
)

const chromeWindowsUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

func TestLabelFromUserAgent(t *testing.T) {
	t.Parallel()

	cases := []struct {
		ua   string
		want string
	}{
		{chromeWindowsUA, "Chrome on Windows"},
		{"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) Gecko/20100101 Firefox/126.0", "Firefox on macOS"},
		{"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 Chrome/124.0.0.0 Safari/537.36 Edg/124.0", "Edge on Linux"},
		{"Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) Version/17.4 Mobile/15E148 Safari/604.1", "Safari on iOS"},
		{"curl/8.5.0", "Unknown Browser on Unknown OS"},
		{"", "Unknown Browser on Unknown OS"},
	}

	for _, tc := range cases {
		if got := LabelFromUserAgent(tc.ua); got != tc.want {
			t.Fatalf("LabelFromUserAgent(%q) = %q, want %q", tc.ua, got, tc.want)
		}
	}
}

func TestRegistry_Register_Idempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	reg := NewRegistry(store, nil)

	t0 := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	id1, err := reg.Register(ctx, RegisterInput{
		UserID: "user-a", RawToken: "tok-1", UserAgent: chromeWindowsUA, Now: t0,
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	// Same (user, token) again: same row, same id, bumped last_seen_at.
	id2, err := reg.Register(ctx, RegisterInput{
		UserID: "user-a", RawToken: "tok-1", UserAgent: chromeWindowsUA, Now: t0.Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("Register (repeat): %v", err)
	}
	if id1 != id2 {
		t.Fatalf("repeat registration created a new device: %s vs %s", id1, id2)
	}

	devices, err := reg.List(ctx, "user-a")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("expected exactly one device row, got %d", len(devices))
	}
	if !devices[0].LastSeenAt.Equal(t0.Add(time.Minute)) {
		t.Fatalf("last_seen_at not bumped: %v", devices[0].LastSeenAt)
	}
	if devices[0].Label != "Chrome on Windows" {
		t.Fatalf("unexpected label %q", devices[0].Label)
	}

	// A different token is a second device.
	if _, err := reg.Register(ctx, RegisterInput{
		UserID: "user-a", RawToken: "tok-2", UserAgent: chromeWindowsUA, Now: t0,
	}); err != nil {
		t.Fatalf("Register (second token): %v", err)
	}
	devices, _ = reg.List(ctx, "user-a")
	if len(devices) != 2 {
		t.Fatalf("expected two devices, got %d", len(devices))
	}
}

func TestRegistry_Register_ExplicitName(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg := NewRegistry(NewMemoryStore(), nil)

	id, err := reg.Register(ctx, RegisterInput{
		UserID: "user-a", RawToken: "tok-1", UserAgent: chromeWindowsUA, DeviceName: "office laptop",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	devices, _ := reg.List(ctx, "user-a")
	if len(devices) != 1 || devices[0].ID != id || devices[0].Label != "office laptop" {
		t.Fatalf("explicit name not honored: %+v", devices)
	}
}

func TestRegistry_List_OwnerScoped(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg := NewRegistry(NewMemoryStore(), nil)

	mustRegister(t, reg, "user-a", "tok-a")
	mustRegister(t, reg, "user-b", "tok-b")

	devices, err := reg.List(ctx, "user-a")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	for _, d := range devices {
		if d.UserID != "user-a" {
			t.Fatalf("foreign device leaked into listing: %+v", d)
		}
	}
	if len(devices) != 1 {
		t.Fatalf("expected 1 device for user-a, got %d", len(devices))
	}
}

func TestRegistry_Revoke_CrossOwnerForbidden(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg := NewRegistry(NewMemoryStore(), nil)

	victimDevice := mustRegister(t, reg, "user-a", "tok-a")

	// user-b tries to revoke user-a's device by id.
	err := reg.Revoke(ctx, "user-b", victimDevice, "")
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	// The victim's device is intact.
	devices, _ := reg.List(ctx, "user-a")
	if len(devices) != 1 {
		t.Fatalf("victim device was removed")
	}

	// And by raw token too.
	if err := reg.Revoke(ctx, "user-b", "", "tok-a"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden via token, got %v", err)
	}
}

func TestRegistry_Revoke_ByIDAndToken(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg := NewRegistry(NewMemoryStore(), nil)

	id := mustRegister(t, reg, "user-a", "tok-a")
	mustRegister(t, reg, "user-a", "tok-b")

	if err := reg.Revoke(ctx, "user-a", id, ""); err != nil {
		t.Fatalf("Revoke by id: %v", err)
	}
	if err := reg.Revoke(ctx, "user-a", "", "tok-b"); err != nil {
		t.Fatalf("Revoke by token: %v", err)
	}

	devices, _ := reg.List(ctx, "user-a")
	if len(devices) != 0 {
		t.Fatalf("expected no devices after revokes, got %d", len(devices))
	}

	if err := reg.Revoke(ctx, "user-a", id, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound revoking twice, got %v", err)
	}
}

func TestRegistry_Revoke_MissingSelector(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(NewMemoryStore(), nil)
	if err := reg.Revoke(context.Background(), "user-a", "", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func mustRegister(t *testing.T, reg *Registry, userID, tok string) string {
	t.Helper()
	id, err := reg.Register(context.Background(), RegisterInput{
		UserID: userID, RawToken: tok, UserAgent: chromeWindowsUA,
	})
	if err != nil {
		t.Fatalf("Register(%s): %v", userID, err)
	}
	return id
}
