package identity

import (
	"context"
	"testing"
	"time"
)

func memUser(t *testing.T, m *MemoryStore, username string, role Role) User {
	t.Helper()
	u, err := m.CreateUser(context.Background(), CreateUserInput{
		Username: username,
		Password: "test-password-123",
		Role:     role,
	})
	if err != nil {
		t.Fatalf("CreateUser(%q): %v", username, err)
	}
	return u
}

func TestMemoryStore_CreateUser_UsernameConflict(t *testing.T) {
	t.Parallel()

	m := NewMemoryStore()
	memUser(t, m, "hana", RoleAdmin)

	_, err := m.CreateUser(context.Background(), CreateUserInput{
		Username: "hana",
		Password: "another-password",
		Role:     RoleCandidate,
	})
	if !IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}

	// Case-sensitive usernames: "Hana" is a different principal.
	if _, err := m.CreateUser(context.Background(), CreateUserInput{
		Username: "Hana",
		Password: "another-password",
		Role:     RoleCandidate,
	}); err != nil {
		t.Fatalf("case-variant username should be allowed, got %v", err)
	}
}

func TestMemoryStore_SessionLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewMemoryStore()
	u := memUser(t, m, "candidate-1", RoleCandidate)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	res, err := m.CreateSession(ctx, CreateSessionInput{UserID: u.ID, TTL: time.Hour, Now: now})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if res.RefreshToken == "" {
		t.Fatalf("expected plain refresh token")
	}
	if res.Session.RefreshTokenHash == res.RefreshToken {
		t.Fatalf("refresh token stored unhashed")
	}

	gotU, gotS, err := m.CurrentUser(ctx, res.RefreshToken, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("CurrentUser: %v", err)
	}
	if gotU.ID != u.ID || gotS.ID != res.Session.ID {
		t.Fatalf("CurrentUser resolved wrong identity: %+v %+v", gotU, gotS)
	}

	// Expired token is not active.
	if _, _, err := m.CurrentUser(ctx, res.RefreshToken, now.Add(2*time.Hour)); !IsNotActive(err) {
		t.Fatalf("expected ErrNotActive after expiry, got %v", err)
	}

	// Revocation is idempotent and kills the session.
	if err := m.RevokeSession(ctx, res.Session.ID, now.Add(time.Minute)); err != nil {
		t.Fatalf("RevokeSession: %v", err)
	}
	if err := m.RevokeSession(ctx, res.Session.ID, now.Add(2*time.Minute)); err != nil {
		t.Fatalf("RevokeSession twice: %v", err)
	}
	if _, _, err := m.CurrentUser(ctx, res.RefreshToken, now.Add(2*time.Minute)); !IsNotActive(err) {
		t.Fatalf("expected ErrNotActive after revoke, got %v", err)
	}
}

func TestMemoryStore_CurrentUser_UnknownToken(t *testing.T) {
	t.Parallel()

	m := NewMemoryStore()
	if _, _, err := m.CurrentUser(context.Background(), "no-such-token", time.Now()); !IsNotActive(err) {
		t.Fatalf("expected ErrNotActive, got %v", err)
	}
}

func TestMemoryStore_RevokeAllSessions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewMemoryStore()
	u := memUser(t, m, "candidate-2", RoleCandidate)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	var tokens []string
	for i := 0; i < 3; i++ {
		res, err := m.CreateSession(ctx, CreateSessionInput{UserID: u.ID, TTL: time.Hour, Now: now})
		if err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
		tokens = append(tokens, res.RefreshToken)
	}

	if err := m.RevokeAllSessions(ctx, u.ID, now.Add(time.Minute)); err != nil {
		t.Fatalf("RevokeAllSessions: %v", err)
	}
	for _, tok := range tokens {
		if _, _, err := m.CurrentUser(ctx, tok, now.Add(2*time.Minute)); !IsNotActive(err) {
			t.Fatalf("session survived RevokeAllSessions: %v", err)
		}
	}
}

func TestMemoryStore_DeleteUser_CascadesSessions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewMemoryStore()
	u := memUser(t, m, "to-delete", RoleCandidate)

	res, err := m.CreateSession(ctx, CreateSessionInput{UserID: u.ID, TTL: time.Hour})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if err := m.DeleteUser(ctx, u.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if _, _, err := m.CurrentUser(ctx, res.RefreshToken, time.Now()); !IsNotActive(err) {
		t.Fatalf("session survived user deletion: %v", err)
	}
	if err := m.DeleteUser(ctx, u.ID); !IsNotFound(err) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestMemoryStore_TouchSessionLastUsed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewMemoryStore()
	u := memUser(t, m, "toucher", RoleCandidate)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	res, err := m.CreateSession(ctx, CreateSessionInput{UserID: u.ID, TTL: time.Hour, Now: now})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	later := now.Add(10 * time.Minute)
	if err := m.TouchSessionLastUsed(ctx, res.Session.ID, later); err != nil {
		t.Fatalf("TouchSessionLastUsed: %v", err)
	}

	_, s, err := m.CurrentUser(ctx, res.RefreshToken, later)
	if err != nil {
		t.Fatalf("CurrentUser: %v", err)
	}
	if s.LastUsedAt == nil || !s.LastUsedAt.Equal(later) {
		t.Fatalf("last_used_at not bumped: %v", s.LastUsedAt)
	}

	if err := m.TouchSessionLastUsed(ctx, res.Session.ID, now.Add(2*time.Hour)); !IsNotActive(err) {
		t.Fatalf("expected ErrNotActive touching expired session, got %v", err)
	}
}
