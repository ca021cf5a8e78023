package identity

import (
	"context"
	"net"
	"time"
)

// Role is the coarse permission tier gating entire route trees.
type Role string

const (
	// RoleAdmin may manage users, candidates, voters, and edit requests.
	RoleAdmin Role = "admin"
	// RoleCandidate is a restricted actor who proposes edits instead of applying them.
	RoleCandidate Role = "candidate"
)

// ParseRole validates a raw role string. Unknown values return false.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleAdmin, RoleCandidate:
		return Role(s), true
	default:
		return "", false
	}
}

// User is the canonical security principal.
// Username uniqueness is case-sensitive exact match, enforced at write time.
type User struct {
	ID        string
	Username  string
	Role      Role
	CreatedAt time.Time
}

// UserAuth bundles a user with its stored password hash for login verification.
type UserAuth struct {
	User         User
	PasswordHash string
}

// Session represents a refresh-token based session.
// RefreshTokenHash is stored server-side; the plain refresh token is never stored.
type Session struct {
	ID               string
	UserID           string
	RefreshTokenHash string

	CreatedAt  time.Time
	LastUsedAt *time.Time
	ExpiresAt  time.Time
	RevokedAt  *time.Time

	UserAgent *string
	IP        *net.IP
}

// CreateUserInput describes an admin user-creation request.
type CreateUserInput struct {
	Username string
	Password string
	Role     Role
	Now      time.Time
}

// CreateSessionInput creates a session for an authenticated user.
// TTL must be positive; if not, the store applies a safe default.
type CreateSessionInput struct {
	UserID    string
	TTL       time.Duration
	UserAgent *string
	IP        *net.IP
	Now       time.Time
}

// CreateSessionResult returns the created session and the *plain* refresh token.
// The refresh token must be shown to the client exactly once and never logged.
type CreateSessionResult struct {
	Session      Session
	RefreshToken string
}

// ScopedStore is the caller-scoped trust level: every read is keyed by a
// session the caller already proved ownership of. Components that only
// need "who am I" declare this interface, not PrivilegedStore.
type ScopedStore interface {
	// CurrentUser resolves the active session behind a plain refresh token
	// and returns the owning user. Returns ErrNotActive for unknown,
	// expired, or revoked tokens.
	CurrentUser(ctx context.Context, refreshToken string, now time.Time) (User, Session, error)
}

// PrivilegedStore is the authorization-bypassing trust level, used only by
// role resolution, admin operations, and bootstrap/rollback paths.
type PrivilegedStore interface {
	ScopedStore

	// CreateUser creates a user and its credentials as a single unit.
	// If the credential write fails the user row must not survive
	// (compensating rollback), so no orphaned principal can exist.
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)

	// DeleteUser removes a user. Sessions and devices referencing the
	// user are removed with it.
	DeleteUser(ctx context.Context, userID string) error

	GetUserByID(ctx context.Context, userID string) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)

	// GetUserAuthByUsername loads a user together with its password hash.
	// Username match is case-sensitive exact.
	GetUserAuthByUsername(ctx context.Context, username string) (UserAuth, error)

	// RoleByUserID is the privileged role lookup used by route guards.
	RoleByUserID(ctx context.Context, userID string) (Role, error)

	ListUsers(ctx context.Context) ([]User, error)

	CreateSession(ctx context.Context, in CreateSessionInput) (CreateSessionResult, error)

	// RevokeSession revokes a session by setting revoked_at (idempotent).
	RevokeSession(ctx context.Context, sessionID string, now time.Time) error

	// RevokeAllSessions revokes all sessions for a user (idempotent).
	RevokeAllSessions(ctx context.Context, userID string, now time.Time) error

	// TouchSessionLastUsed bumps last_used_at if the session is active.
	TouchSessionLastUsed(ctx context.Context, sessionID string, now time.Time) error
}
