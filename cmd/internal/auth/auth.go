// Package auth resolves the caller's identity from the request's bearer
// refresh token and enforces role requirements on route trees.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"rollbook/cmd/identity"
)

var (
	// ErrAuthRequired means no usable session accompanied the request.
	ErrAuthRequired = errors.New("authentication required")
	// ErrWrongRole means the caller is authenticated but lacks the required role.
	ErrWrongRole = errors.New("insufficient role")
)

// SessionContext is the resolved caller identity attached to a request.
type SessionContext struct {
	UserID    string
	Username  string
	Role      identity.Role
	SessionID string
}

type ctxKey struct{}

// WithSession returns a context carrying the resolved session.
func WithSession(ctx context.Context, sc SessionContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, sc)
}

// FromContext extracts the resolved session, if any.
func FromContext(ctx context.Context) (SessionContext, bool) {
	sc, ok := ctx.Value(ctxKey{}).(SessionContext)
	return sc, ok
}

// Resolver turns bearer tokens into SessionContexts.
//
// It uses the scoped trust level for identity resolution; the privileged
// store is only consulted to refresh the role claim, because role changes
// must take effect on the next request, not at next login.
type Resolver struct {
	Scoped     identity.ScopedStore
	Privileged identity.PrivilegedStore
	Now        func() time.Time
}

func (r *Resolver) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

// Resolve authenticates a plain refresh token. Unknown, revoked, and
// expired tokens all map to ErrAuthRequired; callers cannot distinguish them.
func (r *Resolver) Resolve(ctx context.Context, refreshToken string) (SessionContext, error) {
	if r == nil || r.Scoped == nil {
		return SessionContext{}, ErrAuthRequired
	}
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return SessionContext{}, ErrAuthRequired
	}

	now := r.now()

	u, sess, err := r.Scoped.CurrentUser(ctx, refreshToken, now)
	if err != nil {
		if identity.IsNotActive(err) || identity.IsNotFound(err) {
			return SessionContext{}, ErrAuthRequired
		}
		return SessionContext{}, err
	}

	role := u.Role
	if r.Privileged != nil {
		if fresh, err := r.Privileged.RoleByUserID(ctx, u.ID); err == nil {
			role = fresh
		}
		// last_used_at is bookkeeping; a failed bump never fails the request.
		_ = r.Privileged.TouchSessionLastUsed(ctx, sess.ID, now)
	}

	return SessionContext{
		UserID:    u.ID,
		Username:  u.Username,
		Role:      role,
		SessionID: sess.ID,
	}, nil
}

// BearerToken extracts the bearer credential from an HTTP request.
// Returns "" when the header is missing or not a Bearer scheme.
func BearerToken(req *http.Request) string {
	h := strings.TrimSpace(req.Header.Get("Authorization"))
	if h == "" {
		return ""
	}
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

// RequireRole checks the context's session against a required role.
// Distinguishes "not logged in" (ErrAuthRequired) from "logged in but
// wrong tier" (ErrWrongRole) so handlers can map 401 vs 403.
func RequireRole(ctx context.Context, want identity.Role) (SessionContext, error) {
	sc, ok := FromContext(ctx)
	if !ok {
		return SessionContext{}, ErrAuthRequired
	}
	if sc.Role != want {
		return SessionContext{}, ErrWrongRole
	}
	return sc, nil
}

// RequireSession checks only that the caller is authenticated.
func RequireSession(ctx context.Context) (SessionContext, error) {
	sc, ok := FromContext(ctx)
	if !ok {
		return SessionContext{}, ErrAuthRequired
	}
	return sc, nil
}
