package api

import (
	"net/http"
	"strings"
	"time"

	"rollbook/cmd/identity"
	"rollbook/cmd/internal/auth"
	"rollbook/cmd/internal/device"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	RefreshToken string `json:"refresh_token"`
	UserID       string `json:"user_id"`
	Role         string `json:"role"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid request body")
		return
	}

	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "username and password are required")
		return
	}

	ua, err := h.users.GetUserAuthByUsername(r.Context(), username)
	if err != nil {
		if identity.IsNotFound(err) {
			// Burn comparable time so unknown usernames are not observable.
			_, _ = identity.VerifyPassword(req.Password, h.dummyHash)
			h.log.Info("auth.login.failed", "reason", "unknown_user")
			writeError(w, http.StatusUnauthorized, "bad_credentials", "invalid username or password")
			return
		}
		h.respondError(w, err)
		return
	}

	ok, err := identity.VerifyPassword(req.Password, ua.PasswordHash)
	if err != nil || !ok {
		h.log.Info("auth.login.failed", "reason", "bad_password", "user_id", ua.User.ID)
		writeError(w, http.StatusUnauthorized, "bad_credentials", "invalid username or password")
		return
	}

	res, err := h.users.CreateSession(r.Context(), identity.CreateSessionInput{
		UserID:    ua.User.ID,
		TTL:       h.sessionTTL,
		UserAgent: strPtr(r.UserAgent()),
		IP:        clientIP(r),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}

	// Device registration must never block or fail the login.
	h.devices.RegisterBestEffort(device.RegisterInput{
		UserID:    ua.User.ID,
		RawToken:  res.RefreshToken,
		UserAgent: r.UserAgent(),
		IP:        clientIP(r),
	})

	if h.recorder != nil {
		h.recorder.RecordAsync(ua.User.ID, "auth.login", "user", ua.User.ID, "")
	}

	h.log.Info("auth.login.ok", "user_id", ua.User.ID, "role", string(ua.User.Role))
	writeJSON(w, http.StatusOK, loginResponse{
		RefreshToken: res.RefreshToken,
		UserID:       ua.User.ID,
		Role:         string(ua.User.Role),
	})
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	// Body is optional; the bearer token is the fallback credential.
	_ = decodeJSON(w, r, maxBodyBytes, &req)

	tok := strings.TrimSpace(req.RefreshToken)
	if tok == "" {
		tok = auth.BearerToken(r)
	}
	if tok == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "no session token supplied")
		return
	}

	now := time.Now().UTC()

	u, sess, err := h.users.CurrentUser(r.Context(), tok, now)
	if err != nil {
		// Unknown token: logout is idempotent from the client's view.
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}

	// Best-effort device cleanup before killing the session.
	if err := h.devices.Revoke(r.Context(), u.ID, "", tok); err != nil {
		h.log.Warn("auth.logout.device_revoke_failed", "user_id", u.ID, "err", err)
	}

	if err := h.users.RevokeSession(r.Context(), sess.ID, now); err != nil {
		h.respondError(w, err)
		return
	}

	if h.recorder != nil {
		h.recorder.RecordAsync(u.ID, "auth.logout", "user", u.ID, "")
	}

	h.log.Info("auth.logout.ok", "user_id", u.ID)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type meResponse struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	sc, err := auth.RequireSession(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meResponse{
		UserID:   sc.UserID,
		Username: sc.Username,
		Role:     string(sc.Role),
	})
}
