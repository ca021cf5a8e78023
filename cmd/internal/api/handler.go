// Package api exposes the HTTP surface: auth, device lifecycle, candidate
// operations, and the admin portal endpoints.
package api

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	"rollbook/cmd/identity"
	"rollbook/cmd/internal/audit"
	"rollbook/cmd/internal/auth"
	"rollbook/cmd/internal/device"
	"rollbook/cmd/internal/editflow"
	"rollbook/cmd/internal/feed"
	"rollbook/cmd/internal/roster"
)

const maxBodyBytes = 64 * 1024

// Handler wires HTTP endpoints to the domain services.
type Handler struct {
	log *slog.Logger

	users    identity.PrivilegedStore
	resolver *auth.Resolver

	devices  *device.Registry
	roster   *roster.Service
	workflow *editflow.Workflow
	recorder *audit.Recorder
	feedWS   *feed.WSHandler

	sessionTTL time.Duration

	// dummyHash equalizes login timing for unknown usernames.
	dummyHash string
}

// Deps carries the Handler's dependencies.
type Deps struct {
	Log      *slog.Logger
	Users    identity.PrivilegedStore
	Resolver *auth.Resolver
	Devices  *device.Registry
	Roster   *roster.Service
	Workflow *editflow.Workflow
	Recorder *audit.Recorder
	FeedWS   *feed.WSHandler

	SessionTTL time.Duration
}

// NewHandler constructs the HTTP handler set.
func NewHandler(d Deps) (*Handler, error) {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.SessionTTL <= 0 {
		d.SessionTTL = 30 * 24 * time.Hour
	}

	dummy, err := identity.HashPassword("rollbook-login-timing-pad", identity.DefaultArgon2idParams())
	if err != nil {
		return nil, err
	}

	return &Handler{
		log:        d.Log,
		users:      d.Users,
		resolver:   d.Resolver,
		devices:    d.Devices,
		roster:     d.Roster,
		workflow:   d.Workflow,
		recorder:   d.Recorder,
		feedWS:     d.FeedWS,
		sessionTTL: d.SessionTTL,
		dummyHash:  dummy,
	}, nil
}

// Register mounts every route on the mux. The auth middleware wraps the mux
// upstream, so handlers only consult the request context.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/login", h.handleLogin)
	mux.HandleFunc("POST /auth/logout", h.handleLogout)
	mux.HandleFunc("GET /me", h.handleMe)

	mux.HandleFunc("POST /device/register", h.handleDeviceRegister)
	mux.HandleFunc("POST /device/revoke", h.handleDeviceRevoke)
	mux.HandleFunc("GET /devices", h.handleDeviceList)

	mux.HandleFunc("GET /candidate/voters", h.handleCandidateVoterList)
	mux.HandleFunc("POST /candidate/voters/{id}/edit-request", h.handleEditRequestSubmit)
	mux.HandleFunc("GET /candidate/voters/{id}/edit-request", h.handleEditRequestListMine)
	mux.HandleFunc("PUT /candidate/voters/{id}/will-vote", h.handleWillVote)
	mux.HandleFunc("PATCH /candidate/voters/{id}", h.handleScopedUpdate)

	mux.HandleFunc("GET /admin/edit-requests", h.handleEditRequestListAll)
	mux.HandleFunc("POST /admin/edit-requests/{id}", h.handleEditRequestApprove)
	mux.HandleFunc("DELETE /admin/edit-requests/{id}", h.handleEditRequestReject)
	if h.feedWS != nil {
		mux.Handle("GET /admin/edit-requests/ws", h.feedWS)
	}

	mux.HandleFunc("POST /admin/users", h.handleUserCreate)
	mux.HandleFunc("GET /admin/users", h.handleUserList)
	mux.HandleFunc("DELETE /admin/users/{id}", h.handleUserDelete)

	mux.HandleFunc("POST /admin/voters", h.handleVoterCreate)
	mux.HandleFunc("GET /admin/voters", h.handleVoterList)
	mux.HandleFunc("PUT /admin/voters/{id}", h.handleVoterUpdate)
	mux.HandleFunc("DELETE /admin/voters/{id}", h.handleVoterDelete)

	mux.HandleFunc("GET /admin/candidates", h.handleCandidateList)
	mux.HandleFunc("POST /admin/candidates", h.handleCandidateCreate)
	mux.HandleFunc("DELETE /admin/candidates/{id}", h.handleCandidateDelete)
	mux.HandleFunc("PUT /admin/candidates/{id}/permissions", h.handlePermissionsReplace)

	mux.HandleFunc("GET /admin/activity", h.handleActivityList)
}

// clientIP extracts the remote address for device bookkeeping.
func clientIP(r *http.Request) *net.IP {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return nil
	}
	return &ip
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
