package api

import (
	"net/http"
	"strings"
	"time"

	"rollbook/cmd/internal/auth"
	"rollbook/cmd/internal/device"
)

type deviceRegisterRequest struct {
	RefreshToken string `json:"refresh_token"`
	DeviceName   string `json:"device_name,omitempty"`
}

type deviceRegisterResponse struct {
	DeviceID string `json:"device_id"`
}

func (h *Handler) handleDeviceRegister(w http.ResponseWriter, r *http.Request) {
	sc, err := auth.RequireSession(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}

	var req deviceRegisterRequest
	if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid request body")
		return
	}

	tok := strings.TrimSpace(req.RefreshToken)
	if tok == "" {
		tok = auth.BearerToken(r)
	}

	id, err := h.devices.Register(r.Context(), device.RegisterInput{
		UserID:     sc.UserID,
		RawToken:   tok,
		UserAgent:  r.UserAgent(),
		IP:         clientIP(r),
		DeviceName: req.DeviceName,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, deviceRegisterResponse{DeviceID: id})
}

type deviceRevokeRequest struct {
	DeviceID     string `json:"device_id,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

func (h *Handler) handleDeviceRevoke(w http.ResponseWriter, r *http.Request) {
	sc, err := auth.RequireSession(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}

	var req deviceRevokeRequest
	if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid request body")
		return
	}

	if err := h.devices.Revoke(r.Context(), sc.UserID, req.DeviceID, req.RefreshToken); err != nil {
		h.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type deviceView struct {
	ID         string    `json:"id"`
	Label      string    `json:"label"`
	UserAgent  string    `json:"user_agent,omitempty"`
	IP         string    `json:"ip,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

func (h *Handler) handleDeviceList(w http.ResponseWriter, r *http.Request) {
	sc, err := auth.RequireSession(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}

	devices, err := h.devices.List(r.Context(), sc.UserID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	views := make([]deviceView, 0, len(devices))
	for _, d := range devices {
		v := deviceView{
			ID:         d.ID,
			Label:      d.Label,
			UserAgent:  d.UserAgent,
			CreatedAt:  d.CreatedAt,
			LastSeenAt: d.LastSeenAt,
		}
		if d.IP != nil {
			v.IP = d.IP.String()
		}
		views = append(views, v)
	}

	writeJSON(w, http.StatusOK, map[string][]deviceView{"devices": views})
}
