package api

import (
	"net/http"
	"strconv"
	"time"

	"rollbook/cmd/identity"
	"rollbook/cmd/internal/auth"
	"rollbook/cmd/internal/roster"
)

func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) (auth.SessionContext, bool) {
	sc, err := auth.RequireRole(r.Context(), identity.RoleAdmin)
	if err != nil {
		h.respondError(w, err)
		return auth.SessionContext{}, false
	}
	return sc, true
}

type enrichedRequestView struct {
	editRequestView
	CandidateID   string `json:"candidate_id"`
	VoterName     string `json:"voter_name"`
	CandidateName string `json:"candidate_name"`
	ReviewerID    string `json:"reviewer_id,omitempty"`
}

func (h *Handler) handleEditRequestListAll(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}

	requests, err := h.workflow.ListForAdmin(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}

	views := make([]enrichedRequestView, 0, len(requests))
	for _, req := range requests {
		views = append(views, enrichedRequestView{
			editRequestView: viewOfRequest(req.Request),
			CandidateID:     req.CandidateID,
			VoterName:       req.VoterName,
			CandidateName:   req.CandidateName,
			ReviewerID:      req.ReviewerID,
		})
	}
	writeJSON(w, http.StatusOK, map[string][]enrichedRequestView{"requests": views})
}

func (h *Handler) handleEditRequestApprove(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}

	req, err := h.workflow.Approve(r.Context(), sc.UserID, r.PathValue("id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOfRequest(req))
}

func (h *Handler) handleEditRequestReject(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}

	req, err := h.workflow.Reject(r.Context(), sc.UserID, r.PathValue("id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOfRequest(req))
}

type userCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type userView struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *Handler) handleUserCreate(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}

	var req userCreateRequest
	if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid request body")
		return
	}

	u, err := h.users.CreateUser(r.Context(), identity.CreateUserInput{
		Username: req.Username,
		Password: req.Password,
		Role:     identity.Role(req.Role),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}

	if h.recorder != nil {
		h.recorder.RecordAsync(sc.UserID, "user.created", "user", u.ID, u.Username)
	}

	writeJSON(w, http.StatusCreated, userView{
		ID: u.ID, Username: u.Username, Role: string(u.Role), CreatedAt: u.CreatedAt,
	})
}

func (h *Handler) handleUserList(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}

	users, err := h.users.ListUsers(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}

	views := make([]userView, 0, len(users))
	for _, u := range users {
		views = append(views, userView{ID: u.ID, Username: u.Username, Role: string(u.Role), CreatedAt: u.CreatedAt})
	}
	writeJSON(w, http.StatusOK, map[string][]userView{"users": views})
}

func (h *Handler) handleUserDelete(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}

	targetID := r.PathValue("id")
	if targetID == sc.UserID {
		writeError(w, http.StatusBadRequest, "invalid_input", "cannot delete the signed-in account")
		return
	}

	// Kill live sessions first so the account is unusable even if the row
	// delete fails partway.
	if err := h.users.RevokeAllSessions(r.Context(), targetID, time.Now().UTC()); err != nil {
		h.log.Warn("admin.user_delete.session_revoke_failed", "user_id", targetID, "err", err)
	}

	if err := h.users.DeleteUser(r.Context(), targetID); err != nil {
		h.respondError(w, err)
		return
	}
	// Local device bookkeeping goes with the user.
	if err := h.devices.RevokeAll(r.Context(), targetID); err != nil {
		h.log.Warn("admin.user_delete.device_cleanup_failed", "user_id", targetID, "err", err)
	}

	if h.recorder != nil {
		h.recorder.RecordAsync(sc.UserID, "user.deleted", "user", targetID, "")
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type voterPayload struct {
	Sumaaru         string `json:"sumaaru,omitempty"`
	Name            string `json:"name"`
	Address         string `json:"address,omitempty"`
	Phone           string `json:"phone,omitempty"`
	Sex             string `json:"sex,omitempty"`
	NID             string `json:"nid,omitempty"`
	PresentLocation string `json:"present_location,omitempty"`
	RegisteredBox   string `json:"registered_box,omitempty"`
	JobIn           string `json:"job_in,omitempty"`
	JobBy           string `json:"job_by,omitempty"`
}

type voterView struct {
	ID string `json:"id"`
	voterPayload
	CreatedBy string    `json:"created_by,omitempty"`
	UpdatedBy string    `json:"updated_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func viewOfVoter(v roster.Voter) voterView {
	return voterView{
		ID: v.ID,
		voterPayload: voterPayload{
			Sumaaru:         v.Sumaaru,
			Name:            v.Name,
			Address:         v.Address,
			Phone:           v.Phone,
			Sex:             v.Sex,
			NID:             v.NID,
			PresentLocation: v.PresentLocation,
			RegisteredBox:   v.RegisteredBox,
			JobIn:           v.JobIn,
			JobBy:           v.JobBy,
		},
		CreatedBy: v.CreatedBy,
		UpdatedBy: v.UpdatedBy,
		CreatedAt: v.CreatedAt,
		UpdatedAt: v.UpdatedAt,
	}
}

func (h *Handler) handleVoterCreate(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}

	var req voterPayload
	if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "name is required")
		return
	}

	now := time.Now().UTC()
	id, err := identity.NewULID(now)
	if err != nil {
		h.respondError(w, err)
		return
	}

	v, err := h.roster.Store().CreateVoter(r.Context(), roster.Voter{
		ID:              id,
		Sumaaru:         req.Sumaaru,
		Name:            req.Name,
		Address:         req.Address,
		Phone:           req.Phone,
		Sex:             req.Sex,
		NID:             req.NID,
		PresentLocation: req.PresentLocation,
		RegisteredBox:   req.RegisteredBox,
		JobIn:           req.JobIn,
		JobBy:           req.JobBy,
		CreatedBy:       sc.UserID,
		UpdatedBy:       sc.UserID,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}

	if h.recorder != nil {
		h.recorder.RecordAsync(sc.UserID, "voter.created", "voter", v.ID, v.Name)
	}

	writeJSON(w, http.StatusCreated, viewOfVoter(v))
}

func (h *Handler) handleVoterList(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}

	voters, err := h.roster.Store().ListVoters(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}

	views := make([]voterView, 0, len(voters))
	for _, v := range voters {
		views = append(views, viewOfVoter(v))
	}
	writeJSON(w, http.StatusOK, map[string][]voterView{"voters": views})
}

// handleVoterUpdate is the admin's unrestricted field update. The body is a
// field-name to value map; unknown names reject the whole update.
func (h *Handler) handleVoterUpdate(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}

	var updates map[string]string
	if err := decodeJSON(w, r, maxBodyBytes, &updates); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid request body")
		return
	}
	if len(updates) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_input", "empty update set")
		return
	}
	for f := range updates {
		if !roster.ValidField(f) {
			writeError(w, http.StatusBadRequest, "invalid_input", "unknown field: "+f)
			return
		}
	}

	voterID := r.PathValue("id")
	if err := h.roster.Store().UpdateVoterFields(r.Context(), voterID, updates, sc.UserID, time.Now().UTC()); err != nil {
		h.respondError(w, err)
		return
	}

	v, err := h.roster.Store().GetVoter(r.Context(), voterID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	if h.recorder != nil {
		h.recorder.RecordAsync(sc.UserID, "voter.updated", "voter", voterID, "")
	}

	writeJSON(w, http.StatusOK, viewOfVoter(v))
}

func (h *Handler) handleVoterDelete(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}

	if err := h.roster.Store().DeleteVoter(r.Context(), r.PathValue("id")); err != nil {
		h.respondError(w, err)
		return
	}

	if h.recorder != nil {
		h.recorder.RecordAsync(sc.UserID, "voter.deleted", "voter", r.PathValue("id"), "")
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type candidateView struct {
	ID              string   `json:"id"`
	UserID          string   `json:"user_id"`
	Name            string   `json:"name"`
	CandidateNumber string   `json:"candidate_number,omitempty"`
	Phone           string   `json:"phone,omitempty"`
	Position        string   `json:"position,omitempty"`
	AllowedFields   []string `json:"allowed_fields"`
}

func (h *Handler) handleCandidateList(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}

	candidates, err := h.roster.Store().ListCandidates(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}

	views := make([]candidateView, 0, len(candidates))
	for _, c := range candidates {
		fields, err := h.roster.AllowedFields(r.Context(), c.ID)
		if err != nil {
			h.respondError(w, err)
			return
		}
		views = append(views, candidateView{
			ID:              c.ID,
			UserID:          c.UserID,
			Name:            c.Name,
			CandidateNumber: c.CandidateNumber,
			Phone:           c.Phone,
			Position:        c.Position,
			AllowedFields:   fields,
		})
	}
	writeJSON(w, http.StatusOK, map[string][]candidateView{"candidates": views})
}

type candidateCreateRequest struct {
	UserID          string `json:"user_id"`
	Name            string `json:"name"`
	CandidateNumber string `json:"candidate_number,omitempty"`
	Phone           string `json:"phone,omitempty"`
	Position        string `json:"position,omitempty"`
}

// handleCandidateCreate makes a candidate profile for an existing user. Most
// profiles appear through the lazy bootstrap on first submission; this is the
// explicit path for pre-provisioning.
func (h *Handler) handleCandidateCreate(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}

	var req candidateCreateRequest
	if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid request body")
		return
	}
	if req.UserID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "user_id and name are required")
		return
	}

	now := time.Now().UTC()
	id, err := identity.NewULID(now)
	if err != nil {
		h.respondError(w, err)
		return
	}

	c, err := h.roster.Store().CreateCandidate(r.Context(), roster.Candidate{
		ID:              id,
		UserID:          req.UserID,
		Name:            req.Name,
		CandidateNumber: req.CandidateNumber,
		Phone:           req.Phone,
		Position:        req.Position,
		CreatedAt:       now,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}

	if h.recorder != nil {
		h.recorder.RecordAsync(sc.UserID, "candidate.created", "candidate", c.ID, c.Name)
	}

	writeJSON(w, http.StatusCreated, candidateView{
		ID:              c.ID,
		UserID:          c.UserID,
		Name:            c.Name,
		CandidateNumber: c.CandidateNumber,
		Phone:           c.Phone,
		Position:        c.Position,
		AllowedFields:   append([]string(nil), roster.DefaultAllowedFields...),
	})
}

func (h *Handler) handleCandidateDelete(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}

	candidateID := r.PathValue("id")
	if err := h.roster.Store().DeleteCandidate(r.Context(), candidateID); err != nil {
		h.respondError(w, err)
		return
	}

	if h.recorder != nil {
		h.recorder.RecordAsync(sc.UserID, "candidate.deleted", "candidate", candidateID, "")
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type permissionsRequest struct {
	Fields []string `json:"fields"`
}

func (h *Handler) handlePermissionsReplace(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}

	var req permissionsRequest
	if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid request body")
		return
	}

	candidateID := r.PathValue("id")
	if err := h.roster.Store().ReplacePermissions(r.Context(), candidateID, req.Fields); err != nil {
		h.respondError(w, err)
		return
	}

	if h.recorder != nil {
		h.recorder.RecordAsync(sc.UserID, "permissions.replaced", "candidate", candidateID, strconv.Itoa(len(req.Fields)))
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type activityView struct {
	ID         string    `json:"id"`
	ActorID    string    `json:"actor_id"`
	Action     string    `json:"action"`
	TargetType string    `json:"target_type"`
	TargetID   string    `json:"target_id"`
	Detail     string    `json:"detail,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func (h *Handler) handleActivityList(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	entries, err := h.recorder.List(r.Context(), limit)
	if err != nil {
		h.respondError(w, err)
		return
	}

	views := make([]activityView, 0, len(entries))
	for _, e := range entries {
		views = append(views, activityView{
			ID:         e.ID,
			ActorID:    e.ActorID,
			Action:     e.Action,
			TargetType: e.TargetType,
			TargetID:   e.TargetID,
			Detail:     e.Detail,
			CreatedAt:  e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string][]activityView{"activity": views})
}
