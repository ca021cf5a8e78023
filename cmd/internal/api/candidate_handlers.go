package api

import (
	"errors"
	"net/http"
	"time"

	"rollbook/cmd/identity"
	"rollbook/cmd/internal/auth"
	"rollbook/cmd/internal/editflow"
	"rollbook/cmd/internal/roster"
)

type candidateProfileView struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	CandidateNumber string `json:"candidate_number,omitempty"`
	Phone           string `json:"phone,omitempty"`
	Position        string `json:"position,omitempty"`
}

type candidateVoterRow struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Phone           string `json:"phone,omitempty"`
	PresentLocation string `json:"present_location,omitempty"`
	WillVote        *bool  `json:"will_vote,omitempty"`
}

// handleCandidateVoterList is the candidate's working view: the narrow
// contact columns plus their own will-vote marks, never the full record.
func (h *Handler) handleCandidateVoterList(w http.ResponseWriter, r *http.Request) {
	sc, err := auth.RequireRole(r.Context(), identity.RoleCandidate)
	if err != nil {
		h.respondError(w, err)
		return
	}

	voters, err := h.roster.Store().ListVoters(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}

	var profile *candidateProfileView
	marks := map[string]bool{}

	c, err := h.roster.Store().GetCandidateByUserID(r.Context(), sc.UserID)
	switch {
	case err == nil:
		profile = &candidateProfileView{
			ID:              c.ID,
			Name:            c.Name,
			CandidateNumber: c.CandidateNumber,
			Phone:           c.Phone,
			Position:        c.Position,
		}
		wills, err := h.roster.Store().ListWillVotes(r.Context(), c.ID)
		if err != nil {
			h.respondError(w, err)
			return
		}
		for _, wv := range wills {
			marks[wv.VoterID] = wv.Will
		}
	case errors.Is(err, roster.ErrNotFound):
		// No profile yet: the listing still works, without marks.
	default:
		h.respondError(w, err)
		return
	}

	rows := make([]candidateVoterRow, 0, len(voters))
	for _, v := range voters {
		row := candidateVoterRow{
			ID:              v.ID,
			Name:            v.Name,
			Phone:           v.Phone,
			PresentLocation: v.PresentLocation,
		}
		if will, ok := marks[v.ID]; ok {
			mark := will
			row.WillVote = &mark
		}
		rows = append(rows, row)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"candidate": profile,
		"voters":    rows,
	})
}

type editRequestSubmit struct {
	FieldName string `json:"field_name"`
	NewValue  string `json:"new_value"`
}

type editRequestSubmitResponse struct {
	RequestID string `json:"request_id"`
}

func (h *Handler) handleEditRequestSubmit(w http.ResponseWriter, r *http.Request) {
	sc, err := auth.RequireRole(r.Context(), identity.RoleCandidate)
	if err != nil {
		h.respondError(w, err)
		return
	}

	var req editRequestSubmit
	if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid request body")
		return
	}

	id, err := h.workflow.Submit(r.Context(), sc.UserID, sc.Username, r.PathValue("id"), req.FieldName, req.NewValue)
	if err != nil {
		h.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, editRequestSubmitResponse{RequestID: id})
}

type editRequestView struct {
	ID          string     `json:"id"`
	VoterID     string     `json:"voter_id"`
	FieldName   string     `json:"field_name"`
	OldValue    string     `json:"old_value"`
	NewValue    string     `json:"new_value"`
	Status      string     `json:"status"`
	SubmittedAt time.Time  `json:"submitted_at"`
	ReviewedAt  *time.Time `json:"reviewed_at,omitempty"`
}

func viewOfRequest(r editflow.Request) editRequestView {
	return editRequestView{
		ID:          r.ID,
		VoterID:     r.VoterID,
		FieldName:   r.FieldName,
		OldValue:    r.OldValue,
		NewValue:    r.NewValue,
		Status:      string(r.Status),
		SubmittedAt: r.SubmittedAt,
		ReviewedAt:  r.ReviewedAt,
	}
}

func (h *Handler) handleEditRequestListMine(w http.ResponseWriter, r *http.Request) {
	sc, err := auth.RequireRole(r.Context(), identity.RoleCandidate)
	if err != nil {
		h.respondError(w, err)
		return
	}

	requests, err := h.workflow.ListForCandidate(r.Context(), sc.UserID, r.PathValue("id"))
	if err != nil {
		h.respondError(w, err)
		return
	}

	views := make([]editRequestView, 0, len(requests))
	for _, req := range requests {
		views = append(views, viewOfRequest(req))
	}
	writeJSON(w, http.StatusOK, map[string][]editRequestView{"requests": views})
}

type willVoteRequest struct {
	WillVote bool `json:"will_vote"`
}

func (h *Handler) handleWillVote(w http.ResponseWriter, r *http.Request) {
	sc, err := auth.RequireRole(r.Context(), identity.RoleCandidate)
	if err != nil {
		h.respondError(w, err)
		return
	}

	var req willVoteRequest
	if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid request body")
		return
	}

	if err := h.roster.SetWillVote(r.Context(), sc.UserID, r.PathValue("id"), req.WillVote); err != nil {
		h.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) handleScopedUpdate(w http.ResponseWriter, r *http.Request) {
	sc, err := auth.RequireRole(r.Context(), identity.RoleCandidate)
	if err != nil {
		h.respondError(w, err)
		return
	}

	var updates map[string]string
	if err := decodeJSON(w, r, maxBodyBytes, &updates); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid request body")
		return
	}

	if err := h.roster.ScopedUpdate(r.Context(), sc.UserID, r.PathValue("id"), updates); err != nil {
		h.respondError(w, err)
		return
	}

	if h.recorder != nil {
		h.recorder.RecordAsync(sc.UserID, "voter.updated", "voter", r.PathValue("id"), "")
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
