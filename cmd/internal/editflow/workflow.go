package editflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"rollbook/cmd/identity"
	"rollbook/cmd/internal/audit"
	"rollbook/cmd/internal/roster"
)

// Event notifies observers of a request lifecycle change.
type Event struct {
	Type        string // "submitted", "superseded", "approved", "rejected"
	RequestID   string
	VoterID     string
	CandidateID string
	FieldName   string
	Status      Status
	At          time.Time
}

// Notifier receives workflow events. Delivery is best-effort.
type Notifier interface {
	EditRequestChanged(ev Event)
}

// Workflow wires submission and disposition over a Store.
type Workflow struct {
	store    Store
	roster   *roster.Service
	recorder *audit.Recorder
	notifier Notifier
	log      *slog.Logger
	now      func() time.Time
}

// NewWorkflow constructs a Workflow. recorder, notifier, and log may be nil.
func NewWorkflow(store Store, rosterSvc *roster.Service, recorder *audit.Recorder, notifier Notifier, log *slog.Logger) *Workflow {
	if log == nil {
		log = slog.Default()
	}
	return &Workflow{
		store:    store,
		roster:   rosterSvc,
		recorder: recorder,
		notifier: notifier,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (w *Workflow) notify(ev Event) {
	if w.notifier != nil {
		w.notifier.EditRequestChanged(ev)
	}
}

// Submit proposes a field edit on a voter on behalf of a candidate user.
//
// The allow-list check runs before any row is read or written. A pending
// request for the same (voter, candidate, field) is superseded in place,
// with old_value re-captured from the voter's current row.
func (w *Workflow) Submit(ctx context.Context, candidateUserID, displayName, voterID, fieldName, newValue string) (string, error) {
	const op = "editflow.Submit"

	fieldName = strings.TrimSpace(fieldName)
	if fieldName == "" || strings.TrimSpace(voterID) == "" {
		return "", fmt.Errorf("%s: %w: missing field or voter", op, ErrInvalidInput)
	}
	if !Requestable(fieldName) {
		return "", fmt.Errorf("%s: %w: %s", op, ErrFieldNotRequestable, fieldName)
	}

	cand, err := w.roster.EnsureCandidate(ctx, candidateUserID, displayName)
	if err != nil {
		return "", err
	}

	voter, err := w.roster.Store().GetVoter(ctx, voterID)
	if err != nil {
		return "", err
	}
	oldValue, _ := voter.FieldValue(fieldName)

	now := w.now()

	// Supersede the pending row if one exists.
	if pending, err := w.store.GetPending(ctx, voterID, cand.ID, fieldName); err == nil {
		if err := w.store.Supersede(ctx, pending.ID, oldValue, newValue, now); err != nil {
			if !errors.Is(err, ErrNotPending) {
				return "", err
			}
			// Settled between read and write; fall through to a fresh insert.
		} else {
			w.log.Info("editflow.superseded", "request_id", pending.ID, "voter_id", voterID, "field", fieldName)
			w.audit(ctx, candidateUserID, "edit_request.superseded", pending.ID, fieldName)
			w.notify(Event{Type: "superseded", RequestID: pending.ID, VoterID: voterID,
				CandidateID: cand.ID, FieldName: fieldName, Status: StatusPending, At: now})
			return pending.ID, nil
		}
	} else if !errors.Is(err, ErrNotFound) {
		return "", err
	}

	id, err := identity.NewULID(now)
	if err != nil {
		return "", err
	}

	r := Request{
		ID:          id,
		VoterID:     voterID,
		CandidateID: cand.ID,
		FieldName:   fieldName,
		OldValue:    oldValue,
		NewValue:    newValue,
		Status:      StatusPending,
		SubmittedAt: now,
	}
	if err := w.store.Insert(ctx, r); err != nil {
		// A concurrent submission may have inserted the pending row first;
		// resolve the race by superseding it.
		if pending, gerr := w.store.GetPending(ctx, voterID, cand.ID, fieldName); gerr == nil {
			if serr := w.store.Supersede(ctx, pending.ID, oldValue, newValue, now); serr == nil {
				return pending.ID, nil
			}
		}
		return "", err
	}

	w.log.Info("editflow.submitted", "request_id", id, "voter_id", voterID, "candidate_id", cand.ID, "field", fieldName)
	w.audit(ctx, candidateUserID, "edit_request.submitted", id, fieldName)
	w.notify(Event{Type: "submitted", RequestID: id, VoterID: voterID,
		CandidateID: cand.ID, FieldName: fieldName, Status: StatusPending, At: now})

	return id, nil
}

// Approve settles a pending request by applying its value to the voter.
// Acting on a settled request fails with ErrNotPending and changes nothing.
func (w *Workflow) Approve(ctx context.Context, adminUserID, requestID string) (Request, error) {
	now := w.now()

	r, err := w.store.Approve(ctx, requestID, adminUserID, now)
	if err != nil {
		return Request{}, err
	}

	w.log.Info("editflow.approved", "request_id", r.ID, "voter_id", r.VoterID, "field", r.FieldName, "reviewer", adminUserID)
	w.audit(ctx, adminUserID, "edit_request.approved", r.ID, r.FieldName)
	w.notify(Event{Type: "approved", RequestID: r.ID, VoterID: r.VoterID,
		CandidateID: r.CandidateID, FieldName: r.FieldName, Status: StatusApproved, At: now})

	return r, nil
}

// Reject settles a pending request without touching the voter row.
func (w *Workflow) Reject(ctx context.Context, adminUserID, requestID string) (Request, error) {
	now := w.now()

	r, err := w.store.Reject(ctx, requestID, adminUserID, now)
	if err != nil {
		return Request{}, err
	}

	w.log.Info("editflow.rejected", "request_id", r.ID, "voter_id", r.VoterID, "field", r.FieldName, "reviewer", adminUserID)
	w.audit(ctx, adminUserID, "edit_request.rejected", r.ID, r.FieldName)
	w.notify(Event{Type: "rejected", RequestID: r.ID, VoterID: r.VoterID,
		CandidateID: r.CandidateID, FieldName: r.FieldName, Status: StatusRejected, At: now})

	return r, nil
}

// ListForCandidate returns one candidate user's requests against one voter.
func (w *Workflow) ListForCandidate(ctx context.Context, candidateUserID, voterID string) ([]Request, error) {
	cand, err := w.roster.Store().GetCandidateByUserID(ctx, candidateUserID)
	if err != nil {
		if errors.Is(err, roster.ErrNotFound) {
			// No profile yet means no requests yet.
			return nil, nil
		}
		return nil, err
	}
	return w.store.ListByVoterAndCandidate(ctx, voterID, cand.ID)
}

// ListForAdmin returns every request enriched with voter and candidate
// display names. A missing join resolves to "Unknown"; the listing never
// fails because a referenced row disappeared.
func (w *Workflow) ListForAdmin(ctx context.Context) ([]EnrichedRequest, error) {
	requests, err := w.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	voterNames := make(map[string]string)
	candNames := make(map[string]string)

	out := make([]EnrichedRequest, 0, len(requests))
	for _, r := range requests {
		vn, ok := voterNames[r.VoterID]
		if !ok {
			vn = "Unknown"
			if v, err := w.roster.Store().GetVoter(ctx, r.VoterID); err == nil && v.Name != "" {
				vn = v.Name
			}
			voterNames[r.VoterID] = vn
		}

		cn, ok := candNames[r.CandidateID]
		if !ok {
			cn = "Unknown"
			if c, err := w.roster.Store().GetCandidateByID(ctx, r.CandidateID); err == nil && c.Name != "" {
				cn = c.Name
			}
			candNames[r.CandidateID] = cn
		}

		out = append(out, EnrichedRequest{Request: r, VoterName: vn, CandidateName: cn})
	}
	return out, nil
}

func (w *Workflow) audit(ctx context.Context, actorID, action, requestID, field string) {
	if w.recorder != nil {
		w.recorder.Record(ctx, actorID, action, "edit_request", requestID, field)
	}
}
