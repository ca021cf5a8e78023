package editflow

import (
	"time"

	"rollbook/cmd/internal/roster"
)

// Status is the request lifecycle state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Request is one proposed change to one field of one voter by one candidate.
// Approved and rejected rows are immutable history.
type Request struct {
	ID          string
	VoterID     string
	CandidateID string
	FieldName   string

	// OldValue snapshots the voter's field at submission time. A superseding
	// submission re-captures it from the then-current voter row.
	OldValue string
	NewValue string

	Status      Status
	SubmittedAt time.Time
	ReviewedAt  *time.Time
	ReviewerID  string
}

// EnrichedRequest is the admin listing shape: ids resolved to display names.
// Missing joins resolve to "Unknown" rather than failing the listing.
type EnrichedRequest struct {
	Request
	VoterName     string
	CandidateName string
}

// RequestableFields is the workflow's own allow-list. It is deliberately
// narrower than the candidate permission grants: contact and location only,
// independent of whatever direct-edit fields an admin has granted.
var RequestableFields = []string{
	roster.FieldPhone,
	roster.FieldPresentLocation,
}

var requestableSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(RequestableFields))
	for _, f := range RequestableFields {
		m[f] = struct{}{}
	}
	return m
}()

// Requestable reports whether a field may travel through the workflow.
func Requestable(field string) bool {
	_, ok := requestableSet[field]
	return ok
}
