package editflow

import (
	"context"
	"time"
)

// Store is the persistence contract for edit requests.
//
// Approve and Reject own the pending-state check so the check-then-update
// happens inside the store's own atomicity domain (a transaction for the
// SQL store, the mutex for the in-memory one).
type Store interface {
	Insert(ctx context.Context, r Request) error

	GetByID(ctx context.Context, requestID string) (Request, error)

	// GetPending finds the single pending request for a (voter, candidate,
	// field) triple, or ErrNotFound.
	GetPending(ctx context.Context, voterID, candidateID, fieldName string) (Request, error)

	// Supersede overwrites a pending request's old/new values and submission
	// time in place. ErrNotPending if the row settled in the meantime.
	Supersede(ctx context.Context, requestID, oldValue, newValue string, submittedAt time.Time) error

	// Approve applies the proposed value to the voter row and marks the
	// request approved as a single unit. ErrNotPending if already settled;
	// in that case the voter row is untouched.
	Approve(ctx context.Context, requestID, reviewerID string, now time.Time) (Request, error)

	// Reject marks the request rejected. The voter row is never touched.
	Reject(ctx context.Context, requestID, reviewerID string, now time.Time) (Request, error)

	// ListByVoterAndCandidate returns one candidate's requests for one
	// voter, newest submission first.
	ListByVoterAndCandidate(ctx context.Context, voterID, candidateID string) ([]Request, error)

	// ListAll returns every request, newest submission first.
	ListAll(ctx context.Context) ([]Request, error)
}
