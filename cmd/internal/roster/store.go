package roster

import (
	"context"
	"time"
)

// Store is the persistence contract for roster data.
type Store interface {
	CreateVoter(ctx context.Context, v Voter) (Voter, error)
	GetVoter(ctx context.Context, voterID string) (Voter, error)
	ListVoters(ctx context.Context) ([]Voter, error)
	DeleteVoter(ctx context.Context, voterID string) error

	// UpdateVoterFields applies a named-field update set to one voter,
	// stamping updated_by/updated_at. Unknown field names are the caller's
	// bug; stores may reject them with ErrInvalidInput.
	UpdateVoterFields(ctx context.Context, voterID string, updates map[string]string, updatedBy string, now time.Time) error

	CreateCandidate(ctx context.Context, c Candidate) (Candidate, error)
	GetCandidateByID(ctx context.Context, candidateID string) (Candidate, error)
	GetCandidateByUserID(ctx context.Context, userID string) (Candidate, error)
	ListCandidates(ctx context.Context) ([]Candidate, error)
	DeleteCandidate(ctx context.Context, candidateID string) error

	// ReplacePermissions replaces a candidate's whole field grant set.
	// Grants are never patched incrementally.
	ReplacePermissions(ctx context.Context, candidateID string, fields []string) error
	GetPermissions(ctx context.Context, candidateID string) ([]string, error)

	// UpsertWillVote records or flips a (candidate, voter) preference.
	UpsertWillVote(ctx context.Context, w WillVote) error
	GetWillVote(ctx context.Context, candidateID, voterID string) (WillVote, error)
	ListWillVotes(ctx context.Context, candidateID string) ([]WillVote, error)
}
