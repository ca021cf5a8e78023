package editflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"rollbook/cmd/internal/roster"
)

// MemoryStore is the in-memory Store used in development and tests.
// Approvals apply voter mutations through the roster store it is built on.
type MemoryStore struct {
	mu       sync.Mutex
	requests map[string]Request
	voters   roster.Store
}

// NewMemoryStore constructs an in-memory edit-request store writing voter
// updates through the given roster store.
func NewMemoryStore(voters roster.Store) *MemoryStore {
	return &MemoryStore{
		requests: make(map[string]Request),
		voters:   voters,
	}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) Insert(ctx context.Context, r Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.ID == "" {
		return fmt.Errorf("editflow.Insert: %w: missing id", ErrInvalidInput)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// One pending row per triple; the workflow supersedes instead of
	// inserting, so a duplicate here is a programming error upstream.
	if r.Status == StatusPending {
		for _, existing := range m.requests {
			if existing.Status == StatusPending &&
				existing.VoterID == r.VoterID &&
				existing.CandidateID == r.CandidateID &&
				existing.FieldName == r.FieldName {
				return fmt.Errorf("editflow.Insert: duplicate pending request")
			}
		}
	}

	m.requests[r.ID] = r
	return nil
}

func (m *MemoryStore) GetByID(ctx context.Context, requestID string) (Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.requests[requestID]
	if !ok {
		return Request{}, fmt.Errorf("editflow.GetByID: %w: request", ErrNotFound)
	}
	return r, nil
}

func (m *MemoryStore) GetPending(ctx context.Context, voterID, candidateID, fieldName string) (Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.requests {
		if r.Status == StatusPending && r.VoterID == voterID && r.CandidateID == candidateID && r.FieldName == fieldName {
			return r, nil
		}
	}
	return Request{}, fmt.Errorf("editflow.GetPending: %w: request", ErrNotFound)
}

func (m *MemoryStore) Supersede(ctx context.Context, requestID, oldValue, newValue string, submittedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.requests[requestID]
	if !ok {
		return fmt.Errorf("editflow.Supersede: %w: request", ErrNotFound)
	}
	if r.Status != StatusPending {
		return fmt.Errorf("editflow.Supersede: %w", ErrNotPending)
	}

	r.OldValue = oldValue
	r.NewValue = newValue
	r.SubmittedAt = submittedAt
	m.requests[requestID] = r
	return nil
}

func (m *MemoryStore) Approve(ctx context.Context, requestID, reviewerID string, now time.Time) (Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.requests[requestID]
	if !ok {
		return Request{}, fmt.Errorf("editflow.Approve: %w: request", ErrNotFound)
	}
	if r.Status != StatusPending {
		return Request{}, fmt.Errorf("editflow.Approve: %w", ErrNotPending)
	}

	// Voter update first; a failure leaves the request pending.
	err := m.voters.UpdateVoterFields(ctx, r.VoterID, map[string]string{r.FieldName: r.NewValue}, reviewerID, now)
	if err != nil {
		return Request{}, err
	}

	r.Status = StatusApproved
	t := now
	r.ReviewedAt = &t
	r.ReviewerID = reviewerID
	m.requests[requestID] = r
	return r, nil
}

func (m *MemoryStore) Reject(ctx context.Context, requestID, reviewerID string, now time.Time) (Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.requests[requestID]
	if !ok {
		return Request{}, fmt.Errorf("editflow.Reject: %w: request", ErrNotFound)
	}
	if r.Status != StatusPending {
		return Request{}, fmt.Errorf("editflow.Reject: %w", ErrNotPending)
	}

	r.Status = StatusRejected
	t := now
	r.ReviewedAt = &t
	r.ReviewerID = reviewerID
	m.requests[requestID] = r
	return r, nil
}

func (m *MemoryStore) ListByVoterAndCandidate(ctx context.Context, voterID, candidateID string) ([]Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Request
	for _, r := range m.requests {
		if r.VoterID == voterID && r.CandidateID == candidateID {
			out = append(out, r)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (m *MemoryStore) ListAll(ctx context.Context) ([]Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Request, 0, len(m.requests))
	for _, r := range m.requests {
		out = append(out, r)
	}
	sortNewestFirst(out)
	return out, nil
}

func sortNewestFirst(rs []Request) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].SubmittedAt.Equal(rs[j].SubmittedAt) {
			return rs[i].SubmittedAt.After(rs[j].SubmittedAt)
		}
		return rs[i].ID > rs[j].ID
	})
}
