package roster

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is the in-memory Store used in development and tests.
type MemoryStore struct {
	mu sync.Mutex

	voters     map[string]Voter
	candidates map[string]Candidate
	perms      map[string][]string // candidate id -> granted fields
	willVotes  map[string]WillVote // candidateID + "\x00" + voterID
}

// NewMemoryStore constructs an empty in-memory roster store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		voters:     make(map[string]Voter),
		candidates: make(map[string]Candidate),
		perms:      make(map[string][]string),
		willVotes:  make(map[string]WillVote),
	}
}

var _ Store = (*MemoryStore)(nil)

func willVoteKey(candidateID, voterID string) string {
	return candidateID + "\x00" + voterID
}

func (m *MemoryStore) CreateVoter(ctx context.Context, v Voter) (Voter, error) {
	if err := ctx.Err(); err != nil {
		return Voter{}, err
	}
	if v.ID == "" {
		return Voter{}, fmt.Errorf("roster.CreateVoter: %w: missing id", ErrInvalidInput)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.voters[v.ID]; ok {
		return Voter{}, fmt.Errorf("roster.CreateVoter: %w: id", ErrConflict)
	}
	m.voters[v.ID] = v
	return v, nil
}

func (m *MemoryStore) GetVoter(ctx context.Context, voterID string) (Voter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.voters[voterID]
	if !ok {
		return Voter{}, fmt.Errorf("roster.GetVoter: %w: voter", ErrNotFound)
	}
	return v, nil
}

func (m *MemoryStore) ListVoters(ctx context.Context) ([]Voter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Voter, 0, len(m.voters))
	for _, v := range m.voters {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) DeleteVoter(ctx context.Context, voterID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.voters[voterID]; !ok {
		return fmt.Errorf("roster.DeleteVoter: %w: voter", ErrNotFound)
	}
	delete(m.voters, voterID)
	for k, w := range m.willVotes {
		if w.VoterID == voterID {
			delete(m.willVotes, k)
		}
	}
	return nil
}

func (m *MemoryStore) UpdateVoterFields(ctx context.Context, voterID string, updates map[string]string, updatedBy string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.voters[voterID]
	if !ok {
		return fmt.Errorf("roster.UpdateVoterFields: %w: voter", ErrNotFound)
	}
	for f, val := range updates {
		if !v.SetField(f, val) {
			return fmt.Errorf("roster.UpdateVoterFields: %w: unknown field %q", ErrInvalidInput, f)
		}
	}
	v.UpdatedBy = updatedBy
	v.UpdatedAt = now
	m.voters[voterID] = v
	return nil
}

func (m *MemoryStore) CreateCandidate(ctx context.Context, c Candidate) (Candidate, error) {
	if c.ID == "" || c.UserID == "" {
		return Candidate{}, fmt.Errorf("roster.CreateCandidate: %w: missing id or user_id", ErrInvalidInput)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.candidates {
		if existing.UserID == c.UserID {
			return Candidate{}, fmt.Errorf("roster.CreateCandidate: %w: user_id", ErrConflict)
		}
	}
	m.candidates[c.ID] = c
	return c, nil
}

func (m *MemoryStore) GetCandidateByID(ctx context.Context, candidateID string) (Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.candidates[candidateID]
	if !ok {
		return Candidate{}, fmt.Errorf("roster.GetCandidateByID: %w: candidate", ErrNotFound)
	}
	return c, nil
}

func (m *MemoryStore) GetCandidateByUserID(ctx context.Context, userID string) (Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.candidates {
		if c.UserID == userID {
			return c, nil
		}
	}
	return Candidate{}, fmt.Errorf("roster.GetCandidateByUserID: %w: candidate", ErrNotFound)
}

func (m *MemoryStore) ListCandidates(ctx context.Context) ([]Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Candidate, 0, len(m.candidates))
	for _, c := range m.candidates {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) DeleteCandidate(ctx context.Context, candidateID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.candidates[candidateID]; !ok {
		return fmt.Errorf("roster.DeleteCandidate: %w: candidate", ErrNotFound)
	}
	delete(m.candidates, candidateID)
	delete(m.perms, candidateID)
	for k, w := range m.willVotes {
		if w.CandidateID == candidateID {
			delete(m.willVotes, k)
		}
	}
	return nil
}

func (m *MemoryStore) ReplacePermissions(ctx context.Context, candidateID string, fields []string) error {
	for _, f := range fields {
		if !ValidField(f) {
			return fmt.Errorf("roster.ReplacePermissions: %w: unknown field %q", ErrInvalidInput, f)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.candidates[candidateID]; !ok {
		return fmt.Errorf("roster.ReplacePermissions: %w: candidate", ErrNotFound)
	}
	m.perms[candidateID] = append([]string(nil), fields...)
	return nil
}

func (m *MemoryStore) GetPermissions(ctx context.Context, candidateID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]string(nil), m.perms[candidateID]...), nil
}

func (m *MemoryStore) UpsertWillVote(ctx context.Context, w WillVote) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.willVotes[willVoteKey(w.CandidateID, w.VoterID)] = w
	return nil
}

func (m *MemoryStore) GetWillVote(ctx context.Context, candidateID, voterID string) (WillVote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.willVotes[willVoteKey(candidateID, voterID)]
	if !ok {
		return WillVote{}, fmt.Errorf("roster.GetWillVote: %w: will_vote", ErrNotFound)
	}
	return w, nil
}

func (m *MemoryStore) ListWillVotes(ctx context.Context, candidateID string) ([]WillVote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []WillVote
	for _, w := range m.willVotes {
		if w.CandidateID == candidateID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VoterID < out[j].VoterID })
	return out, nil
}
