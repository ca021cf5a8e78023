package roster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"rollbook/cmd/identity"
)

// Service wraps the Store with the authorization policy for candidate
// operations. Admin handlers talk to the Store directly; candidates go
// through here.
type Service struct {
	store Store
	log   *slog.Logger
	now   func() time.Time
}

// NewService constructs a Service. log may be nil.
func NewService(store Store, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// Store exposes the underlying store for admin-level access.
func (s *Service) Store() Store { return s.store }

// EnsureCandidate resolves the candidate profile for a user, creating a
// minimal one if none exists yet. The bootstrap is logged explicitly so a
// lazily-created profile is visible in the audit trail, never silent.
func (s *Service) EnsureCandidate(ctx context.Context, userID, displayName string) (Candidate, error) {
	const op = "roster.EnsureCandidate"

	if strings.TrimSpace(userID) == "" {
		return Candidate{}, fmt.Errorf("%s: %w: missing user_id", op, ErrInvalidInput)
	}

	c, err := s.store.GetCandidateByUserID(ctx, userID)
	if err == nil {
		return c, nil
	}
	if !isNotFound(err) {
		return Candidate{}, err
	}

	now := s.now()
	id, err := identity.NewULID(now)
	if err != nil {
		return Candidate{}, err
	}

	name := strings.TrimSpace(displayName)
	if name == "" {
		name = "candidate"
	}

	c, err = s.store.CreateCandidate(ctx, Candidate{
		ID:        id,
		UserID:    userID,
		Name:      name,
		CreatedAt: now,
	})
	if err != nil {
		// A concurrent bootstrap may have won; re-read before failing.
		if existing, gerr := s.store.GetCandidateByUserID(ctx, userID); gerr == nil {
			return existing, nil
		}
		return Candidate{}, err
	}

	s.log.Warn("roster.candidate.bootstrapped", "user_id", userID, "candidate_id", c.ID)
	return c, nil
}

// AllowedFields resolves the effective field grant for a candidate. A
// candidate with no grant rows falls back to DefaultAllowedFields rather
// than to nothing.
func (s *Service) AllowedFields(ctx context.Context, candidateID string) ([]string, error) {
	fields, err := s.store.GetPermissions(ctx, candidateID)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		s.log.Warn("roster.permissions.default_fallback", "candidate_id", candidateID)
		return append([]string(nil), DefaultAllowedFields...), nil
	}
	return fields, nil
}

// ScopedUpdate applies a direct voter update on behalf of a candidate user,
// limited to the candidate's granted fields. Every field in updates must be
// granted or the whole update is rejected before any write.
func (s *Service) ScopedUpdate(ctx context.Context, candidateUserID, voterID string, updates map[string]string) error {
	const op = "roster.ScopedUpdate"

	if len(updates) == 0 {
		return fmt.Errorf("%s: %w: empty update set", op, ErrInvalidInput)
	}
	for f := range updates {
		if !ValidField(f) {
			return fmt.Errorf("%s: %w: unknown field %q", op, ErrInvalidInput, f)
		}
	}

	c, err := s.store.GetCandidateByUserID(ctx, candidateUserID)
	if err != nil {
		return err
	}

	allowed, err := s.AllowedFields(ctx, c.ID)
	if err != nil {
		return err
	}
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, f := range allowed {
		allowedSet[f] = struct{}{}
	}

	for f := range updates {
		if _, ok := allowedSet[f]; !ok {
			s.log.Warn("roster.update.denied", "candidate_id", c.ID, "voter_id", voterID, "field", f)
			return fmt.Errorf("%s: %w: %s", op, ErrFieldNotAllowed, f)
		}
	}

	now := s.now()
	if err := s.store.UpdateVoterFields(ctx, voterID, updates, candidateUserID, now); err != nil {
		return err
	}

	s.log.Info("roster.voter.updated", "candidate_id", c.ID, "voter_id", voterID, "fields", len(updates))
	return nil
}

// SetWillVote records the candidate's preference for one voter. The
// candidate is resolved from the session's user id, never from the body.
func (s *Service) SetWillVote(ctx context.Context, candidateUserID, voterID string, will bool) error {
	c, err := s.store.GetCandidateByUserID(ctx, candidateUserID)
	if err != nil {
		return err
	}
	if _, err := s.store.GetVoter(ctx, voterID); err != nil {
		return err
	}

	return s.store.UpsertWillVote(ctx, WillVote{
		CandidateID: c.ID,
		VoterID:     voterID,
		Will:        will,
		UpdatedAt:   s.now(),
	})
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || identity.IsNotFound(err)
}
