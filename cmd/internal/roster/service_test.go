package roster

import (
	"context"
	"errors"
	"testing"
	"time"
)

func seedVoter(t *testing.T, store Store, id string) Voter {
	t.Helper()
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	v, err := store.CreateVoter(context.Background(), Voter{
		ID:              id,
		Name:            "Voter " + id,
		Phone:           "555-0100",
		PresentLocation: "Male'",
		Address:         "H. Example",
		CreatedBy:       "admin-1",
		UpdatedBy:       "admin-1",
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		t.Fatalf("CreateVoter: %v", err)
	}
	return v
}

func seedCandidate(t *testing.T, store Store, id, userID string) Candidate {
	t.Helper()
	c, err := store.CreateCandidate(context.Background(), Candidate{
		ID:     id,
		UserID: userID,
		Name:   "Candidate " + id,
	})
	if err != nil {
		t.Fatalf("CreateCandidate: %v", err)
	}
	return c
}

func TestService_EnsureCandidate_Bootstrap(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	svc := NewService(store, nil)

	c1, err := svc.EnsureCandidate(ctx, "user-1", "hassan")
	if err != nil {
		t.Fatalf("EnsureCandidate: %v", err)
	}
	if c1.UserID != "user-1" || c1.Name != "hassan" {
		t.Fatalf("unexpected bootstrap profile: %+v", c1)
	}

	// Second call resolves the same profile, no duplicate.
	c2, err := svc.EnsureCandidate(ctx, "user-1", "hassan")
	if err != nil {
		t.Fatalf("EnsureCandidate (repeat): %v", err)
	}
	if c2.ID != c1.ID {
		t.Fatalf("bootstrap created a second profile: %s vs %s", c1.ID, c2.ID)
	}
}

func TestService_AllowedFields_DefaultFallback(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	svc := NewService(store, nil)
	c := seedCandidate(t, store, "cand-1", "user-1")

	// No grant rows at all: minimal default set.
	fields, err := svc.AllowedFields(ctx, c.ID)
	if err != nil {
		t.Fatalf("AllowedFields: %v", err)
	}
	if len(fields) != len(DefaultAllowedFields) {
		t.Fatalf("expected default set %v, got %v", DefaultAllowedFields, fields)
	}

	// Explicit grants replace the default entirely.
	if err := store.ReplacePermissions(ctx, c.ID, []string{FieldAddress}); err != nil {
		t.Fatalf("ReplacePermissions: %v", err)
	}
	fields, err = svc.AllowedFields(ctx, c.ID)
	if err != nil {
		t.Fatalf("AllowedFields: %v", err)
	}
	if len(fields) != 1 || fields[0] != FieldAddress {
		t.Fatalf("expected [address], got %v", fields)
	}
}

func TestService_ScopedUpdate_EnforcesGrant(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	svc := NewService(store, nil)

	v := seedVoter(t, store, "voter-1")
	c := seedCandidate(t, store, "cand-1", "user-1")

	if err := store.ReplacePermissions(ctx, c.ID, []string{FieldPhone}); err != nil {
		t.Fatalf("ReplacePermissions: %v", err)
	}

	// Granted field succeeds.
	if err := svc.ScopedUpdate(ctx, "user-1", v.ID, map[string]string{FieldPhone: "555-0199"}); err != nil {
		t.Fatalf("ScopedUpdate(phone): %v", err)
	}
	got, _ := store.GetVoter(ctx, v.ID)
	if got.Phone != "555-0199" {
		t.Fatalf("phone not updated: %q", got.Phone)
	}
	if got.UpdatedBy != "user-1" {
		t.Fatalf("updated_by not stamped: %q", got.UpdatedBy)
	}

	// Ungranted field rejected with nothing written.
	err := svc.ScopedUpdate(ctx, "user-1", v.ID, map[string]string{FieldNID: "A999999"})
	if !errors.Is(err, ErrFieldNotAllowed) {
		t.Fatalf("expected ErrFieldNotAllowed, got %v", err)
	}
	got, _ = store.GetVoter(ctx, v.ID)
	if got.NID != "" {
		t.Fatalf("denied update mutated the voter: %q", got.NID)
	}

	// A mixed update set is all-or-nothing.
	err = svc.ScopedUpdate(ctx, "user-1", v.ID, map[string]string{
		FieldPhone: "555-0111",
		FieldNID:   "A999999",
	})
	if !errors.Is(err, ErrFieldNotAllowed) {
		t.Fatalf("expected ErrFieldNotAllowed for mixed set, got %v", err)
	}
	got, _ = store.GetVoter(ctx, v.ID)
	if got.Phone != "555-0199" {
		t.Fatalf("partial write leaked through: %q", got.Phone)
	}
}

func TestService_ScopedUpdate_UnknownField(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	svc := NewService(store, nil)
	seedCandidate(t, store, "cand-1", "user-1")

	err := svc.ScopedUpdate(context.Background(), "user-1", "voter-1", map[string]string{"password_hash": "x"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestService_SetWillVote_Upsert(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	svc := NewService(store, nil)

	v := seedVoter(t, store, "voter-1")
	c := seedCandidate(t, store, "cand-1", "user-1")

	if err := svc.SetWillVote(ctx, "user-1", v.ID, true); err != nil {
		t.Fatalf("SetWillVote: %v", err)
	}
	w, err := store.GetWillVote(ctx, c.ID, v.ID)
	if err != nil || !w.Will {
		t.Fatalf("GetWillVote: %v %+v", err, w)
	}

	// Flipping updates the same row.
	if err := svc.SetWillVote(ctx, "user-1", v.ID, false); err != nil {
		t.Fatalf("SetWillVote(flip): %v", err)
	}
	all, _ := store.ListWillVotes(ctx, c.ID)
	if len(all) != 1 || all[0].Will {
		t.Fatalf("expected one row with will=false, got %+v", all)
	}
}

func TestVoter_FieldAccessors(t *testing.T) {
	t.Parallel()

	var v Voter
	for _, f := range VoterFields {
		if !v.SetField(f, "x-"+f) {
			t.Fatalf("SetField(%q) rejected a declared field", f)
		}
		got, ok := v.FieldValue(f)
		if !ok || got != "x-"+f {
			t.Fatalf("FieldValue(%q) = %q, %v", f, got, ok)
		}
	}
	if v.SetField("no_such_field", "x") {
		t.Fatalf("SetField accepted an unknown field")
	}
	if _, ok := v.FieldValue("no_such_field"); ok {
		t.Fatalf("FieldValue accepted an unknown field")
	}
}
