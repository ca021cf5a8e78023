package editflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"rollbook/cmd/internal/audit"
	"rollbook/cmd/internal/roster"
)

type fixture struct {
	rosterStore *roster.MemoryStore
	store       *MemoryStore
	auditStore  *audit.MemoryStore
	wf          *Workflow
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	rs := roster.NewMemoryStore()
	es := NewMemoryStore(rs)
	as := audit.NewMemoryStore()

	f := &fixture{
		rosterStore: rs,
		store:       es,
		auditStore:  as,
		wf:          NewWorkflow(es, roster.NewService(rs, nil), audit.NewRecorder(as, nil), nil, nil),
	}
	return f
}

func (f *fixture) seedVoter(t *testing.T, id, phone string) roster.Voter {
	t.Helper()
	v, err := f.rosterStore.CreateVoter(context.Background(), roster.Voter{
		ID:    id,
		Name:  "Voter " + id,
		Phone: phone,
	})
	if err != nil {
		t.Fatalf("CreateVoter: %v", err)
	}
	return v
}

func TestWorkflow_Submit_AllowListCheckedFirst(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	// Disallowed field on a nonexistent voter: the allow-list violation wins,
	// proving the check runs before any row is read.
	_, err := f.wf.Submit(context.Background(), "user-1", "cand", "no-such-voter", roster.FieldNID, "A1")
	if !errors.Is(err, ErrFieldNotRequestable) {
		t.Fatalf("expected ErrFieldNotRequestable, got %v", err)
	}

	// The candidate bootstrap must not have run either.
	if _, err := f.rosterStore.GetCandidateByUserID(context.Background(), "user-1"); !errors.Is(err, roster.ErrNotFound) {
		t.Fatalf("candidate was bootstrapped before the allow-list check: %v", err)
	}
}

func TestWorkflow_Submit_BootstrapsCandidate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedVoter(t, "voter-1", "555-0100")

	id, err := f.wf.Submit(context.Background(), "user-1", "hassan", "voter-1", roster.FieldPhone, "555-0199")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	cand, err := f.rosterStore.GetCandidateByUserID(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("candidate not bootstrapped: %v", err)
	}

	r, err := f.store.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if r.CandidateID != cand.ID || r.OldValue != "555-0100" || r.NewValue != "555-0199" || r.Status != StatusPending {
		t.Fatalf("unexpected request: %+v", r)
	}
}

func TestWorkflow_Submit_SupersedesPending(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	f.seedVoter(t, "voter-1", "555-0100")

	id1, err := f.wf.Submit(ctx, "user-1", "cand", "voter-1", roster.FieldPhone, "555-0111")
	if err != nil {
		t.Fatalf("Submit #1: %v", err)
	}

	// The voter's phone changes between the two submissions; the superseding
	// row re-captures old_value from the current voter, not the first snapshot.
	if err := f.rosterStore.UpdateVoterFields(ctx, "voter-1",
		map[string]string{roster.FieldPhone: "555-0150"}, "admin-1", time.Now()); err != nil {
		t.Fatalf("UpdateVoterFields: %v", err)
	}

	id2, err := f.wf.Submit(ctx, "user-1", "cand", "voter-1", roster.FieldPhone, "555-0122")
	if err != nil {
		t.Fatalf("Submit #2: %v", err)
	}
	if id2 != id1 {
		t.Fatalf("supersede created a new row: %s vs %s", id1, id2)
	}

	all, _ := f.store.ListAll(ctx)
	if len(all) != 1 {
		t.Fatalf("expected exactly one request row, got %d", len(all))
	}
	r := all[0]
	if r.Status != StatusPending || r.NewValue != "555-0122" || r.OldValue != "555-0150" {
		t.Fatalf("superseded row wrong: %+v", r)
	}
}

func TestWorkflow_ApproveAppliesAndIsTerminal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	f.seedVoter(t, "voter-1", "555-0100")

	id, err := f.wf.Submit(ctx, "user-1", "cand", "voter-1", roster.FieldPhone, "555-0199")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	r, err := f.wf.Approve(ctx, "admin-1", id)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if r.Status != StatusApproved || r.ReviewerID != "admin-1" || r.ReviewedAt == nil {
		t.Fatalf("unexpected approved request: %+v", r)
	}

	v, _ := f.rosterStore.GetVoter(ctx, "voter-1")
	if v.Phone != "555-0199" {
		t.Fatalf("approval did not apply the value: %q", v.Phone)
	}

	// Second approve attempt conflicts and leaves the voter unchanged.
	f.rosterStore.UpdateVoterFields(ctx, "voter-1", map[string]string{roster.FieldPhone: "555-0777"}, "admin-1", time.Now())
	if _, err := f.wf.Approve(ctx, "admin-2", id); !errors.Is(err, ErrNotPending) {
		t.Fatalf("expected ErrNotPending, got %v", err)
	}
	v, _ = f.rosterStore.GetVoter(ctx, "voter-1")
	if v.Phone != "555-0777" {
		t.Fatalf("second approve mutated the voter: %q", v.Phone)
	}

	// Nor can a settled request be rejected.
	if _, err := f.wf.Reject(ctx, "admin-1", id); !errors.Is(err, ErrNotPending) {
		t.Fatalf("expected ErrNotPending on reject-after-approve, got %v", err)
	}
}

func TestWorkflow_RejectNeverTouchesVoter(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	f.seedVoter(t, "voter-1", "555-0100")

	id, err := f.wf.Submit(ctx, "user-1", "cand", "voter-1", roster.FieldPhone, "555-0199")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	r, err := f.wf.Reject(ctx, "admin-1", id)
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if r.Status != StatusRejected || r.ReviewerID != "admin-1" || r.ReviewedAt == nil {
		t.Fatalf("unexpected rejected request: %+v", r)
	}

	v, _ := f.rosterStore.GetVoter(ctx, "voter-1")
	if v.Phone != "555-0100" {
		t.Fatalf("reject mutated the voter: %q", v.Phone)
	}
}

func TestWorkflow_UnknownRequest(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if _, err := f.wf.Approve(context.Background(), "admin-1", "no-such-id"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := f.wf.Reject(context.Background(), "admin-1", "no-such-id"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestWorkflow_ConcurrentSubmits_OnePendingRow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	f.seedVoter(t, "voter-1", "555-0100")

	// Pre-resolve the candidate so the race is purely on the request row.
	if _, err := f.wf.Submit(ctx, "user-1", "cand", "voter-1", roster.FieldPhone, "seed"); err != nil {
		t.Fatalf("seed Submit: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			// Either submission may win; no error and no duplicate allowed.
			if _, err := f.wf.Submit(ctx, "user-1", "cand", "voter-1", roster.FieldPhone, "555-0199"); err != nil {
				t.Errorf("concurrent Submit: %v", err)
			}
		}(i)
	}
	wg.Wait()

	all, _ := f.store.ListAll(ctx)
	pending := 0
	for _, r := range all {
		if r.Status == StatusPending {
			pending++
		}
	}
	if pending != 1 {
		t.Fatalf("expected exactly one pending row, got %d (total %d)", pending, len(all))
	}
}

func TestWorkflow_ListForCandidate_Scoped(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	f.seedVoter(t, "voter-1", "555-0100")
	f.seedVoter(t, "voter-2", "555-0200")

	if _, err := f.wf.Submit(ctx, "user-1", "one", "voter-1", roster.FieldPhone, "a"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := f.wf.Submit(ctx, "user-2", "two", "voter-1", roster.FieldPresentLocation, "b"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := f.wf.Submit(ctx, "user-1", "one", "voter-2", roster.FieldPhone, "c"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	got, err := f.wf.ListForCandidate(ctx, "user-1", "voter-1")
	if err != nil {
		t.Fatalf("ListForCandidate: %v", err)
	}
	if len(got) != 1 || got[0].NewValue != "a" {
		t.Fatalf("expected only user-1's voter-1 request, got %+v", got)
	}

	// A user with no candidate profile has no requests, not an error.
	got, err = f.wf.ListForCandidate(ctx, "user-3", "voter-1")
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty listing for unknown candidate, got %v %v", got, err)
	}
}

func TestWorkflow_ListForAdmin_EnrichmentToleratesMissingJoins(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	f.seedVoter(t, "voter-1", "555-0100")

	id, err := f.wf.Submit(ctx, "user-1", "hassan", "voter-1", roster.FieldPhone, "555-0199")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	enriched, err := f.wf.ListForAdmin(ctx)
	if err != nil {
		t.Fatalf("ListForAdmin: %v", err)
	}
	if len(enriched) != 1 || enriched[0].ID != id {
		t.Fatalf("unexpected listing: %+v", enriched)
	}
	if enriched[0].VoterName != "Voter voter-1" || enriched[0].CandidateName != "hassan" {
		t.Fatalf("enrichment wrong: %+v", enriched[0])
	}

	// Deleting the voter must not break the listing; name degrades.
	if err := f.rosterStore.DeleteVoter(ctx, "voter-1"); err != nil {
		t.Fatalf("DeleteVoter: %v", err)
	}
	enriched, err = f.wf.ListForAdmin(ctx)
	if err != nil {
		t.Fatalf("ListForAdmin after delete: %v", err)
	}
	if len(enriched) != 1 || enriched[0].VoterName != "Unknown" {
		t.Fatalf("missing join not tolerated: %+v", enriched)
	}
}

func TestWorkflow_AuditTrail(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	f.seedVoter(t, "voter-1", "555-0100")

	id, _ := f.wf.Submit(ctx, "user-1", "cand", "voter-1", roster.FieldPhone, "x")
	f.wf.Approve(ctx, "admin-1", id)

	entries, err := f.auditStore.List(ctx, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 audit entries, got %d", len(entries))
	}
	if entries[0].Action != "edit_request.approved" || entries[1].Action != "edit_request.submitted" {
		t.Fatalf("unexpected audit actions: %+v", entries)
	}
}
