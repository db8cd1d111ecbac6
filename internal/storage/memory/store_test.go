package memory

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/regsuite/governance/internal/storage"
	"github.com/regsuite/governance/internal/tenant"
	"github.com/regsuite/governance/internal/types"
)

func newIssue(id string, sev types.Severity) *types.Issue {
	return &types.Issue{
		ID:        id,
		Title:     "issue " + id,
		Severity:  sev,
		Status:    types.IssueOpen,
		CreatedAt: time.Now().UTC(),
	}
}

func TestCreateIssue_RejectsDuplicates(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.CreateIssue(ctx, newIssue("iss-1", types.SeverityHigh)); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := s.CreateIssue(ctx, newIssue("iss-1", types.SeverityLow))
	if !errors.Is(err, storage.ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
}

func TestGetIssue_ReturnsDefensiveCopy(t *testing.T) {
	s := New()
	ctx := context.Background()

	orig := newIssue("iss-1", types.SeverityHigh)
	orig.ImpactedReports = []string{"r1"}
	if err := s.CreateIssue(ctx, orig); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.GetIssue(ctx, "iss-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got.Title = "mutated"
	got.ImpactedReports[0] = "r9"

	again, err := s.GetIssue(ctx, "iss-1")
	if err != nil {
		t.Fatalf("get again: %v", err)
	}
	if again.Title != "issue iss-1" {
		t.Errorf("stored title mutated through returned copy: %q", again.Title)
	}
	if again.ImpactedReports[0] != "r1" {
		t.Errorf("stored slice mutated through returned copy: %v", again.ImpactedReports)
	}
}

func TestGetIssue_NotFound(t *testing.T) {
	s := New()
	_, err := s.GetIssue(context.Background(), "nope")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSearchIssues_ConjunctiveFilters(t *testing.T) {
	s := New()
	ctx := context.Background()

	critical := newIssue("iss-1", types.SeverityCritical)
	critical.ImpactedReports = []string{"r1"}
	high := newIssue("iss-2", types.SeverityHigh)
	high.ImpactedReports = []string{"r1"}
	resolved := newIssue("iss-3", types.SeverityCritical)
	resolved.Status = types.IssueClosed
	resolved.Resolution = &types.Resolution{Type: "fix", ImplementedBy: "a", VerifiedBy: "b"}

	for _, i := range []*types.Issue{critical, high, resolved} {
		if err := s.CreateIssue(ctx, i); err != nil {
			t.Fatalf("create %s: %v", i.ID, err)
		}
	}

	sev := types.SeverityCritical
	r1 := "r1"
	got, err := s.SearchIssues(ctx, types.IssueFilter{Severity: &sev, ImpactedReport: &r1, OpenOnly: true})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 || got[0].ID != "iss-1" {
		t.Fatalf("expected [iss-1], got %d results", len(got))
	}

	// A filter matching nothing returns an empty list, not an error.
	r9 := "r9"
	got, err = s.SearchIssues(ctx, types.IssueFilter{ImpactedReport: &r9})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty result, got %d", len(got))
	}
}

func TestTenantIsolation(t *testing.T) {
	s := New()
	ctxA := tenant.WithBinding(context.Background(), tenant.NewBinding("acme", "alice", types.ActorHuman))
	ctxB := tenant.WithBinding(context.Background(), tenant.NewBinding("globex", "bob", types.ActorHuman))

	if err := s.CreateIssue(ctxA, newIssue("iss-1", types.SeverityHigh)); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := s.GetIssue(ctxB, "iss-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("tenant globex should not see acme's issue, got %v", err)
	}
	if _, err := s.GetIssue(ctxA, "iss-1"); err != nil {
		t.Fatalf("tenant acme should see its own issue: %v", err)
	}
}

func TestGetCatalog_DefaultsToDraftSingleton(t *testing.T) {
	s := New()
	cat, err := s.GetCatalog(context.Background())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if cat.Status != types.CatalogDraft || cat.Version != 1 {
		t.Fatalf("fresh catalog = %s v%d, want draft v1", cat.Status, cat.Version)
	}
}

func TestCycleCRUD(t *testing.T) {
	s := New()
	ctx := context.Background()

	cycle := &types.CycleInstance{
		ID:           "cyc-1",
		ReportID:     "r1",
		Status:       types.CycleActive,
		CurrentPhase: types.PhaseDataGathering,
		StartedAt:    time.Now().UTC(),
	}
	if err := s.CreateCycle(ctx, cycle); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateCycle(ctx, cycle); !errors.Is(err, storage.ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}

	cycle.Status = types.CyclePaused
	if err := s.UpdateCycle(ctx, cycle); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := s.GetCycle(ctx, "cyc-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != types.CyclePaused {
		t.Errorf("status = %s, want paused", got.Status)
	}

	paused := types.CyclePaused
	list, err := s.ListCycles(ctx, storage.CycleFilter{ReportID: "r1", Status: &paused})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 cycle, got %d", len(list))
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := New()
	ctx := tenant.WithBinding(context.Background(), tenant.NewBinding("acme", "alice", types.ActorHuman))

	if err := s.CreateIssue(ctx, newIssue("iss-1", types.SeverityCritical)); err != nil {
		t.Fatalf("create issue: %v", err)
	}
	if err := s.SaveCatalog(ctx, &types.ReportCatalog{
		TenantID: "acme",
		Version:  2,
		Status:   types.CatalogApproved,
		Reports:  []*types.RegulatoryReport{{ID: "r1", Name: "FR Y-9C", Jurisdiction: types.JurisdictionUS}},
	}); err != nil {
		t.Fatalf("save catalog: %v", err)
	}

	path := filepath.Join(t.TempDir(), "snapshot.yaml")
	if err := s.SaveSnapshot(path); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}

	restored := New()
	if err := restored.LoadSnapshot(path); err != nil {
		t.Fatalf("load snapshot: %v", err)
	}

	issue, err := restored.GetIssue(ctx, "iss-1")
	if err != nil {
		t.Fatalf("get issue after load: %v", err)
	}
	if issue.Severity != types.SeverityCritical {
		t.Errorf("severity = %s, want critical", issue.Severity)
	}
	cat, err := restored.GetCatalog(ctx)
	if err != nil {
		t.Fatalf("get catalog after load: %v", err)
	}
	if cat.Status != types.CatalogApproved || len(cat.Reports) != 1 {
		t.Errorf("catalog = %s with %d reports, want approved with 1", cat.Status, len(cat.Reports))
	}
}
