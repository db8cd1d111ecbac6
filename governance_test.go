package governance_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/regsuite/governance"
)

func TestNewMemoryStorage(t *testing.T) {
	store := governance.NewMemoryStorage()
	if store == nil {
		t.Fatal("expected non-nil storage")
	}
	defer store.Close()

	ctx := governance.WithBinding(context.Background(), governance.NewBinding("acme", "reviewer"))
	catalog, err := store.GetCatalog(ctx)
	if err != nil {
		t.Fatalf("GetCatalog failed: %v", err)
	}
	if catalog.TenantID != "acme" {
		t.Errorf("catalog tenant = %q, want %q", catalog.TenantID, "acme")
	}
	if catalog.Status != governance.CatalogDraft {
		t.Errorf("new catalog status = %q, want %q", catalog.Status, governance.CatalogDraft)
	}
}

func TestTenantPartitioning(t *testing.T) {
	store := governance.NewMemoryStorage()
	defer store.Close()

	ctxA := governance.WithBinding(context.Background(), governance.NewBinding("bank-a", "ops"))
	ctxB := governance.WithBinding(context.Background(), governance.NewBinding("bank-b", "ops"))

	catalog, err := store.GetCatalog(ctxA)
	if err != nil {
		t.Fatalf("GetCatalog failed: %v", err)
	}
	catalog.Reports = append(catalog.Reports, &governance.RegulatoryReport{
		ID:   "rpt-1",
		Name: "Capital adequacy",
	})
	if err := store.SaveCatalog(ctxA, catalog); err != nil {
		t.Fatalf("SaveCatalog failed: %v", err)
	}

	other, err := store.GetCatalog(ctxB)
	if err != nil {
		t.Fatalf("GetCatalog failed: %v", err)
	}
	if len(other.Reports) != 0 {
		t.Errorf("tenant bank-b sees %d reports from bank-a", len(other.Reports))
	}
}

func TestFindGovernanceDir(t *testing.T) {
	tmpDir := t.TempDir()
	govDir := filepath.Join(tmpDir, ".governance")
	if err := os.MkdirAll(govDir, 0755); err != nil {
		t.Fatalf("failed to create .governance dir: %v", err)
	}
	nested := filepath.Join(tmpDir, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatalf("failed to create nested dir: %v", err)
	}

	origDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working dir: %v", err)
	}
	if err := os.Chdir(nested); err != nil {
		t.Fatalf("failed to chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(origDir) })
	got := governance.FindGovernanceDir()
	// Resolve symlinks; t.TempDir can sit behind one on some platforms.
	want, _ := filepath.EvalSymlinks(govDir)
	gotResolved, _ := filepath.EvalSymlinks(got)
	if gotResolved != want {
		t.Errorf("FindGovernanceDir() = %s, want %s", got, want)
	}
}

// Test that exported constants have correct values
func TestConstants(t *testing.T) {
	if governance.CatalogDraft != "draft" {
		t.Errorf("CatalogDraft = %q, want %q", governance.CatalogDraft, "draft")
	}
	if governance.CatalogApproved != "approved" {
		t.Errorf("CatalogApproved = %q, want %q", governance.CatalogApproved, "approved")
	}
	if governance.CycleActive != "active" {
		t.Errorf("CycleActive = %q, want %q", governance.CycleActive, "active")
	}
	if governance.CycleCompleted != "completed" {
		t.Errorf("CycleCompleted = %q, want %q", governance.CycleCompleted, "completed")
	}
	if governance.SeverityCritical != "critical" {
		t.Errorf("SeverityCritical = %q, want %q", governance.SeverityCritical, "critical")
	}
	if governance.IssuePendingVerification != "pending_verification" {
		t.Errorf("IssuePendingVerification = %q, want %q",
			governance.IssuePendingVerification, "pending_verification")
	}
}
