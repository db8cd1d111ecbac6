package cde

import (
	"context"
	"testing"

	"github.com/regsuite/governance/internal/auditchain"
	"github.com/regsuite/governance/internal/storage/memory"
	"github.com/regsuite/governance/internal/tenant"
	"github.com/regsuite/governance/internal/types"
)

func newTestService(t *testing.T) (*Service, *auditchain.Store, context.Context) {
	t.Helper()
	audit := auditchain.NewStore()
	ctx := tenant.WithBinding(context.Background(), tenant.NewBinding("acme", "cde-agent", types.ActorAgent))
	return New(memory.New(), audit), audit, ctx
}

func elem(id string, reg, fin, usage, sens float64) *types.DataElement {
	return &types.DataElement{
		ID:   id,
		Name: "element " + id,
		Factors: types.ScoreFactors{
			RegulatoryImpact: reg,
			FinancialImpact:  fin,
			UsageBreadth:     usage,
			DataSensitivity:  sens,
		},
	}
}

func TestScoreElements_Deterministic(t *testing.T) {
	s, _, _ := newTestService(t)
	elements := []*types.DataElement{elem("bal", 0.9, 0.8, 0.7, 0.6)}

	first, err := s.ScoreElements(elements, nil)
	if err != nil {
		t.Fatalf("ScoreElements: %v", err)
	}
	second, err := s.ScoreElements(elements, nil)
	if err != nil {
		t.Fatalf("ScoreElements: %v", err)
	}
	if first[0].Overall != second[0].Overall {
		t.Errorf("same factors must give bit-identical scores: %v != %v", first[0].Overall, second[0].Overall)
	}
	want := 0.9*0.25 + 0.8*0.25 + 0.7*0.25 + 0.6*0.25
	if first[0].Overall != want {
		t.Errorf("score = %v, want %v", first[0].Overall, want)
	}
}

func TestScoreElements_CustomWeights(t *testing.T) {
	s, _, _ := newTestService(t)
	w := &types.ScoreWeights{RegulatoryImpact: 0.7, FinancialImpact: 0.1, UsageBreadth: 0.1, DataSensitivity: 0.1}

	scores, err := s.ScoreElements([]*types.DataElement{elem("lei", 1.0, 0, 0, 0)}, w)
	if err != nil {
		t.Fatalf("ScoreElements: %v", err)
	}
	if scores[0].Overall != 0.7 {
		t.Errorf("score = %v, want 0.7", scores[0].Overall)
	}

	bad := &types.ScoreWeights{RegulatoryImpact: 0.5, FinancialImpact: 0.5, UsageBreadth: 0.5, DataSensitivity: 0.5}
	if _, err := s.ScoreElements(nil, bad); err == nil {
		t.Error("weights not summing to 1 should be rejected")
	}
}

func TestScoreElements_RejectsOutOfRangeFactor(t *testing.T) {
	s, _, _ := newTestService(t)
	if _, err := s.ScoreElements([]*types.DataElement{elem("bad", 1.5, 0, 0, 0)}, nil); err == nil {
		t.Error("factor above 1 should be rejected")
	}
}

func TestGenerateInventory_ThresholdInclusion(t *testing.T) {
	s, audit, ctx := newTestService(t)

	scores, err := s.ScoreElements([]*types.DataElement{
		elem("hi", 0.9, 0.9, 0.9, 0.9),   // 0.9
		elem("mid", 0.7, 0.7, 0.7, 0.7),  // 0.7
		elem("edge", 0.7, 0.7, 0.7, 0.7), // exactly at threshold
		elem("low", 0.2, 0.2, 0.2, 0.2),  // 0.2
	}, nil)
	if err != nil {
		t.Fatalf("ScoreElements: %v", err)
	}

	inv, err := s.GenerateInventory(ctx, scores, 0.7, true)
	if err != nil {
		t.Fatalf("GenerateInventory: %v", err)
	}
	if len(inv.Entries) != 3 {
		t.Fatalf("inventory has %d entries, want 3 (score >= threshold inclusive)", len(inv.Entries))
	}
	if inv.Entries[0].ElementID != "hi" {
		t.Errorf("entries should be ordered by descending score, got %s first", inv.Entries[0].ElementID)
	}
	if !inv.Contains("edge") {
		t.Error("element scoring exactly the threshold must be included")
	}
	if inv.Contains("low") {
		t.Error("element below threshold must not be included")
	}
	for _, e := range inv.Entries {
		if e.CriticalityRationale == "" {
			t.Errorf("entry %s missing criticality rationale", e.ElementID)
		}
	}

	stored, err := s.Inventory(ctx)
	if err != nil {
		t.Fatalf("Inventory: %v", err)
	}
	if len(stored.Entries) != 3 {
		t.Errorf("persisted inventory has %d entries, want 3", len(stored.Entries))
	}

	entries, err := audit.List(ctx, types.AuditFilter{Action: types.ActionInventoryGenerated})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 inventory audit entry, got %d", len(entries))
	}
	if entries[0].NewState["included_count"] != 3 {
		t.Errorf("included_count = %v, want 3", entries[0].NewState["included_count"])
	}
}

func TestGenerateDQRules_AllDimensions(t *testing.T) {
	s, audit, ctx := newTestService(t)

	rules, err := s.GenerateDQRules(ctx, "cde-1", "Total Assets", nil, nil, "dq-team")
	if err != nil {
		t.Fatalf("GenerateDQRules: %v", err)
	}
	if len(rules) != 7 {
		t.Fatalf("got %d rules, want one per dimension (7)", len(rules))
	}

	seenDim := make(map[types.DQDimension]bool)
	seenID := make(map[string]bool)
	for _, r := range rules {
		if seenDim[r.Dimension] {
			t.Errorf("dimension %s emitted twice", r.Dimension)
		}
		seenDim[r.Dimension] = true
		if seenID[r.ID] {
			t.Errorf("duplicate rule id %s", r.ID)
		}
		seenID[r.ID] = true
		if !r.Enabled {
			t.Errorf("rule %s should be enabled", r.ID)
		}
		if r.Name == "" || r.Description == "" {
			t.Errorf("rule %s missing name or description", r.ID)
		}
		if r.Logic.Type == "" || r.Logic.Expression == "" {
			t.Errorf("rule %s missing logic", r.ID)
		}
		if r.Threshold.Type == "percentage" && (r.Threshold.Value < 0 || r.Threshold.Value > 1) {
			t.Errorf("rule %s percentage threshold %v out of range", r.ID, r.Threshold.Value)
		}
		if r.Owner != "dq-team" {
			t.Errorf("rule %s owner = %s", r.ID, r.Owner)
		}
	}

	entries, err := audit.List(ctx, types.AuditFilter{Action: types.ActionDQRulesGenerated})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 rule-generation audit entry, got %d", len(entries))
	}
}

func TestGenerateDQRules_SubsetAndCustomThreshold(t *testing.T) {
	s, _, ctx := newTestService(t)

	rules, err := s.GenerateDQRules(ctx, "cde-2", "Counterparty LEI",
		[]types.DQDimension{types.DimCompleteness, types.DimUniqueness},
		map[types.DQDimension]float64{types.DimCompleteness: 0.995},
		"")
	if err != nil {
		t.Fatalf("GenerateDQRules: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("got %d rules, want 2", len(rules))
	}
	if rules[0].Dimension != types.DimCompleteness || rules[0].Threshold.Value != 0.995 {
		t.Errorf("custom threshold not applied: %+v", rules[0].Threshold)
	}
	if rules[1].Dimension != types.DimUniqueness {
		t.Errorf("second rule dimension = %s", rules[1].Dimension)
	}
}

func TestGenerateDQRules_UnknownDimension(t *testing.T) {
	s, _, ctx := newTestService(t)
	if _, err := s.GenerateDQRules(ctx, "cde-3", "X", []types.DQDimension{"plausibility"}, nil, ""); err == nil {
		t.Error("unknown dimension should be rejected")
	}
}
