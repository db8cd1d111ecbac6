// Package cde scores data elements for criticality, builds the CDE
// inventory and generates data quality rules over it.
package cde

import (
	"context"
	"fmt"
	"sort"

	"github.com/regsuite/governance/internal/auditchain"
	"github.com/regsuite/governance/internal/idgen"
	"github.com/regsuite/governance/internal/storage"
	"github.com/regsuite/governance/internal/tenant"
	"github.com/regsuite/governance/internal/types"
)

// Service scores elements and derives inventories and DQ rules. Scoring is
// a pure weighted sum: identical factors and weights always produce the
// same overall score.
type Service struct {
	store storage.Storage
	audit *auditchain.Store
	clock storage.Clock
}

// New creates a CDE service.
func New(store storage.Storage, audit *auditchain.Store) *Service {
	return &Service{store: store, audit: audit, clock: storage.RealClock{}}
}

// WithClock substitutes the clock, for tests.
func (s *Service) WithClock(clock storage.Clock) *Service {
	s.clock = clock
	return s
}

// ScoreElements computes the weighted criticality score for each element.
// A nil weights pointer selects the uniform default (0.25 per factor).
func (s *Service) ScoreElements(elements []*types.DataElement, weights *types.ScoreWeights) ([]*types.CDEScore, error) {
	w := types.DefaultWeights()
	if weights != nil {
		w = *weights
	}
	if err := w.Validate(); err != nil {
		return nil, fmt.Errorf("invalid weights: %w", err)
	}

	now := s.clock.Now()
	scores := make([]*types.CDEScore, 0, len(elements))
	for _, el := range elements {
		if err := el.Factors.Validate(); err != nil {
			return nil, fmt.Errorf("element %s: %w", el.ID, err)
		}
		scores = append(scores, &types.CDEScore{
			ElementID:   el.ID,
			ElementName: el.Name,
			Factors:     el.Factors,
			Weights:     w,
			Overall:     Score(el.Factors, w),
			ScoredAt:    now,
		})
	}
	return scores, nil
}

// Score is the deterministic weighted sum of the four factors.
func Score(f types.ScoreFactors, w types.ScoreWeights) float64 {
	return f.RegulatoryImpact*w.RegulatoryImpact +
		f.FinancialImpact*w.FinancialImpact +
		f.UsageBreadth*w.UsageBreadth +
		f.DataSensitivity*w.DataSensitivity
}

// GenerateInventory builds the inventory of elements whose overall score
// meets the threshold, persists it for the tenant and records the
// generation in the audit trail. Entries are ordered by descending score,
// ties by element id.
func (s *Service) GenerateInventory(ctx context.Context, scores []*types.CDEScore, threshold float64, includeRationale bool) (*types.CDEInventory, error) {
	now := s.clock.Now()
	inv := &types.CDEInventory{
		TenantID:    tenant.ID(ctx),
		Threshold:   threshold,
		GeneratedAt: now,
	}
	for _, sc := range scores {
		if sc.Overall < threshold {
			continue
		}
		entry := &types.CDE{
			ID:        idgen.NewAt("cde", now, sc.ElementID),
			ElementID: sc.ElementID,
			Name:      sc.ElementName,
			Score:     sc.Overall,
			AddedAt:   now,
		}
		if includeRationale {
			entry.CriticalityRationale = rationale(sc, threshold)
		}
		inv.Entries = append(inv.Entries, entry)
	}
	sort.Slice(inv.Entries, func(i, j int) bool {
		if inv.Entries[i].Score != inv.Entries[j].Score {
			return inv.Entries[i].Score > inv.Entries[j].Score
		}
		return inv.Entries[i].ElementID < inv.Entries[j].ElementID
	})

	if err := s.store.SaveInventory(ctx, inv); err != nil {
		return nil, err
	}
	if _, err := s.audit.Append(ctx, &types.AuditEntry{
		Actor:      tenant.Actor(ctx, ""),
		ActorType:  tenant.ActorType(ctx, types.ActorAgent),
		Action:     types.ActionInventoryGenerated,
		EntityType: "cde_inventory",
		EntityID:   inv.TenantID,
		NewState: map[string]any{
			"threshold":       threshold,
			"candidate_count": len(scores),
			"included_count":  len(inv.Entries),
		},
	}); err != nil {
		return nil, err
	}
	return inv, nil
}

// rationale names the factors that pushed the element over the bar. Always
// non-empty for an included element.
func rationale(sc *types.CDEScore, threshold float64) string {
	type factor struct {
		name  string
		value float64
	}
	factors := []factor{
		{"regulatory impact", sc.Factors.RegulatoryImpact},
		{"financial impact", sc.Factors.FinancialImpact},
		{"usage breadth", sc.Factors.UsageBreadth},
		{"data sensitivity", sc.Factors.DataSensitivity},
	}
	sort.SliceStable(factors, func(i, j int) bool { return factors[i].value > factors[j].value })
	return fmt.Sprintf("overall score %.3f meets threshold %.3f; strongest factors: %s (%.2f), %s (%.2f)",
		sc.Overall, threshold, factors[0].name, factors[0].value, factors[1].name, factors[1].value)
}

// dimensionTemplates drive rule generation. Percentage thresholds are
// expressed as fractions in [0, 1].
var dimensionTemplates = map[types.DQDimension]struct {
	logicType  string
	expression string
	threshold  float64
	severity   types.Severity
}{
	types.DimCompleteness: {"null_check", "count(value is not null) / count(*)", 0.99, types.SeverityHigh},
	types.DimAccuracy:     {"reference_match", "count(value matches source_of_record) / count(*)", 0.98, types.SeverityHigh},
	types.DimValidity:     {"format_check", "count(value matches domain_format) / count(*)", 0.99, types.SeverityMedium},
	types.DimConsistency:  {"cross_system_check", "count(value consistent across systems) / count(*)", 0.97, types.SeverityMedium},
	types.DimTimeliness:   {"freshness_check", "max(now - last_updated) <= sla_window", 0.95, types.SeverityMedium},
	types.DimUniqueness:   {"duplicate_check", "count(distinct key) / count(*)", 1.0, types.SeverityHigh},
	types.DimIntegrity:    {"referential_check", "count(foreign key resolves) / count(*)", 0.99, types.SeverityHigh},
}

// GenerateDQRules emits one enabled rule per requested dimension for the
// CDE. A nil dimensions slice selects all seven. Custom thresholds override
// the per-dimension defaults. Rules are persisted and the generation is
// audited.
func (s *Service) GenerateDQRules(ctx context.Context, cdeID, cdeName string, dimensions []types.DQDimension, customThresholds map[types.DQDimension]float64, owner string) ([]*types.DQRule, error) {
	if cdeID == "" {
		return nil, fmt.Errorf("cde id is required")
	}
	if len(dimensions) == 0 {
		dimensions = types.AllDimensions()
	}

	now := s.clock.Now()
	rules := make([]*types.DQRule, 0, len(dimensions))
	for _, dim := range dimensions {
		tmpl, ok := dimensionTemplates[dim]
		if !ok {
			return nil, fmt.Errorf("unknown dimension: %s", dim)
		}
		value := tmpl.threshold
		if custom, ok := customThresholds[dim]; ok {
			value = custom
		}
		rule := &types.DQRule{
			ID:          idgen.NewAt("dqr", now, cdeID, string(dim)),
			CDEID:       cdeID,
			Name:        fmt.Sprintf("%s %s check", cdeName, dim),
			Description: fmt.Sprintf("Verifies %s of %s: %s", dim, cdeName, tmpl.expression),
			Dimension:   dim,
			Logic:       types.RuleLogic{Type: tmpl.logicType, Expression: tmpl.expression},
			Threshold:   types.RuleThreshold{Type: "percentage", Value: value},
			Severity:    tmpl.severity,
			Owner:       owner,
			Enabled:     true,
			CreatedAt:   now,
		}
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("dimension %s: %w", dim, err)
		}
		rules = append(rules, rule)
	}

	if err := s.store.SaveDQRules(ctx, rules); err != nil {
		return nil, err
	}
	if _, err := s.audit.Append(ctx, &types.AuditEntry{
		Actor:      tenant.Actor(ctx, owner),
		ActorType:  tenant.ActorType(ctx, types.ActorAgent),
		Action:     types.ActionDQRulesGenerated,
		EntityType: "dq_rule_set",
		EntityID:   cdeID,
		NewState: map[string]any{
			"rule_count": len(rules),
			"dimensions": dimensionNames(dimensions),
		},
	}); err != nil {
		return nil, err
	}
	return rules, nil
}

func dimensionNames(dims []types.DQDimension) []string {
	out := make([]string, len(dims))
	for i, d := range dims {
		out[i] = string(d)
	}
	return out
}

// Inventory returns the tenant's current inventory.
func (s *Service) Inventory(ctx context.Context) (*types.CDEInventory, error) {
	return s.store.GetInventory(ctx)
}
