package types

import (
	"fmt"
	"math"
	"time"
)

// ScoreFactors are the four normalized criticality inputs for a data
// element. Each factor must be in [0, 1].
type ScoreFactors struct {
	RegulatoryImpact float64 `json:"regulatory_impact" yaml:"regulatory_impact"`
	FinancialImpact  float64 `json:"financial_impact" yaml:"financial_impact"`
	UsageBreadth     float64 `json:"usage_breadth" yaml:"usage_breadth"`
	DataSensitivity  float64 `json:"data_sensitivity" yaml:"data_sensitivity"`
}

// Validate checks that every factor is in [0, 1].
func (f ScoreFactors) Validate() error {
	for name, v := range map[string]float64{
		"regulatory_impact": f.RegulatoryImpact,
		"financial_impact":  f.FinancialImpact,
		"usage_breadth":     f.UsageBreadth,
		"data_sensitivity":  f.DataSensitivity,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("factor %s must be in [0,1] (got %v)", name, v)
		}
	}
	return nil
}

// ScoreWeights assign a weight per factor. Weights must sum to 1.
type ScoreWeights struct {
	RegulatoryImpact float64 `json:"regulatory_impact" yaml:"regulatory_impact"`
	FinancialImpact  float64 `json:"financial_impact" yaml:"financial_impact"`
	UsageBreadth     float64 `json:"usage_breadth" yaml:"usage_breadth"`
	DataSensitivity  float64 `json:"data_sensitivity" yaml:"data_sensitivity"`
}

// weightSumTolerance absorbs float accumulation error when validating
// that weights sum to 1.
const weightSumTolerance = 1e-9

// DefaultWeights returns the uniform weighting (0.25 per factor).
func DefaultWeights() ScoreWeights {
	return ScoreWeights{
		RegulatoryImpact: 0.25,
		FinancialImpact:  0.25,
		UsageBreadth:     0.25,
		DataSensitivity:  0.25,
	}
}

// Validate checks that the weights sum to 1.
func (w ScoreWeights) Validate() error {
	sum := w.RegulatoryImpact + w.FinancialImpact + w.UsageBreadth + w.DataSensitivity
	if math.Abs(sum-1) > weightSumTolerance {
		return fmt.Errorf("weights must sum to 1 (got %v)", sum)
	}
	return nil
}

// DataElement is a candidate for criticality scoring.
type DataElement struct {
	ID          string       `json:"id" yaml:"id"`
	Name        string       `json:"name" yaml:"name"`
	System      string       `json:"system,omitempty" yaml:"system,omitempty"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	Factors     ScoreFactors `json:"factors" yaml:"factors"`
}

// CDEScore is the deterministic weighted criticality score for one element.
type CDEScore struct {
	ElementID   string       `json:"element_id" yaml:"element_id"`
	ElementName string       `json:"element_name" yaml:"element_name"`
	Factors     ScoreFactors `json:"factors" yaml:"factors"`
	Weights     ScoreWeights `json:"weights" yaml:"weights"`
	Overall     float64      `json:"overall" yaml:"overall"`
	ScoredAt    time.Time    `json:"scored_at" yaml:"scored_at"`
}

// CDE is a critical data element included in the inventory.
type CDE struct {
	ID                   string    `json:"id" yaml:"id"`
	ElementID            string    `json:"element_id" yaml:"element_id"`
	Name                 string    `json:"name" yaml:"name"`
	Score                float64   `json:"score" yaml:"score"`
	CriticalityRationale string    `json:"criticality_rationale" yaml:"criticality_rationale"`
	AddedAt              time.Time `json:"added_at" yaml:"added_at"`
}

// Clone returns an independent copy of the CDE.
func (c *CDE) Clone() *CDE {
	if c == nil {
		return nil
	}
	out := *c
	return &out
}

// CDEInventory holds every element whose score met the inclusion threshold.
type CDEInventory struct {
	TenantID    string    `json:"tenant_id,omitempty" yaml:"tenant_id,omitempty"`
	Threshold   float64   `json:"threshold" yaml:"threshold"`
	Entries     []*CDE    `json:"entries" yaml:"entries"`
	GeneratedAt time.Time `json:"generated_at" yaml:"generated_at"`
}

// Contains returns true if the inventory includes the element.
func (inv *CDEInventory) Contains(elementID string) bool {
	for _, e := range inv.Entries {
		if e.ElementID == elementID {
			return true
		}
	}
	return false
}

// Clone returns an independent deep copy of the inventory.
func (inv *CDEInventory) Clone() *CDEInventory {
	if inv == nil {
		return nil
	}
	out := *inv
	out.Entries = make([]*CDE, len(inv.Entries))
	for i, e := range inv.Entries {
		out.Entries[i] = e.Clone()
	}
	return &out
}

// DQDimension is one of the seven orthogonal data quality dimensions.
type DQDimension string

// Data quality dimensions
const (
	DimCompleteness DQDimension = "completeness"
	DimAccuracy     DQDimension = "accuracy"
	DimValidity     DQDimension = "validity"
	DimConsistency  DQDimension = "consistency"
	DimTimeliness   DQDimension = "timeliness"
	DimUniqueness   DQDimension = "uniqueness"
	DimIntegrity    DQDimension = "integrity"
)

// AllDimensions returns the seven DQ dimensions in canonical order.
func AllDimensions() []DQDimension {
	return []DQDimension{
		DimCompleteness, DimAccuracy, DimValidity, DimConsistency,
		DimTimeliness, DimUniqueness, DimIntegrity,
	}
}

// IsValid checks if the dimension value is valid
func (d DQDimension) IsValid() bool {
	for _, dim := range AllDimensions() {
		if d == dim {
			return true
		}
	}
	return false
}

// RuleLogic describes how a DQ rule evaluates.
type RuleLogic struct {
	Type       string `json:"type" yaml:"type"`
	Expression string `json:"expression" yaml:"expression"`
}

// RuleThreshold is the pass bar for a DQ rule. Percentage thresholds carry
// a value in [0, 1].
type RuleThreshold struct {
	Type  string  `json:"type" yaml:"type"`
	Value float64 `json:"value" yaml:"value"`
}

// DQRule is a generated data quality rule bound to a CDE and dimension.
type DQRule struct {
	ID          string        `json:"id" yaml:"id"`
	CDEID       string        `json:"cde_id" yaml:"cde_id"`
	Name        string        `json:"name" yaml:"name"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	Dimension   DQDimension   `json:"dimension" yaml:"dimension"`
	Logic       RuleLogic     `json:"logic" yaml:"logic"`
	Threshold   RuleThreshold `json:"threshold" yaml:"threshold"`
	Severity    Severity      `json:"severity" yaml:"severity"`
	Owner       string        `json:"owner,omitempty" yaml:"owner,omitempty"`
	Enabled     bool          `json:"enabled" yaml:"enabled"`
	CreatedAt   time.Time     `json:"created_at" yaml:"created_at"`
}

// Validate checks rule field values.
func (r *DQRule) Validate() error {
	if r.CDEID == "" {
		return fmt.Errorf("cde_id is required")
	}
	if r.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !r.Dimension.IsValid() {
		return fmt.Errorf("invalid dimension: %s", r.Dimension)
	}
	if r.Threshold.Type == "percentage" && (r.Threshold.Value < 0 || r.Threshold.Value > 1) {
		return fmt.Errorf("percentage threshold must be in [0,1] (got %v)", r.Threshold.Value)
	}
	return nil
}

// Clone returns an independent copy of the rule.
func (r *DQRule) Clone() *DQRule {
	if r == nil {
		return nil
	}
	out := *r
	return &out
}
