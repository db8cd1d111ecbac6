package types

import (
	"fmt"
	"time"
)

// Severity ranks how serious an issue is
type Severity string

// Issue severity constants
const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Severities lists all severities from most to least severe.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

// IsValid checks if the severity value is valid
func (s Severity) IsValid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// IssueStatus represents the current state of a data governance issue
type IssueStatus string

// Issue status constants
const (
	IssueOpen                IssueStatus = "open"
	IssueInProgress          IssueStatus = "in_progress"
	IssuePendingVerification IssueStatus = "pending_verification"
	IssueResolved            IssueStatus = "resolved"
	IssueClosed              IssueStatus = "closed"
)

// IsValid checks if the status value is valid
func (s IssueStatus) IsValid() bool {
	switch s {
	case IssueOpen, IssueInProgress, IssuePendingVerification, IssueResolved, IssueClosed:
		return true
	}
	return false
}

// IsOpen returns true for statuses that count toward open-issue metrics.
func (s IssueStatus) IsOpen() bool {
	switch s {
	case IssueOpen, IssueInProgress, IssuePendingVerification:
		return true
	}
	return false
}

// Resolution records how an issue was fixed and by whom. The verifier must
// differ from the implementer (four-eyes).
type Resolution struct {
	Type          string    `json:"type" yaml:"type"`
	Description   string    `json:"description,omitempty" yaml:"description,omitempty"`
	ImplementedBy string    `json:"implemented_by" yaml:"implemented_by"`
	ImplementedAt time.Time `json:"implemented_at" yaml:"implemented_at"`
	VerifiedBy    string    `json:"verified_by" yaml:"verified_by"`
	VerifiedAt    time.Time `json:"verified_at" yaml:"verified_at"`
}

// Issue represents a data governance issue impacting reports or CDEs.
type Issue struct {
	ID              string      `json:"id" yaml:"id"`
	Title           string      `json:"title" yaml:"title"`
	Description     string      `json:"description,omitempty" yaml:"description,omitempty"`
	Severity        Severity    `json:"severity" yaml:"severity"`
	Status          IssueStatus `json:"status" yaml:"status"`
	ImpactedReports []string    `json:"impacted_reports,omitempty" yaml:"impacted_reports,omitempty"`
	ImpactedCDEs    []string    `json:"impacted_cdes,omitempty" yaml:"impacted_cdes,omitempty"`
	EscalationLevel int         `json:"escalation_level,omitempty" yaml:"escalation_level,omitempty"`
	EscalatedAt     *time.Time  `json:"escalated_at,omitempty" yaml:"escalated_at,omitempty"`
	Resolution      *Resolution `json:"resolution,omitempty" yaml:"resolution,omitempty"`
	CreatedBy       string      `json:"created_by,omitempty" yaml:"created_by,omitempty"`
	CreatedAt       time.Time   `json:"created_at" yaml:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at" yaml:"updated_at"`
}

// Impacts returns true if the issue names the report in its impacted set.
func (i *Issue) Impacts(reportID string) bool {
	for _, r := range i.ImpactedReports {
		if r == reportID {
			return true
		}
	}
	return false
}

// Validate checks issue field values and the four-eyes invariant: an issue
// in resolved or closed state must carry a resolution whose verifier differs
// from its implementer.
func (i *Issue) Validate() error {
	if i.Title == "" {
		return fmt.Errorf("title is required")
	}
	if !i.Severity.IsValid() {
		return fmt.Errorf("invalid severity: %s", i.Severity)
	}
	if !i.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", i.Status)
	}
	if i.Status == IssueResolved || i.Status == IssueClosed {
		if i.Resolution == nil {
			return fmt.Errorf("%s issues must have a resolution", i.Status)
		}
		if i.Resolution.VerifiedBy == i.Resolution.ImplementedBy {
			return fmt.Errorf("resolution verifier must differ from implementer")
		}
	}
	if i.EscalationLevel < 0 {
		return fmt.Errorf("escalation_level cannot be negative")
	}
	return nil
}

// SetDefaults applies default values for fields omitted at creation time.
func (i *Issue) SetDefaults() {
	if i.Status == "" {
		i.Status = IssueOpen
	}
	if i.Severity == "" {
		i.Severity = SeverityMedium
	}
}

// Clone returns an independent deep copy of the issue.
func (i *Issue) Clone() *Issue {
	if i == nil {
		return nil
	}
	out := *i
	out.ImpactedReports = append([]string(nil), i.ImpactedReports...)
	out.ImpactedCDEs = append([]string(nil), i.ImpactedCDEs...)
	if i.EscalatedAt != nil {
		t := *i.EscalatedAt
		out.EscalatedAt = &t
	}
	if i.Resolution != nil {
		r := *i.Resolution
		out.Resolution = &r
	}
	return &out
}

// IssueFilter is used to filter issue queries. Fields combine conjunctively;
// nil fields match any value.
type IssueFilter struct {
	Status         *IssueStatus
	Severity       *Severity
	ImpactedReport *string // issue must name this report in its impacted set
	ImpactedCDE    *string
	OpenOnly       bool // restrict to open/in_progress/pending_verification
	CreatedAfter   *time.Time
	CreatedBefore  *time.Time
	Limit          int
}

// Matches reports whether the issue satisfies every set filter field.
func (f *IssueFilter) Matches(i *Issue) bool {
	if f.Status != nil && i.Status != *f.Status {
		return false
	}
	if f.Severity != nil && i.Severity != *f.Severity {
		return false
	}
	if f.ImpactedReport != nil && !i.Impacts(*f.ImpactedReport) {
		return false
	}
	if f.ImpactedCDE != nil {
		found := false
		for _, c := range i.ImpactedCDEs {
			if c == *f.ImpactedCDE {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.OpenOnly && !i.Status.IsOpen() {
		return false
	}
	if f.CreatedAfter != nil && i.CreatedAt.Before(*f.CreatedAfter) {
		return false
	}
	if f.CreatedBefore != nil && i.CreatedAt.After(*f.CreatedBefore) {
		return false
	}
	return true
}

// IssueMetrics provides aggregate issue statistics.
type IssueMetrics struct {
	OpenCount         int              `json:"open_count"`
	OpenBySeverity    map[Severity]int `json:"open_by_severity"`
	ResolvedCount     int              `json:"resolved_count"`
	TotalCount        int              `json:"total_count"`
	AvgResolutionTime time.Duration    `json:"avg_resolution_time"`
}
