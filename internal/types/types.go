// Package types defines core data structures for the governance engine.
package types

import (
	"fmt"
	"time"
)

// Jurisdiction identifies the regulatory jurisdiction a report belongs to.
type Jurisdiction string

// Supported jurisdictions
const (
	JurisdictionUS Jurisdiction = "US"
	JurisdictionCA Jurisdiction = "CA"
)

// IsValid checks if the jurisdiction value is valid
func (j Jurisdiction) IsValid() bool {
	switch j {
	case JurisdictionUS, JurisdictionCA:
		return true
	}
	return false
}

// RegulatoryReport describes one recurring regulatory filing obligation.
// Reports are immutable once a cycle references them; mutations go through
// the catalog, which rejects changes to referenced reports.
type RegulatoryReport struct {
	ID              string       `json:"id" yaml:"id"`
	Name            string       `json:"name" yaml:"name"`
	Jurisdiction    Jurisdiction `json:"jurisdiction" yaml:"jurisdiction"`
	Regulator       string       `json:"regulator" yaml:"regulator"`
	Frequency       string       `json:"frequency,omitempty" yaml:"frequency,omitempty"`
	DueDateRule     string       `json:"due_date_rule,omitempty" yaml:"due_date_rule,omitempty"`
	ResponsibleUnit string       `json:"responsible_unit,omitempty" yaml:"responsible_unit,omitempty"`
	LastUpdated     time.Time    `json:"last_updated" yaml:"last_updated"`
}

// Validate checks if the report has valid field values
func (r *RegulatoryReport) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !r.Jurisdiction.IsValid() {
		return fmt.Errorf("invalid jurisdiction: %s", r.Jurisdiction)
	}
	return nil
}

// Clone returns an independent copy of the report.
func (r *RegulatoryReport) Clone() *RegulatoryReport {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// CatalogStatus represents the review state of a report catalog
type CatalogStatus string

// Catalog status constants
const (
	CatalogDraft         CatalogStatus = "draft"
	CatalogPendingReview CatalogStatus = "pending_review"
	CatalogApproved      CatalogStatus = "approved"
	CatalogRejected      CatalogStatus = "rejected"
)

// IsValid checks if the catalog status value is valid
func (s CatalogStatus) IsValid() bool {
	switch s {
	case CatalogDraft, CatalogPendingReview, CatalogApproved, CatalogRejected:
		return true
	}
	return false
}

// ReportCatalog is the singleton-per-tenant aggregate of regulatory reports.
// A catalog must be approved before any report cycle can start. Any mutation
// of an approved catalog resets it to draft and clears the approval metadata.
type ReportCatalog struct {
	TenantID   string              `json:"tenant_id,omitempty" yaml:"tenant_id,omitempty"`
	Version    int                 `json:"version" yaml:"version"`
	Status     CatalogStatus       `json:"status" yaml:"status"`
	Reports    []*RegulatoryReport `json:"reports" yaml:"reports"`
	ApprovedBy string              `json:"approved_by,omitempty" yaml:"approved_by,omitempty"`
	ApprovedAt *time.Time          `json:"approved_at,omitempty" yaml:"approved_at,omitempty"`
	UpdatedAt  time.Time           `json:"updated_at" yaml:"updated_at"`
}

// Report returns the report with the given id, or nil.
func (c *ReportCatalog) Report(id string) *RegulatoryReport {
	for _, r := range c.Reports {
		if r.ID == id {
			return r
		}
	}
	return nil
}

// Clone returns an independent deep copy of the catalog.
func (c *ReportCatalog) Clone() *ReportCatalog {
	if c == nil {
		return nil
	}
	out := *c
	out.Reports = make([]*RegulatoryReport, len(c.Reports))
	for i, r := range c.Reports {
		out.Reports[i] = r.Clone()
	}
	if c.ApprovedAt != nil {
		t := *c.ApprovedAt
		out.ApprovedAt = &t
	}
	return &out
}

// CycleStatus represents the run state of a report cycle
type CycleStatus string

// Cycle status constants
const (
	CycleActive    CycleStatus = "active"
	CyclePaused    CycleStatus = "paused"
	CycleCompleted CycleStatus = "completed"
	CycleFailed    CycleStatus = "failed"
)

// IsValid checks if the cycle status value is valid
func (s CycleStatus) IsValid() bool {
	switch s {
	case CycleActive, CyclePaused, CycleCompleted, CycleFailed:
		return true
	}
	return false
}

// IsTerminal returns true if no further transitions are allowed from s.
func (s CycleStatus) IsTerminal() bool {
	return s == CycleCompleted || s == CycleFailed
}

// CyclePhase identifies one phase in the report cycle pipeline
type CyclePhase string

// Cycle phases, in pipeline order
const (
	PhaseDataGathering CyclePhase = "data_gathering"
	PhaseValidation    CyclePhase = "validation"
	PhaseReview        CyclePhase = "review"
	PhaseApproval      CyclePhase = "approval"
	PhaseSubmission    CyclePhase = "submission"
)

// PhaseOrder lists the cycle phases in pipeline order. The current phase may
// only ever advance to the next entry in this slice.
var PhaseOrder = []CyclePhase{
	PhaseDataGathering,
	PhaseValidation,
	PhaseReview,
	PhaseApproval,
	PhaseSubmission,
}

// Index returns the position of the phase in the pipeline, or -1.
func (p CyclePhase) Index() int {
	for i, ph := range PhaseOrder {
		if ph == p {
			return i
		}
	}
	return -1
}

// IsValid checks if the phase value is valid
func (p CyclePhase) IsValid() bool {
	return p.Index() >= 0
}

// Next returns the phase after p, or "" if p is the last phase.
func (p CyclePhase) Next() CyclePhase {
	i := p.Index()
	if i < 0 || i == len(PhaseOrder)-1 {
		return ""
	}
	return PhaseOrder[i+1]
}

// Reached returns true if p is at or past the given phase in pipeline order.
func (p CyclePhase) Reached(other CyclePhase) bool {
	return p.Index() >= other.Index()
}

// CheckpointStatus represents the completion state of a phase checkpoint
type CheckpointStatus string

// Checkpoint status constants
const (
	CheckpointPending   CheckpointStatus = "pending"
	CheckpointCompleted CheckpointStatus = "completed"
)

// Checkpoint is the per-phase approval set whose closure gates advancement.
type Checkpoint struct {
	Phase              CyclePhase       `json:"phase" yaml:"phase"`
	RequiredApprovals  []string         `json:"required_approvals" yaml:"required_approvals"`
	CompletedApprovals []string         `json:"completed_approvals,omitempty" yaml:"completed_approvals,omitempty"`
	Status             CheckpointStatus `json:"status" yaml:"status"`
	CompletedAt        *time.Time       `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
}

// HasApproval returns true if the role is in the completed set.
func (cp *Checkpoint) HasApproval(role string) bool {
	for _, r := range cp.CompletedApprovals {
		if r == role {
			return true
		}
	}
	return false
}

// Requires returns true if the role is in the required set.
func (cp *Checkpoint) Requires(role string) bool {
	for _, r := range cp.RequiredApprovals {
		if r == role {
			return true
		}
	}
	return false
}

// Satisfied returns true when every required approval has been completed.
func (cp *Checkpoint) Satisfied() bool {
	for _, r := range cp.RequiredApprovals {
		if !cp.HasApproval(r) {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of the checkpoint.
func (cp *Checkpoint) Clone() *Checkpoint {
	if cp == nil {
		return nil
	}
	out := *cp
	out.RequiredApprovals = append([]string(nil), cp.RequiredApprovals...)
	out.CompletedApprovals = append([]string(nil), cp.CompletedApprovals...)
	if cp.CompletedAt != nil {
		t := *cp.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

// CycleInstance is one run of a report through the phase pipeline.
type CycleInstance struct {
	ID           string        `json:"id" yaml:"id"`
	ReportID     string        `json:"report_id" yaml:"report_id"`
	PeriodEnd    time.Time     `json:"period_end" yaml:"period_end"`
	Status       CycleStatus   `json:"status" yaml:"status"`
	CurrentPhase CyclePhase    `json:"current_phase" yaml:"current_phase"`
	Checkpoints  []*Checkpoint `json:"checkpoints" yaml:"checkpoints"`
	StartedAt    time.Time     `json:"started_at" yaml:"started_at"`
	PauseReason  string        `json:"pause_reason,omitempty" yaml:"pause_reason,omitempty"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
}

// Checkpoint returns the checkpoint for the given phase, or nil.
func (ci *CycleInstance) Checkpoint(phase CyclePhase) *Checkpoint {
	for _, cp := range ci.Checkpoints {
		if cp.Phase == phase {
			return cp
		}
	}
	return nil
}

// Validate checks if the cycle has valid field values
func (ci *CycleInstance) Validate() error {
	if ci.ReportID == "" {
		return fmt.Errorf("report_id is required")
	}
	if !ci.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", ci.Status)
	}
	if !ci.CurrentPhase.IsValid() {
		return fmt.Errorf("invalid phase: %s", ci.CurrentPhase)
	}
	return nil
}

// Clone returns an independent deep copy of the cycle.
func (ci *CycleInstance) Clone() *CycleInstance {
	if ci == nil {
		return nil
	}
	out := *ci
	out.Checkpoints = make([]*Checkpoint, len(ci.Checkpoints))
	for i, cp := range ci.Checkpoints {
		out.Checkpoints[i] = cp.Clone()
	}
	if ci.CompletedAt != nil {
		t := *ci.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

// HumanTaskStatus represents the lifecycle state of a human task
type HumanTaskStatus string

// Human task status constants
const (
	TaskPending    HumanTaskStatus = "pending"
	TaskInProgress HumanTaskStatus = "in_progress"
	TaskCompleted  HumanTaskStatus = "completed"
)

// IsValid checks if the task status value is valid
func (s HumanTaskStatus) IsValid() bool {
	switch s {
	case TaskPending, TaskInProgress, TaskCompleted:
		return true
	}
	return false
}

// Human task type constants. Attestation tasks gate submission-phase
// finalization; approval tasks feed checkpoint approval sets.
const (
	TaskTypeAttestation = "attestation"
	TaskTypeApproval    = "approval"
	TaskTypeReview      = "review"
	TaskTypeRemediation = "remediation"
)

// TaskOutcome is the decision recorded when a human task completes
type TaskOutcome string

// Task outcome constants
const (
	OutcomeApproved            TaskOutcome = "approved"
	OutcomeRejected            TaskOutcome = "rejected"
	OutcomeApprovedWithChanges TaskOutcome = "approved_with_changes"
)

// IsValid checks if the outcome value is valid
func (o TaskOutcome) IsValid() bool {
	switch o {
	case OutcomeApproved, OutcomeRejected, OutcomeApprovedWithChanges:
		return true
	}
	return false
}

// TaskDecision records the outcome of a completed human task.
// A completed task always carries a decision.
type TaskDecision struct {
	Outcome     TaskOutcome `json:"outcome" yaml:"outcome"`
	Rationale   string      `json:"rationale" yaml:"rationale"`
	CompletedBy string      `json:"completed_by" yaml:"completed_by"`
	CompletedAt time.Time   `json:"completed_at" yaml:"completed_at"`
}

// HumanTask is a unit of human work attached to a cycle.
type HumanTask struct {
	ID           string          `json:"id" yaml:"id"`
	CycleID      string          `json:"cycle_id" yaml:"cycle_id"`
	Type         string          `json:"type" yaml:"type"`
	Title        string          `json:"title" yaml:"title"`
	AssignedTo   string          `json:"assigned_to,omitempty" yaml:"assigned_to,omitempty"`
	AssignedRole string          `json:"assigned_role,omitempty" yaml:"assigned_role,omitempty"`
	DueDate      *time.Time      `json:"due_date,omitempty" yaml:"due_date,omitempty"`
	Status       HumanTaskStatus `json:"status" yaml:"status"`
	Decision     *TaskDecision   `json:"decision,omitempty" yaml:"decision,omitempty"`
	CreatedAt    time.Time       `json:"created_at" yaml:"created_at"`
}

// Validate checks task invariants, in particular that completed tasks
// always carry a decision.
func (t *HumanTask) Validate() error {
	if t.CycleID == "" {
		return fmt.Errorf("cycle_id is required")
	}
	if t.Title == "" {
		return fmt.Errorf("title is required")
	}
	if !t.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", t.Status)
	}
	if t.Status == TaskCompleted && t.Decision == nil {
		return fmt.Errorf("completed tasks must have a decision")
	}
	return nil
}

// Clone returns an independent copy of the task.
func (t *HumanTask) Clone() *HumanTask {
	if t == nil {
		return nil
	}
	out := *t
	if t.DueDate != nil {
		d := *t.DueDate
		out.DueDate = &d
	}
	if t.Decision != nil {
		d := *t.Decision
		out.Decision = &d
	}
	return &out
}
