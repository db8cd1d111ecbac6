package types

import (
	"fmt"
	"time"
)

// ActorType classifies who performed an audited action
type ActorType string

// Actor type constants
const (
	ActorAgent  ActorType = "agent"
	ActorHuman  ActorType = "human"
	ActorSystem ActorType = "system"
)

// IsValid checks if the actor type value is valid
func (a ActorType) IsValid() bool {
	switch a {
	case ActorAgent, ActorHuman, ActorSystem:
		return true
	}
	return false
}

// Audit action constants for actions emitted by the core. Collaborators may
// append entries with their own action names; these are the ones the engine
// itself writes.
const (
	ActionCatalogSubmitted       = "submit_for_review"
	ActionCatalogApproved        = "approve_catalog"
	ActionCatalogModified        = "modify_catalog"
	ActionCatalogUpdated         = "update_catalog"
	ActionCycleStarted           = "start_cycle"
	ActionCyclePaused            = "pause_cycle"
	ActionCycleResumed           = "resume_cycle"
	ActionPhaseAdvanced          = "advance_phase"
	ActionCycleCompleted         = "complete_cycle"
	ActionAgentTriggered         = "trigger_agent"
	ActionTaskCreated            = "create_human_task"
	ActionTaskCompleted          = "complete_human_task"
	ActionIssueCreated           = "create_issue"
	ActionIssueUpdated           = "update_issue"
	ActionIssueEscalated         = "escalate_issue"
	ActionIssueResolved          = "resolve_issue"
	ActionNotifySeniorManagement = "notify_senior_management"
	ActionInventoryGenerated     = "generate_cde_inventory"
	ActionDQRulesGenerated       = "generate_dq_rules"
)

// AuditEntry is the mutable form of an audit record, supplied by callers.
// The audit chain turns it into an ImmutableAuditEntry on append; from then
// on no component may mutate or delete it.
type AuditEntry struct {
	ID            string         `json:"id" yaml:"id"`
	Timestamp     time.Time      `json:"timestamp" yaml:"timestamp"`
	TenantID      string         `json:"tenant_id,omitempty" yaml:"tenant_id,omitempty"`
	Actor         string         `json:"actor" yaml:"actor"`
	ActorType     ActorType      `json:"actor_type" yaml:"actor_type"`
	Action        string         `json:"action" yaml:"action"`
	EntityType    string         `json:"entity_type" yaml:"entity_type"`
	EntityID      string         `json:"entity_id" yaml:"entity_id"`
	PreviousState map[string]any `json:"previous_state,omitempty" yaml:"previous_state,omitempty"`
	NewState      map[string]any `json:"new_state,omitempty" yaml:"new_state,omitempty"`
	Rationale     string         `json:"rationale,omitempty" yaml:"rationale,omitempty"`
}

// Validate checks that the required audit fields are populated.
func (e *AuditEntry) Validate() error {
	if e.Actor == "" {
		return fmt.Errorf("actor is required")
	}
	if !e.ActorType.IsValid() {
		return fmt.Errorf("invalid actor_type: %s", e.ActorType)
	}
	if e.Action == "" {
		return fmt.Errorf("action is required")
	}
	if e.EntityType == "" {
		return fmt.Errorf("entity_type is required")
	}
	return nil
}

// Clone returns an independent deep copy of the entry. State maps are
// copied one level deep; values are shared (callers treat them as opaque).
func (e *AuditEntry) Clone() *AuditEntry {
	if e == nil {
		return nil
	}
	out := *e
	out.PreviousState = cloneState(e.PreviousState)
	out.NewState = cloneState(e.NewState)
	return &out
}

func cloneState(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ImmutableAuditEntry is a chained audit record. EntryHash covers every
// field except itself; PreviousHash links to the prior entry (or the
// genesis hash for sequence 0).
type ImmutableAuditEntry struct {
	AuditEntry     `yaml:",inline"`
	SequenceNumber int    `json:"sequence_number" yaml:"sequence_number"`
	PreviousHash   string `json:"previous_hash" yaml:"previous_hash"`
	EntryHash      string `json:"entry_hash" yaml:"entry_hash"`
}

// Clone returns an independent deep copy of the immutable entry.
func (e *ImmutableAuditEntry) Clone() *ImmutableAuditEntry {
	if e == nil {
		return nil
	}
	out := *e
	out.AuditEntry = *e.AuditEntry.Clone()
	return &out
}

// AuditFilter selects audit entries. Fields combine conjunctively;
// zero-valued fields match any entry.
type AuditFilter struct {
	Actor      string
	Action     string
	EntityType string
	EntityID   string
	Since      *time.Time
	Until      *time.Time
	Limit      int
}

// Matches reports whether the entry satisfies every set filter field.
func (f *AuditFilter) Matches(e *ImmutableAuditEntry) bool {
	if f.Actor != "" && e.Actor != f.Actor {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.EntityType != "" && e.EntityType != f.EntityType {
		return false
	}
	if f.EntityID != "" && e.EntityID != f.EntityID {
		return false
	}
	if f.Since != nil && e.Timestamp.Before(*f.Since) {
		return false
	}
	if f.Until != nil && e.Timestamp.After(*f.Until) {
		return false
	}
	return true
}
