// Package governance provides a minimal public API for embedding the
// governance core in custom orchestration.
//
// Most integrations should use the govern CLI. This package exports only
// the essential types and functions needed for Go programs that want to
// drive the storage layer and workflow engine programmatically.
package governance

import (
	"os"
	"path/filepath"

	"github.com/regsuite/governance/internal/storage"
	"github.com/regsuite/governance/internal/storage/memory"
	"github.com/regsuite/governance/internal/tenant"
	"github.com/regsuite/governance/internal/types"
)

// Core types for working with the report catalog and cycles
type (
	RegulatoryReport = types.RegulatoryReport
	ReportCatalog    = types.ReportCatalog
	CycleInstance    = types.CycleInstance
	Checkpoint       = types.Checkpoint
	HumanTask        = types.HumanTask
	Issue            = types.Issue
	IssueFilter      = types.IssueFilter
	CatalogStatus    = types.CatalogStatus
	CycleStatus      = types.CycleStatus
	CyclePhase       = types.CyclePhase
	IssueStatus      = types.IssueStatus
	Severity         = types.Severity
	Binding          = tenant.Binding
)

// CatalogStatus constants
const (
	CatalogDraft         = types.CatalogDraft
	CatalogPendingReview = types.CatalogPendingReview
	CatalogApproved      = types.CatalogApproved
	CatalogRejected      = types.CatalogRejected
)

// CycleStatus constants
const (
	CycleActive    = types.CycleActive
	CyclePaused    = types.CyclePaused
	CycleCompleted = types.CycleCompleted
	CycleFailed    = types.CycleFailed
)

// Severity constants
const (
	SeverityCritical = types.SeverityCritical
	SeverityHigh     = types.SeverityHigh
	SeverityMedium   = types.SeverityMedium
	SeverityLow      = types.SeverityLow
)

// IssueStatus constants
const (
	IssueOpen                = types.IssueOpen
	IssueInProgress          = types.IssueInProgress
	IssuePendingVerification = types.IssuePendingVerification
	IssueResolved            = types.IssueResolved
	IssueClosed              = types.IssueClosed
)

// Storage provides the minimal interface for embedding orchestration
type Storage = storage.Storage

// NewMemoryStorage creates an empty in-memory store. Callers own
// persistence; see the memory package's snapshot helpers.
func NewMemoryStorage() Storage {
	return memory.New()
}

// NewBinding returns an identity binding for use with WithBinding.
func NewBinding(tenantID, actor string) Binding {
	return tenant.NewBinding(tenantID, actor, types.ActorHuman)
}

// WithBinding binds a tenant and actor to the context. All storage and
// workflow calls partition their state by the bound tenant.
var WithBinding = tenant.WithBinding

// FindGovernanceDir walks up from the working directory looking for a
// .governance directory. Returns "" when none is found.
func FindGovernanceDir() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, ".governance")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
