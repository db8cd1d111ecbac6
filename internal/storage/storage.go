// Package storage provides shared types for governance entity storage.
//
// The concrete reference implementation lives in the memory sub-package.
// This package holds the interface and sentinel errors that are referenced
// by both the implementation and its consumers (workflow, issues, cmd/govern).
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/regsuite/governance/internal/types"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateID is returned when creating an entity whose id already
// exists. Issues, human tasks and cycles reject duplicates.
var ErrDuplicateID = errors.New("duplicate id")

// ErrInvalidState is returned when a command is incompatible with the
// current state of its target (e.g. approving a catalog that is not
// pending review).
var ErrInvalidState = errors.New("invalid state")

// ErrInvariantViolation is returned when a command would break a structural
// invariant, such as the four-eyes rule on issue resolution.
var ErrInvariantViolation = errors.New("invariant violation")

// ErrBlockedByCriticalIssue is returned when a cycle command is blocked by
// an open critical issue impacting the cycle's report.
var ErrBlockedByCriticalIssue = errors.New("blocked by critical issue")

// ErrCheckpointIncomplete is returned when a phase advance is attempted
// before the current checkpoint has gathered its required approvals.
var ErrCheckpointIncomplete = errors.New("checkpoint incomplete")

// ErrQuotaExceeded is returned when a tenant metric is at or over its
// configured maximum.
var ErrQuotaExceeded = errors.New("quota exceeded")

// ErrUnauthorized is returned when identity verification rejects a
// privileged call.
var ErrUnauthorized = errors.New("unauthorized")

// CycleFilter selects cycles. Fields combine conjunctively; nil fields
// match any value.
type CycleFilter struct {
	ReportID string
	Status   *types.CycleStatus
	Phase    *types.CyclePhase
	Limit    int
}

// TaskFilter selects human tasks.
type TaskFilter struct {
	CycleID string
	Type    string
	Status  *types.HumanTaskStatus
	Limit   int
}

// Storage is the repository surface for all governance entity families.
// Consumers depend on this interface rather than on the concrete type so
// that alternative implementations (mocks, persistent backends) can be
// substituted.
//
// All returned values are independent copies; mutating a returned value has
// no effect on stored state. Each operation is individually atomic; no
// transactional semantics are provided across entity families. Absent
// entities surface as ErrNotFound, never as nil results.
type Storage interface {
	// Report catalog (singleton per tenant)
	GetCatalog(ctx context.Context) (*types.ReportCatalog, error)
	SaveCatalog(ctx context.Context, catalog *types.ReportCatalog) error

	// Reports (read side; writes go through the catalog)
	GetReport(ctx context.Context, id string) (*types.RegulatoryReport, error)
	ListReports(ctx context.Context) ([]*types.RegulatoryReport, error)

	// Cycles
	CreateCycle(ctx context.Context, cycle *types.CycleInstance) error
	GetCycle(ctx context.Context, id string) (*types.CycleInstance, error)
	UpdateCycle(ctx context.Context, cycle *types.CycleInstance) error
	ListCycles(ctx context.Context, filter CycleFilter) ([]*types.CycleInstance, error)

	// Human tasks
	CreateHumanTask(ctx context.Context, task *types.HumanTask) error
	GetHumanTask(ctx context.Context, id string) (*types.HumanTask, error)
	UpdateHumanTask(ctx context.Context, task *types.HumanTask) error
	ListHumanTasks(ctx context.Context, filter TaskFilter) ([]*types.HumanTask, error)

	// Issues
	CreateIssue(ctx context.Context, issue *types.Issue) error
	GetIssue(ctx context.Context, id string) (*types.Issue, error)
	UpdateIssue(ctx context.Context, issue *types.Issue) error
	DeleteIssue(ctx context.Context, id string) error
	SearchIssues(ctx context.Context, filter types.IssueFilter) ([]*types.Issue, error)

	// CDE inventory and DQ rules
	SaveInventory(ctx context.Context, inv *types.CDEInventory) error
	GetInventory(ctx context.Context) (*types.CDEInventory, error)
	SaveDQRules(ctx context.Context, rules []*types.DQRule) error
	ListDQRules(ctx context.Context, cdeID string) ([]*types.DQRule, error)

	// Lifecycle
	Close() error
}

// Clock abstracts time for deterministic tests. Production code uses
// RealClock; tests substitute a fixed or stepping clock.
type Clock interface {
	Now() time.Time
}

// RealClock returns the current UTC time.
type RealClock struct{}

// Now implements Clock.
func (RealClock) Now() time.Time { return time.Now().UTC() }
