// Package issues manages data governance issues: creation, escalation,
// four-eyes resolution and aggregate metrics.
package issues

import (
	"context"
	"fmt"
	"time"

	"github.com/regsuite/governance/internal/auditchain"
	"github.com/regsuite/governance/internal/eventbus"
	"github.com/regsuite/governance/internal/idgen"
	"github.com/regsuite/governance/internal/storage"
	"github.com/regsuite/governance/internal/tenant"
	"github.com/regsuite/governance/internal/types"
)

// Manager coordinates issue state changes. Every state-changing path
// appends an audit entry; critical escalations additionally notify via the
// event bus.
type Manager struct {
	store storage.Storage
	audit *auditchain.Store
	bus   *eventbus.Bus
	clock storage.Clock
}

// New creates an issue manager. The bus may be nil when no subscribers
// exist (notifications are then audit-only).
func New(store storage.Storage, audit *auditchain.Store, bus *eventbus.Bus) *Manager {
	return &Manager{store: store, audit: audit, bus: bus, clock: storage.RealClock{}}
}

// WithClock substitutes the clock, for tests.
func (m *Manager) WithClock(clock storage.Clock) *Manager {
	m.clock = clock
	return m
}

// Create stores a new issue. An id is generated when absent; duplicates
// are rejected by the repository.
func (m *Manager) Create(ctx context.Context, issue *types.Issue, creator string) (*types.Issue, error) {
	i := issue.Clone()
	i.SetDefaults()
	if i.ID == "" {
		i.ID = idgen.New("iss", i.Title, creator)
	}
	now := m.clock.Now()
	i.CreatedAt = now
	i.UpdatedAt = now
	i.CreatedBy = tenant.Actor(ctx, creator)

	if err := m.store.CreateIssue(ctx, i); err != nil {
		return nil, err
	}
	if _, err := m.audit.Append(ctx, &types.AuditEntry{
		Actor:      i.CreatedBy,
		ActorType:  tenant.ActorType(ctx, ""),
		Action:     types.ActionIssueCreated,
		EntityType: "issue",
		EntityID:   i.ID,
		NewState: map[string]any{
			"title":    i.Title,
			"severity": string(i.Severity),
			"status":   string(i.Status),
		},
	}); err != nil {
		return nil, err
	}
	m.publish(ctx, eventbus.EventIssueCreated, i, nil)
	return i, nil
}

// Get returns one issue.
func (m *Manager) Get(ctx context.Context, id string) (*types.Issue, error) {
	return m.store.GetIssue(ctx, id)
}

// Update is a partial update of mutable issue fields.
type Update struct {
	Title           *string
	Description     *string
	Severity        *types.Severity
	Status          *types.IssueStatus
	ImpactedReports []string
	ImpactedCDEs    []string
}

// Apply updates the issue, recording previous and new state in the audit
// trail. Transitions into resolved/closed must go through Resolve; Apply
// rejects them to keep the four-eyes rule structural.
func (m *Manager) Apply(ctx context.Context, id string, upd Update, actor string) (*types.Issue, error) {
	i, err := m.store.GetIssue(ctx, id)
	if err != nil {
		return nil, err
	}

	prev := map[string]any{"status": string(i.Status), "severity": string(i.Severity)}

	if upd.Status != nil {
		to := *upd.Status
		if (to == types.IssueResolved || to == types.IssueClosed) && i.Resolution == nil {
			return nil, fmt.Errorf("%w: use resolve to move an issue to %s", storage.ErrInvalidState, to)
		}
		i.Status = to
	}
	if upd.Title != nil {
		i.Title = *upd.Title
	}
	if upd.Description != nil {
		i.Description = *upd.Description
	}
	if upd.Severity != nil {
		i.Severity = *upd.Severity
	}
	if upd.ImpactedReports != nil {
		i.ImpactedReports = append([]string(nil), upd.ImpactedReports...)
	}
	if upd.ImpactedCDEs != nil {
		i.ImpactedCDEs = append([]string(nil), upd.ImpactedCDEs...)
	}
	i.UpdatedAt = m.clock.Now()

	if err := m.store.UpdateIssue(ctx, i); err != nil {
		return nil, err
	}
	if _, err := m.audit.Append(ctx, &types.AuditEntry{
		Actor:         tenant.Actor(ctx, actor),
		ActorType:     tenant.ActorType(ctx, ""),
		Action:        types.ActionIssueUpdated,
		EntityType:    "issue",
		EntityID:      i.ID,
		PreviousState: prev,
		NewState:      map[string]any{"status": string(i.Status), "severity": string(i.Severity)},
	}); err != nil {
		return nil, err
	}
	return i, nil
}

// Escalate raises the issue's escalation level. Critical issues emit an
// additional senior-management notification entry; other severities never
// do.
func (m *Manager) Escalate(ctx context.Context, id, escalator, reason string) (*types.Issue, error) {
	i, err := m.store.GetIssue(ctx, id)
	if err != nil {
		return nil, err
	}

	now := m.clock.Now()
	prevLevel := i.EscalationLevel
	i.EscalationLevel++
	i.EscalatedAt = &now
	i.UpdatedAt = now

	if err := m.store.UpdateIssue(ctx, i); err != nil {
		return nil, err
	}

	actor := tenant.Actor(ctx, escalator)
	if _, err := m.audit.Append(ctx, &types.AuditEntry{
		Actor:         actor,
		ActorType:     tenant.ActorType(ctx, ""),
		Action:        types.ActionIssueEscalated,
		EntityType:    "issue",
		EntityID:      i.ID,
		PreviousState: map[string]any{"escalation_level": prevLevel},
		NewState:      map[string]any{"escalation_level": i.EscalationLevel},
		Rationale:     reason,
	}); err != nil {
		return nil, err
	}

	if i.Severity == types.SeverityCritical {
		if _, err := m.audit.Append(ctx, &types.AuditEntry{
			Actor:      actor,
			ActorType:  tenant.ActorType(ctx, ""),
			Action:     types.ActionNotifySeniorManagement,
			EntityType: "issue",
			EntityID:   i.ID,
			NewState: map[string]any{
				"notification_type": "critical_issue_escalation",
				"escalation_level":  i.EscalationLevel,
				"reason":            reason,
			},
		}); err != nil {
			return nil, err
		}
		m.publish(ctx, eventbus.EventCriticalEscalation, i, map[string]any{
			"escalation_level": i.EscalationLevel,
			"reason":           reason,
		})
	}
	m.publish(ctx, eventbus.EventIssueEscalated, i, nil)
	return i, nil
}

// Resolve closes out an issue with a four-eyes check: the verifier must
// differ from the implementer or the command is rejected atomically.
func (m *Manager) Resolve(ctx context.Context, id, resolutionType, description, implementedBy, verifiedBy string) (*types.Issue, error) {
	if implementedBy == verifiedBy {
		return nil, fmt.Errorf("four_eyes_violation: implementer %q cannot verify their own fix: %w",
			implementedBy, storage.ErrInvariantViolation)
	}

	i, err := m.store.GetIssue(ctx, id)
	if err != nil {
		return nil, err
	}
	prevStatus := i.Status

	now := m.clock.Now()
	i.Resolution = &types.Resolution{
		Type:          resolutionType,
		Description:   description,
		ImplementedBy: implementedBy,
		ImplementedAt: now,
		VerifiedBy:    verifiedBy,
		VerifiedAt:    now,
	}
	i.Status = types.IssueResolved
	i.UpdatedAt = now

	if err := m.store.UpdateIssue(ctx, i); err != nil {
		return nil, err
	}
	// The verifier is the accountable actor for the resolution record.
	if _, err := m.audit.Append(ctx, &types.AuditEntry{
		Actor:         verifiedBy,
		ActorType:     tenant.ActorType(ctx, ""),
		Action:        types.ActionIssueResolved,
		EntityType:    "issue",
		EntityID:      i.ID,
		PreviousState: map[string]any{"status": string(prevStatus)},
		NewState: map[string]any{
			"status":          string(types.IssueResolved),
			"resolution_type": resolutionType,
			"implemented_by":  implementedBy,
			"verified_by":     verifiedBy,
		},
		Rationale: description,
	}); err != nil {
		return nil, err
	}
	m.publish(ctx, eventbus.EventIssueResolved, i, nil)
	return i, nil
}

// List returns issues matching the filter.
func (m *Manager) List(ctx context.Context, filter types.IssueFilter) ([]*types.Issue, error) {
	return m.store.SearchIssues(ctx, filter)
}

// HasBlockingCriticalIssue reports whether any open or in-progress critical
// issue names the report in its impacted set. The workflow engine consults
// this before resuming cycles or triggering agents.
func (m *Manager) HasBlockingCriticalIssue(ctx context.Context, reportID string) (bool, error) {
	sev := types.SeverityCritical
	candidates, err := m.store.SearchIssues(ctx, types.IssueFilter{
		Severity:       &sev,
		ImpactedReport: &reportID,
	})
	if err != nil {
		return false, err
	}
	for _, i := range candidates {
		if i.Status == types.IssueOpen || i.Status == types.IssueInProgress {
			return true, nil
		}
	}
	return false, nil
}

// Metrics computes aggregate issue statistics.
func (m *Manager) Metrics(ctx context.Context) (*types.IssueMetrics, error) {
	all, err := m.store.SearchIssues(ctx, types.IssueFilter{})
	if err != nil {
		return nil, err
	}

	metrics := &types.IssueMetrics{
		OpenBySeverity: make(map[types.Severity]int),
		TotalCount:     len(all),
	}
	var resolutionSum time.Duration
	var resolutionCount int
	for _, i := range all {
		if i.Status.IsOpen() {
			metrics.OpenCount++
			metrics.OpenBySeverity[i.Severity]++
		}
		if (i.Status == types.IssueResolved || i.Status == types.IssueClosed) && i.Resolution != nil {
			metrics.ResolvedCount++
			resolutionSum += i.Resolution.VerifiedAt.Sub(i.CreatedAt)
			resolutionCount++
		}
	}
	if resolutionCount > 0 {
		metrics.AvgResolutionTime = resolutionSum / time.Duration(resolutionCount)
	}
	return metrics, nil
}

func (m *Manager) publish(ctx context.Context, t eventbus.EventType, i *types.Issue, payload map[string]any) {
	if m.bus == nil {
		return
	}
	_ = m.bus.Publish(ctx, &eventbus.Event{
		Type:       t,
		TenantID:   tenant.ID(ctx),
		EntityType: "issue",
		EntityID:   i.ID,
		Payload:    payload,
		OccurredAt: m.clock.Now(),
	})
}
