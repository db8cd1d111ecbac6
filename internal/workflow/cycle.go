package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/regsuite/governance/internal/eventbus"
	"github.com/regsuite/governance/internal/idgen"
	"github.com/regsuite/governance/internal/storage"
	"github.com/regsuite/governance/internal/tenant"
	"github.com/regsuite/governance/internal/types"
)

// AgentType identifies an autonomous agent the engine can trigger during a
// cycle.
type AgentType string

// Agent types, grouped by the phase they require.
const (
	AgentRegulatoryIntelligence AgentType = "regulatory_intelligence"
	AgentDataRequirements       AgentType = "data_requirements"
	AgentCDEIdentification      AgentType = "cde_identification"
	AgentLineageMapping         AgentType = "lineage_mapping"
	AgentDataQualityRule        AgentType = "data_quality_rule"
	AgentIssueManagement        AgentType = "issue_management"
	AgentDocumentation          AgentType = "documentation"
)

// agentPrereq maps each agent type to the phase whose checkpoint must be
// completed before the agent may run. Empty means runnable from
// data_gathering onward with no completed checkpoint required.
var agentPrereq = map[AgentType]types.CyclePhase{
	AgentRegulatoryIntelligence: "",
	AgentDataRequirements:       "",
	AgentCDEIdentification:      "",
	AgentLineageMapping:         "",
	AgentDataQualityRule:        types.PhaseDataGathering,
	AgentIssueManagement:        types.PhaseDataGathering,
	AgentDocumentation:          types.PhaseValidation,
}

// defaultRequiredApprovals names the role whose approval closes each phase
// checkpoint.
var defaultRequiredApprovals = map[types.CyclePhase][]string{
	types.PhaseDataGathering: {"data_steward"},
	types.PhaseValidation:    {"data_quality_lead"},
	types.PhaseReview:        {"report_owner"},
	types.PhaseApproval:      {"senior_manager"},
	types.PhaseSubmission:    {"regulatory_officer"},
}

// MeterCycleStarts is the quota metric consulted before starting a cycle.
const MeterCycleStarts = "cycle_starts"

// StartCycle creates a new active cycle for the report. The report must
// exist in an approved catalog; one pending checkpoint is created per
// phase. The quota guard, when configured, can reject the start.
func (e *Engine) StartCycle(ctx context.Context, reportID string, periodEnd time.Time, initiator string) (*types.CycleInstance, error) {
	catalog, err := e.store.GetCatalog(ctx)
	if err != nil {
		return nil, err
	}
	if catalog.Status != types.CatalogApproved {
		return nil, fmt.Errorf("catalog is %s, cycles require an approved catalog: %w",
			catalog.Status, storage.ErrInvalidState)
	}
	if catalog.Report(reportID) == nil {
		return nil, fmt.Errorf("report %s: %w", reportID, storage.ErrNotFound)
	}
	if e.guard != nil {
		if err := e.guard.Check(ctx, MeterCycleStarts, 1); err != nil {
			return nil, err
		}
	}

	now := e.clock.Now()
	cycle := &types.CycleInstance{
		ID:           idgen.NewAt("cyc", now, reportID, periodEnd.Format("2006-01-02")),
		ReportID:     reportID,
		PeriodEnd:    periodEnd,
		Status:       types.CycleActive,
		CurrentPhase: types.PhaseDataGathering,
		StartedAt:    now,
	}
	for _, phase := range types.PhaseOrder {
		cycle.Checkpoints = append(cycle.Checkpoints, &types.Checkpoint{
			Phase:             phase,
			RequiredApprovals: append([]string(nil), defaultRequiredApprovals[phase]...),
			Status:            types.CheckpointPending,
		})
	}

	if err := e.store.CreateCycle(ctx, cycle); err != nil {
		return nil, err
	}
	if _, err := e.audit.Append(ctx, &types.AuditEntry{
		Actor:      tenant.Actor(ctx, initiator),
		ActorType:  tenant.ActorType(ctx, ""),
		Action:     types.ActionCycleStarted,
		EntityType: "cycle",
		EntityID:   cycle.ID,
		NewState: map[string]any{
			"report_id":  reportID,
			"period_end": periodEnd.Format(time.RFC3339),
			"status":     string(cycle.Status),
			"phase":      string(cycle.CurrentPhase),
		},
	}); err != nil {
		return nil, err
	}
	e.publish(ctx, eventbus.EventCycleStarted, "cycle", cycle.ID, map[string]any{"report_id": reportID})
	return cycle, nil
}

// GetCycle returns one cycle.
func (e *Engine) GetCycle(ctx context.Context, id string) (*types.CycleInstance, error) {
	return e.store.GetCycle(ctx, id)
}

// ListCycles returns cycles matching the filter.
func (e *Engine) ListCycles(ctx context.Context, filter storage.CycleFilter) ([]*types.CycleInstance, error) {
	return e.store.ListCycles(ctx, filter)
}

// PauseCycle suspends an active cycle, recording the reason. The current
// phase is unchanged.
func (e *Engine) PauseCycle(ctx context.Context, cycleID, reason, pauser string) (*types.CycleInstance, error) {
	mu := e.cycleLock(cycleID)
	mu.Lock()
	defer mu.Unlock()

	cycle, err := e.store.GetCycle(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	if cycle.Status != types.CycleActive {
		return nil, fmt.Errorf("cannot pause cycle in status %s: %w", cycle.Status, storage.ErrInvalidState)
	}

	cycle.Status = types.CyclePaused
	cycle.PauseReason = reason
	if err := e.store.UpdateCycle(ctx, cycle); err != nil {
		return nil, err
	}
	if _, err := e.audit.Append(ctx, &types.AuditEntry{
		Actor:         tenant.Actor(ctx, pauser),
		ActorType:     tenant.ActorType(ctx, ""),
		Action:        types.ActionCyclePaused,
		EntityType:    "cycle",
		EntityID:      cycle.ID,
		PreviousState: map[string]any{"status": string(types.CycleActive)},
		NewState:      map[string]any{"status": string(cycle.Status), "reason": reason},
		Rationale:     reason,
	}); err != nil {
		return nil, err
	}
	e.publish(ctx, eventbus.EventCyclePaused, "cycle", cycle.ID, map[string]any{"reason": reason})
	return cycle, nil
}

// ResumeCycle returns a paused cycle to active. Resumption is blocked while
// any open or in-progress critical issue names the cycle's report.
func (e *Engine) ResumeCycle(ctx context.Context, cycleID, resumer, rationale string) (*types.CycleInstance, error) {
	mu := e.cycleLock(cycleID)
	mu.Lock()
	defer mu.Unlock()

	cycle, err := e.store.GetCycle(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	if cycle.Status != types.CyclePaused {
		return nil, fmt.Errorf("cannot resume cycle in status %s: %w", cycle.Status, storage.ErrInvalidState)
	}
	if err := e.checkCriticalIssues(ctx, cycle.ReportID); err != nil {
		return nil, err
	}

	cycle.Status = types.CycleActive
	cycle.PauseReason = ""
	if err := e.store.UpdateCycle(ctx, cycle); err != nil {
		return nil, err
	}
	if _, err := e.audit.Append(ctx, &types.AuditEntry{
		Actor:         tenant.Actor(ctx, resumer),
		ActorType:     tenant.ActorType(ctx, ""),
		Action:        types.ActionCycleResumed,
		EntityType:    "cycle",
		EntityID:      cycle.ID,
		PreviousState: map[string]any{"status": string(types.CyclePaused)},
		NewState:      map[string]any{"status": string(cycle.Status)},
		Rationale:     rationale,
	}); err != nil {
		return nil, err
	}
	e.publish(ctx, eventbus.EventCycleResumed, "cycle", cycle.ID, nil)
	return cycle, nil
}

// AdvancePhase moves an active cycle to its next phase once the current
// checkpoint is completed. Advancing out of the final phase completes the
// cycle, gated on an approved attestation task.
func (e *Engine) AdvancePhase(ctx context.Context, cycleID, advancer, rationale string) (*types.CycleInstance, error) {
	mu := e.cycleLock(cycleID)
	mu.Lock()
	defer mu.Unlock()

	cycle, err := e.store.GetCycle(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	if cycle.Status != types.CycleActive {
		return nil, fmt.Errorf("cannot advance cycle in status %s: %w", cycle.Status, storage.ErrInvalidState)
	}
	cp := cycle.Checkpoint(cycle.CurrentPhase)
	if cp == nil || cp.Status != types.CheckpointCompleted {
		return nil, fmt.Errorf("checkpoint for phase %s is not completed: %w",
			cycle.CurrentPhase, storage.ErrCheckpointIncomplete)
	}

	prevPhase := cycle.CurrentPhase
	now := e.clock.Now()
	next := cycle.CurrentPhase.Next()
	if next == "" {
		// Final phase. Completion requires an approved attestation.
		attested, err := e.hasApprovedAttestation(ctx, cycle.ID)
		if err != nil {
			return nil, err
		}
		if !attested {
			return nil, fmt.Errorf("no approved attestation task for cycle %s: %w",
				cycle.ID, storage.ErrCheckpointIncomplete)
		}
		cycle.Status = types.CycleCompleted
		cycle.CompletedAt = &now
	} else {
		cycle.CurrentPhase = next
	}

	if err := e.store.UpdateCycle(ctx, cycle); err != nil {
		return nil, err
	}
	action := types.ActionPhaseAdvanced
	eventType := eventbus.EventPhaseAdvanced
	if cycle.Status == types.CycleCompleted {
		action = types.ActionCycleCompleted
		eventType = eventbus.EventCycleCompleted
	}
	if _, err := e.audit.Append(ctx, &types.AuditEntry{
		Actor:         tenant.Actor(ctx, advancer),
		ActorType:     tenant.ActorType(ctx, ""),
		Action:        action,
		EntityType:    "cycle",
		EntityID:      cycle.ID,
		PreviousState: map[string]any{"phase": string(prevPhase)},
		NewState:      map[string]any{"phase": string(cycle.CurrentPhase), "status": string(cycle.Status)},
		Rationale:     rationale,
	}); err != nil {
		return nil, err
	}
	e.publish(ctx, eventType, "cycle", cycle.ID, map[string]any{
		"from": string(prevPhase),
		"to":   string(cycle.CurrentPhase),
	})
	return cycle, nil
}

// TriggerAgent dispatches an agent against an active cycle. The cycle must
// have reached the agent's prerequisite: the named phase's checkpoint must
// be completed. Blocked while a critical issue impacts the cycle's report.
func (e *Engine) TriggerAgent(ctx context.Context, cycleID string, agentType AgentType, triggerer string) error {
	mu := e.cycleLock(cycleID)
	mu.Lock()
	defer mu.Unlock()

	prereq, known := agentPrereq[agentType]
	if !known {
		return fmt.Errorf("unknown agent type %q", agentType)
	}

	cycle, err := e.store.GetCycle(ctx, cycleID)
	if err != nil {
		return err
	}
	if cycle.Status != types.CycleActive {
		return fmt.Errorf("cannot trigger agent on cycle in status %s: %w", cycle.Status, storage.ErrInvalidState)
	}
	if err := e.checkCriticalIssues(ctx, cycle.ReportID); err != nil {
		return err
	}
	if prereq != "" {
		cp := cycle.Checkpoint(prereq)
		if cp == nil || cp.Status != types.CheckpointCompleted {
			return fmt.Errorf("agent %s requires the %s checkpoint to be completed: %w",
				agentType, prereq, storage.ErrCheckpointIncomplete)
		}
	}

	if _, err := e.audit.Append(ctx, &types.AuditEntry{
		Actor:      tenant.Actor(ctx, triggerer),
		ActorType:  tenant.ActorType(ctx, ""),
		Action:     types.ActionAgentTriggered,
		EntityType: "cycle",
		EntityID:   cycle.ID,
		NewState: map[string]any{
			"agent_type": string(agentType),
			"phase":      string(cycle.CurrentPhase),
		},
	}); err != nil {
		return err
	}
	return nil
}

func (e *Engine) checkCriticalIssues(ctx context.Context, reportID string) error {
	if e.issues == nil {
		return nil
	}
	blocked, err := e.issues.HasBlockingCriticalIssue(ctx, reportID)
	if err != nil {
		return err
	}
	if blocked {
		return fmt.Errorf("report %s has an open critical issue: %w", reportID, storage.ErrBlockedByCriticalIssue)
	}
	return nil
}

func (e *Engine) hasApprovedAttestation(ctx context.Context, cycleID string) (bool, error) {
	completed := types.TaskCompleted
	tasks, err := e.store.ListHumanTasks(ctx, storage.TaskFilter{
		CycleID: cycleID,
		Type:    types.TaskTypeAttestation,
		Status:  &completed,
	})
	if err != nil {
		return false, err
	}
	for _, t := range tasks {
		if t.Decision != nil && t.Decision.Outcome == types.OutcomeApproved {
			return true, nil
		}
	}
	return false, nil
}
