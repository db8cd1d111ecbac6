package workflow

import (
	"context"
	"fmt"

	"github.com/regsuite/governance/internal/idgen"
	"github.com/regsuite/governance/internal/storage"
	"github.com/regsuite/governance/internal/tenant"
	"github.com/regsuite/governance/internal/types"
)

// minRationaleLen is the minimum rationale length accepted when completing
// a human task. Regulators expect a substantive justification, not "ok".
const minRationaleLen = 20

// CreateHumanTask attaches a pending task to a cycle.
func (e *Engine) CreateHumanTask(ctx context.Context, task *types.HumanTask, creator string) (*types.HumanTask, error) {
	mu := e.cycleLock(task.CycleID)
	mu.Lock()
	defer mu.Unlock()

	if _, err := e.store.GetCycle(ctx, task.CycleID); err != nil {
		return nil, err
	}

	t := task.Clone()
	t.Status = types.TaskPending
	t.Decision = nil
	now := e.clock.Now()
	t.CreatedAt = now
	if t.ID == "" {
		t.ID = idgen.NewAt("task", now, t.CycleID, t.Type, t.Title)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}

	if err := e.store.CreateHumanTask(ctx, t); err != nil {
		return nil, err
	}
	if _, err := e.audit.Append(ctx, &types.AuditEntry{
		Actor:      tenant.Actor(ctx, creator),
		ActorType:  tenant.ActorType(ctx, ""),
		Action:     types.ActionTaskCreated,
		EntityType: "human_task",
		EntityID:   t.ID,
		NewState: map[string]any{
			"cycle_id":      t.CycleID,
			"type":          t.Type,
			"title":         t.Title,
			"assigned_role": t.AssignedRole,
		},
	}); err != nil {
		return nil, err
	}
	return t, nil
}

// GetHumanTask returns one task.
func (e *Engine) GetHumanTask(ctx context.Context, id string) (*types.HumanTask, error) {
	return e.store.GetHumanTask(ctx, id)
}

// ListHumanTasks returns tasks matching the filter.
func (e *Engine) ListHumanTasks(ctx context.Context, filter storage.TaskFilter) ([]*types.HumanTask, error) {
	return e.store.ListHumanTasks(ctx, filter)
}

// CompleteHumanTask records the decision on a pending or in-progress task.
// An approved approval task assigned to a role required by the cycle's
// current checkpoint accrues to that checkpoint, completing it once every
// required approval is present.
func (e *Engine) CompleteHumanTask(ctx context.Context, taskID string, outcome types.TaskOutcome, rationale, completedBy string) (*types.HumanTask, error) {
	if len(rationale) < minRationaleLen {
		return nil, fmt.Errorf("rationale must be at least %d characters (got %d): %w",
			minRationaleLen, len(rationale), storage.ErrInvariantViolation)
	}
	if !outcome.IsValid() {
		return nil, fmt.Errorf("invalid outcome: %s", outcome)
	}

	task, err := e.store.GetHumanTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	mu := e.cycleLock(task.CycleID)
	mu.Lock()
	defer mu.Unlock()

	// Re-read under the cycle lock; another completion may have raced.
	task, err = e.store.GetHumanTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status == types.TaskCompleted {
		return nil, fmt.Errorf("task %s is already completed: %w", taskID, storage.ErrInvalidState)
	}

	now := e.clock.Now()
	actor := tenant.Actor(ctx, completedBy)
	prevStatus := task.Status
	task.Status = types.TaskCompleted
	task.Decision = &types.TaskDecision{
		Outcome:     outcome,
		Rationale:   rationale,
		CompletedBy: actor,
		CompletedAt: now,
	}
	if err := e.store.UpdateHumanTask(ctx, task); err != nil {
		return nil, err
	}

	checkpointCompleted := false
	if task.Type == types.TaskTypeApproval && outcome == types.OutcomeApproved && task.AssignedRole != "" {
		checkpointCompleted, err = e.accrueApproval(ctx, task.CycleID, task.AssignedRole)
		if err != nil {
			return nil, err
		}
	}

	if _, err := e.audit.Append(ctx, &types.AuditEntry{
		Actor:         actor,
		ActorType:     tenant.ActorType(ctx, ""),
		Action:        types.ActionTaskCompleted,
		EntityType:    "human_task",
		EntityID:      task.ID,
		PreviousState: map[string]any{"status": string(prevStatus)},
		NewState: map[string]any{
			"status":               string(task.Status),
			"outcome":              string(outcome),
			"checkpoint_completed": checkpointCompleted,
		},
		Rationale: rationale,
	}); err != nil {
		return nil, err
	}
	return task, nil
}

// accrueApproval adds the role to the current checkpoint's completed set
// and closes the checkpoint when every required approval is present.
// Returns whether the checkpoint completed. Caller holds the cycle lock.
func (e *Engine) accrueApproval(ctx context.Context, cycleID, role string) (bool, error) {
	cycle, err := e.store.GetCycle(ctx, cycleID)
	if err != nil {
		return false, err
	}
	cp := cycle.Checkpoint(cycle.CurrentPhase)
	if cp == nil || !cp.Requires(role) || cp.HasApproval(role) {
		return false, nil
	}

	cp.CompletedApprovals = append(cp.CompletedApprovals, role)
	if cp.Satisfied() && cp.Status != types.CheckpointCompleted {
		now := e.clock.Now()
		cp.Status = types.CheckpointCompleted
		cp.CompletedAt = &now
	}
	if err := e.store.UpdateCycle(ctx, cycle); err != nil {
		return false, err
	}
	return cp.Status == types.CheckpointCompleted, nil
}
