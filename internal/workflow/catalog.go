package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/regsuite/governance/internal/eventbus"
	"github.com/regsuite/governance/internal/storage"
	"github.com/regsuite/governance/internal/tenant"
	"github.com/regsuite/governance/internal/types"
)

// ChangeType classifies a detected or requested catalog change.
type ChangeType string

// Catalog change types
const (
	ChangeAdded   ChangeType = "added"
	ChangeUpdated ChangeType = "updated"
	ChangeRemoved ChangeType = "removed"
)

// ReportChange is one catalog mutation, either detected by a scanner or
// requested by a caller. Removed changes only need the report id.
type ReportChange struct {
	Type       ChangeType              `json:"type"`
	Report     *types.RegulatoryReport `json:"report,omitempty"`
	ReportID   string                  `json:"report_id,omitempty"`
	DetectedAt time.Time               `json:"detected_at,omitempty"`
}

func (c *ReportChange) reportID() string {
	if c.Report != nil && c.Report.ID != "" {
		return c.Report.ID
	}
	return c.ReportID
}

// GetCatalog returns the tenant's report catalog.
func (e *Engine) GetCatalog(ctx context.Context) (*types.ReportCatalog, error) {
	return e.store.GetCatalog(ctx)
}

// ScanSources asks the configured scanner for the reports published in the
// given jurisdictions.
func (e *Engine) ScanSources(ctx context.Context, jurisdictions []types.Jurisdiction) ([]*ReportChange, error) {
	if e.scanner == nil {
		return nil, fmt.Errorf("no source scanner configured")
	}
	return e.scanner.Scan(ctx, jurisdictions)
}

// DetectChanges asks the configured scanner for report changes since the
// given time.
func (e *Engine) DetectChanges(ctx context.Context, since time.Time) ([]*ReportChange, error) {
	if e.scanner == nil {
		return nil, fmt.Errorf("no source scanner configured")
	}
	return e.scanner.Changes(ctx, since)
}

// UpdateCatalog applies a batch of report changes. Token semantics match
// ModifyCatalog; applying any change to an approved catalog resets it to
// draft.
func (e *Engine) UpdateCatalog(ctx context.Context, changes []*ReportChange, updater, token string) (*types.ReportCatalog, error) {
	return e.modify(ctx, changes, updater, token, types.ActionCatalogUpdated)
}

// ModifyCatalog applies a single add, update or remove. Any modification of
// an approved (or rejected) catalog resets it to draft, clears the approval
// metadata and bumps the version.
func (e *Engine) ModifyCatalog(ctx context.Context, change *ReportChange, modifier, token string) (*types.ReportCatalog, error) {
	return e.modify(ctx, []*ReportChange{change}, modifier, token, types.ActionCatalogModified)
}

func (e *Engine) modify(ctx context.Context, changes []*ReportChange, actor, token, action string) (*types.ReportCatalog, error) {
	recordedActor, userInfo, err := e.resolveActor(ctx, actor, token)
	if err != nil {
		return nil, err
	}

	catalog, err := e.store.GetCatalog(ctx)
	if err != nil {
		return nil, err
	}
	prevStatus := catalog.Status

	for _, change := range changes {
		if err := e.applyChange(ctx, catalog, change); err != nil {
			return nil, err
		}
	}

	if catalog.Status == types.CatalogApproved || catalog.Status == types.CatalogRejected {
		catalog.Status = types.CatalogDraft
		catalog.ApprovedBy = ""
		catalog.ApprovedAt = nil
		catalog.Version++
	}
	catalog.UpdatedAt = e.clock.Now()

	if err := e.store.SaveCatalog(ctx, catalog); err != nil {
		return nil, err
	}

	newState := map[string]any{
		"status":       string(catalog.Status),
		"version":      catalog.Version,
		"report_count": len(catalog.Reports),
		"change_count": len(changes),
	}
	if userInfo != nil {
		newState["_audit_user_info"] = userInfo
	}
	if _, err := e.audit.Append(ctx, &types.AuditEntry{
		Actor:         recordedActor,
		ActorType:     tenant.ActorType(ctx, ""),
		Action:        action,
		EntityType:    "report_catalog",
		EntityID:      catalog.TenantID,
		PreviousState: map[string]any{"status": string(prevStatus)},
		NewState:      newState,
	}); err != nil {
		return nil, err
	}
	return catalog, nil
}

// applyChange mutates the catalog in place. Updating or removing a report
// with a non-terminal cycle is rejected; the cycle pins the definition it
// started against.
func (e *Engine) applyChange(ctx context.Context, catalog *types.ReportCatalog, change *ReportChange) error {
	id := change.reportID()
	if id == "" {
		return fmt.Errorf("change has no report id")
	}

	switch change.Type {
	case ChangeAdded:
		if change.Report == nil {
			return fmt.Errorf("added change for %s carries no report", id)
		}
		if err := change.Report.Validate(); err != nil {
			return fmt.Errorf("report %s: %w", id, err)
		}
		if catalog.Report(id) != nil {
			return fmt.Errorf("report %s: %w", id, storage.ErrDuplicateID)
		}
		r := change.Report.Clone()
		r.LastUpdated = e.clock.Now()
		catalog.Reports = append(catalog.Reports, r)
		return nil

	case ChangeUpdated:
		if change.Report == nil {
			return fmt.Errorf("updated change for %s carries no report", id)
		}
		if err := e.checkNotReferenced(ctx, id); err != nil {
			return err
		}
		for i, r := range catalog.Reports {
			if r.ID == id {
				updated := change.Report.Clone()
				updated.LastUpdated = e.clock.Now()
				catalog.Reports[i] = updated
				return nil
			}
		}
		return fmt.Errorf("report %s: %w", id, storage.ErrNotFound)

	case ChangeRemoved:
		if err := e.checkNotReferenced(ctx, id); err != nil {
			return err
		}
		for i, r := range catalog.Reports {
			if r.ID == id {
				catalog.Reports = append(catalog.Reports[:i], catalog.Reports[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("report %s: %w", id, storage.ErrNotFound)

	default:
		return fmt.Errorf("unknown change type %q", change.Type)
	}
}

func (e *Engine) checkNotReferenced(ctx context.Context, reportID string) error {
	cycles, err := e.store.ListCycles(ctx, storage.CycleFilter{ReportID: reportID})
	if err != nil {
		return err
	}
	for _, c := range cycles {
		if !c.Status.IsTerminal() {
			return fmt.Errorf("report %s is referenced by cycle %s: %w", reportID, c.ID, storage.ErrInvalidState)
		}
	}
	return nil
}

// SubmitForReview moves the catalog from draft to pending review. A
// rejected catalog must be modified (resetting it to draft) before it can
// be resubmitted.
func (e *Engine) SubmitForReview(ctx context.Context, submitter, token string) (*types.ReportCatalog, error) {
	actor, userInfo, err := e.resolveActor(ctx, submitter, token)
	if err != nil {
		return nil, err
	}

	catalog, err := e.store.GetCatalog(ctx)
	if err != nil {
		return nil, err
	}
	if catalog.Status != types.CatalogDraft {
		return nil, fmt.Errorf("cannot submit catalog in status %s: %w", catalog.Status, storage.ErrInvalidState)
	}

	prev := catalog.Status
	catalog.Status = types.CatalogPendingReview
	catalog.UpdatedAt = e.clock.Now()
	if err := e.store.SaveCatalog(ctx, catalog); err != nil {
		return nil, err
	}

	newState := map[string]any{"status": string(catalog.Status), "version": catalog.Version}
	if userInfo != nil {
		newState["_audit_user_info"] = userInfo
	}
	if _, err := e.audit.Append(ctx, &types.AuditEntry{
		Actor:         actor,
		ActorType:     tenant.ActorType(ctx, ""),
		Action:        types.ActionCatalogSubmitted,
		EntityType:    "report_catalog",
		EntityID:      catalog.TenantID,
		PreviousState: map[string]any{"status": string(prev)},
		NewState:      newState,
	}); err != nil {
		return nil, err
	}
	e.publish(ctx, eventbus.EventCatalogSubmitted, "report_catalog", catalog.TenantID, nil)
	return catalog, nil
}

// ApproveCatalog moves the catalog from pending review to approved and
// records the approver. Only a pending-review catalog can be approved.
func (e *Engine) ApproveCatalog(ctx context.Context, approver, rationale, token string) (*types.ReportCatalog, error) {
	actor, userInfo, err := e.resolveActor(ctx, approver, token)
	if err != nil {
		return nil, err
	}

	catalog, err := e.store.GetCatalog(ctx)
	if err != nil {
		return nil, err
	}
	if catalog.Status != types.CatalogPendingReview {
		return nil, fmt.Errorf("cannot approve catalog in status %s: %w", catalog.Status, storage.ErrInvalidState)
	}

	now := e.clock.Now()
	prev := catalog.Status
	catalog.Status = types.CatalogApproved
	catalog.ApprovedBy = actor
	catalog.ApprovedAt = &now
	catalog.UpdatedAt = now
	if err := e.store.SaveCatalog(ctx, catalog); err != nil {
		return nil, err
	}

	newState := map[string]any{
		"status":      string(catalog.Status),
		"version":     catalog.Version,
		"approved_by": actor,
	}
	if userInfo != nil {
		newState["_audit_user_info"] = userInfo
	}
	if _, err := e.audit.Append(ctx, &types.AuditEntry{
		Actor:         actor,
		ActorType:     tenant.ActorType(ctx, ""),
		Action:        types.ActionCatalogApproved,
		EntityType:    "report_catalog",
		EntityID:      catalog.TenantID,
		PreviousState: map[string]any{"status": string(prev)},
		NewState:      newState,
		Rationale:     rationale,
	}); err != nil {
		return nil, err
	}
	e.publish(ctx, eventbus.EventCatalogApproved, "report_catalog", catalog.TenantID, nil)
	return catalog, nil
}

// resolveActor returns the actor to record in audit entries. When a token
// is presented its verified subject supersedes the caller-supplied actor
// and the claim payload is captured for the audit record.
func (e *Engine) resolveActor(ctx context.Context, explicit, token string) (string, map[string]any, error) {
	if token == "" {
		return tenant.Actor(ctx, explicit), nil, nil
	}
	if e.verifier == nil {
		return "", nil, fmt.Errorf("token presented but no verifier configured: %w", storage.ErrUnauthorized)
	}
	claims, err := e.verifier.Verify(token)
	if err != nil {
		return "", nil, err
	}
	return claims.Subject, claims.AuditUserInfo(), nil
}
