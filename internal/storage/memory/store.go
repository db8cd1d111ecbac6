// Package memory is the in-memory reference implementation of the
// governance storage interface.
//
// Entities are partitioned per tenant (the tenant id comes from the ambient
// context binding). Every read returns an independent copy and every write
// stores one, so callers can never mutate stored state through a returned
// pointer. Each operation is atomic under a single store-level RWMutex.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/regsuite/governance/internal/storage"
	"github.com/regsuite/governance/internal/tenant"
	"github.com/regsuite/governance/internal/types"
)

// section holds one tenant's entities.
type section struct {
	Catalog   *types.ReportCatalog          `yaml:"catalog,omitempty"`
	Cycles    map[string]*types.CycleInstance `yaml:"cycles,omitempty"`
	Tasks     map[string]*types.HumanTask   `yaml:"tasks,omitempty"`
	Issues    map[string]*types.Issue       `yaml:"issues,omitempty"`
	Inventory *types.CDEInventory           `yaml:"inventory,omitempty"`
	DQRules   map[string]*types.DQRule      `yaml:"dq_rules,omitempty"`

	// insertion order for stable listing
	cycleOrder []string
	taskOrder  []string
	issueOrder []string
	ruleOrder  []string
}

func newSection() *section {
	return &section{
		Cycles:  make(map[string]*types.CycleInstance),
		Tasks:   make(map[string]*types.HumanTask),
		Issues:  make(map[string]*types.Issue),
		DQRules: make(map[string]*types.DQRule),
	}
}

// Store is the in-memory storage backend.
type Store struct {
	mu       sync.RWMutex
	sections map[string]*section
	clock    storage.Clock
}

var _ storage.Storage = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		sections: make(map[string]*section),
		clock:    storage.RealClock{},
	}
}

// NewWithClock creates a store with an injected clock for tests.
func NewWithClock(clock storage.Clock) *Store {
	s := New()
	s.clock = clock
	return s
}

// sectionFor returns the tenant's section, creating it on first use.
// Callers must hold the write lock; readSection is the read-path variant.
func (s *Store) sectionFor(ctx context.Context) *section {
	id := tenant.ID(ctx)
	sec, ok := s.sections[id]
	if !ok {
		sec = newSection()
		s.sections[id] = sec
	}
	return sec
}

// readSection returns the tenant's section or nil. Callers must hold at
// least the read lock.
func (s *Store) readSection(ctx context.Context) *section {
	return s.sections[tenant.ID(ctx)]
}

// GetCatalog returns the tenant's report catalog. A tenant that has never
// saved one gets an empty draft catalog rather than ErrNotFound, since the
// catalog is a singleton aggregate.
func (s *Store) GetCatalog(ctx context.Context) (*types.ReportCatalog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sec := s.readSection(ctx)
	if sec == nil || sec.Catalog == nil {
		return &types.ReportCatalog{
			TenantID: tenant.ID(ctx),
			Status:   types.CatalogDraft,
			Version:  1,
		}, nil
	}
	return sec.Catalog.Clone(), nil
}

// SaveCatalog stores an independent copy of the catalog.
func (s *Store) SaveCatalog(ctx context.Context, catalog *types.ReportCatalog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec := s.sectionFor(ctx)
	c := catalog.Clone()
	c.UpdatedAt = s.clock.Now()
	sec.Catalog = c
	return nil
}

// GetReport returns one report from the catalog.
func (s *Store) GetReport(ctx context.Context, id string) (*types.RegulatoryReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sec := s.readSection(ctx)
	if sec == nil || sec.Catalog == nil {
		return nil, fmt.Errorf("report %s: %w", id, storage.ErrNotFound)
	}
	r := sec.Catalog.Report(id)
	if r == nil {
		return nil, fmt.Errorf("report %s: %w", id, storage.ErrNotFound)
	}
	return r.Clone(), nil
}

// ListReports returns all catalog reports.
func (s *Store) ListReports(ctx context.Context) ([]*types.RegulatoryReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sec := s.readSection(ctx)
	if sec == nil || sec.Catalog == nil {
		return nil, nil
	}
	out := make([]*types.RegulatoryReport, len(sec.Catalog.Reports))
	for i, r := range sec.Catalog.Reports {
		out[i] = r.Clone()
	}
	return out, nil
}

// CreateCycle stores a new cycle, rejecting duplicate ids.
func (s *Store) CreateCycle(ctx context.Context, cycle *types.CycleInstance) error {
	if err := cycle.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sec := s.sectionFor(ctx)
	if _, exists := sec.Cycles[cycle.ID]; exists {
		return fmt.Errorf("cycle %s: %w", cycle.ID, storage.ErrDuplicateID)
	}
	sec.Cycles[cycle.ID] = cycle.Clone()
	sec.cycleOrder = append(sec.cycleOrder, cycle.ID)
	return nil
}

// GetCycle returns one cycle by id.
func (s *Store) GetCycle(ctx context.Context, id string) (*types.CycleInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sec := s.readSection(ctx)
	if sec == nil {
		return nil, fmt.Errorf("cycle %s: %w", id, storage.ErrNotFound)
	}
	c, ok := sec.Cycles[id]
	if !ok {
		return nil, fmt.Errorf("cycle %s: %w", id, storage.ErrNotFound)
	}
	return c.Clone(), nil
}

// UpdateCycle replaces a stored cycle.
func (s *Store) UpdateCycle(ctx context.Context, cycle *types.CycleInstance) error {
	if err := cycle.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sec := s.sectionFor(ctx)
	if _, ok := sec.Cycles[cycle.ID]; !ok {
		return fmt.Errorf("cycle %s: %w", cycle.ID, storage.ErrNotFound)
	}
	sec.Cycles[cycle.ID] = cycle.Clone()
	return nil
}

// ListCycles returns cycles matching the filter, in creation order.
func (s *Store) ListCycles(ctx context.Context, filter storage.CycleFilter) ([]*types.CycleInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sec := s.readSection(ctx)
	if sec == nil {
		return nil, nil
	}
	var out []*types.CycleInstance
	for _, id := range sec.cycleOrder {
		c := sec.Cycles[id]
		if filter.ReportID != "" && c.ReportID != filter.ReportID {
			continue
		}
		if filter.Status != nil && c.Status != *filter.Status {
			continue
		}
		if filter.Phase != nil && c.CurrentPhase != *filter.Phase {
			continue
		}
		out = append(out, c.Clone())
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// CreateHumanTask stores a new task, rejecting duplicate ids.
func (s *Store) CreateHumanTask(ctx context.Context, task *types.HumanTask) error {
	if err := task.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sec := s.sectionFor(ctx)
	if _, exists := sec.Tasks[task.ID]; exists {
		return fmt.Errorf("task %s: %w", task.ID, storage.ErrDuplicateID)
	}
	sec.Tasks[task.ID] = task.Clone()
	sec.taskOrder = append(sec.taskOrder, task.ID)
	return nil
}

// GetHumanTask returns one task by id.
func (s *Store) GetHumanTask(ctx context.Context, id string) (*types.HumanTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sec := s.readSection(ctx)
	if sec == nil {
		return nil, fmt.Errorf("task %s: %w", id, storage.ErrNotFound)
	}
	t, ok := sec.Tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, storage.ErrNotFound)
	}
	return t.Clone(), nil
}

// UpdateHumanTask replaces a stored task.
func (s *Store) UpdateHumanTask(ctx context.Context, task *types.HumanTask) error {
	if err := task.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sec := s.sectionFor(ctx)
	if _, ok := sec.Tasks[task.ID]; !ok {
		return fmt.Errorf("task %s: %w", task.ID, storage.ErrNotFound)
	}
	sec.Tasks[task.ID] = task.Clone()
	return nil
}

// ListHumanTasks returns tasks matching the filter, in creation order.
func (s *Store) ListHumanTasks(ctx context.Context, filter storage.TaskFilter) ([]*types.HumanTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sec := s.readSection(ctx)
	if sec == nil {
		return nil, nil
	}
	var out []*types.HumanTask
	for _, id := range sec.taskOrder {
		t := sec.Tasks[id]
		if filter.CycleID != "" && t.CycleID != filter.CycleID {
			continue
		}
		if filter.Type != "" && t.Type != filter.Type {
			continue
		}
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		out = append(out, t.Clone())
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// CreateIssue stores a new issue, rejecting duplicate ids.
func (s *Store) CreateIssue(ctx context.Context, issue *types.Issue) error {
	if err := issue.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sec := s.sectionFor(ctx)
	if _, exists := sec.Issues[issue.ID]; exists {
		return fmt.Errorf("issue %s: %w", issue.ID, storage.ErrDuplicateID)
	}
	sec.Issues[issue.ID] = issue.Clone()
	sec.issueOrder = append(sec.issueOrder, issue.ID)
	return nil
}

// GetIssue returns one issue by id.
func (s *Store) GetIssue(ctx context.Context, id string) (*types.Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sec := s.readSection(ctx)
	if sec == nil {
		return nil, fmt.Errorf("issue %s: %w", id, storage.ErrNotFound)
	}
	i, ok := sec.Issues[id]
	if !ok {
		return nil, fmt.Errorf("issue %s: %w", id, storage.ErrNotFound)
	}
	return i.Clone(), nil
}

// UpdateIssue replaces a stored issue.
func (s *Store) UpdateIssue(ctx context.Context, issue *types.Issue) error {
	if err := issue.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sec := s.sectionFor(ctx)
	if _, ok := sec.Issues[issue.ID]; !ok {
		return fmt.Errorf("issue %s: %w", issue.ID, storage.ErrNotFound)
	}
	sec.Issues[issue.ID] = issue.Clone()
	return nil
}

// DeleteIssue removes an issue.
func (s *Store) DeleteIssue(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec := s.sectionFor(ctx)
	if _, ok := sec.Issues[id]; !ok {
		return fmt.Errorf("issue %s: %w", id, storage.ErrNotFound)
	}
	delete(sec.Issues, id)
	for i, oid := range sec.issueOrder {
		if oid == id {
			sec.issueOrder = append(sec.issueOrder[:i], sec.issueOrder[i+1:]...)
			break
		}
	}
	return nil
}

// SearchIssues returns issues matching the filter, in creation order.
// Invalid filter combinations yield an empty list, not an error.
func (s *Store) SearchIssues(ctx context.Context, filter types.IssueFilter) ([]*types.Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sec := s.readSection(ctx)
	if sec == nil {
		return nil, nil
	}
	var out []*types.Issue
	for _, id := range sec.issueOrder {
		i := sec.Issues[id]
		if !filter.Matches(i) {
			continue
		}
		out = append(out, i.Clone())
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// SaveInventory stores the tenant's CDE inventory.
func (s *Store) SaveInventory(ctx context.Context, inv *types.CDEInventory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec := s.sectionFor(ctx)
	sec.Inventory = inv.Clone()
	return nil
}

// GetInventory returns the tenant's CDE inventory.
func (s *Store) GetInventory(ctx context.Context) (*types.CDEInventory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sec := s.readSection(ctx)
	if sec == nil || sec.Inventory == nil {
		return nil, fmt.Errorf("cde inventory: %w", storage.ErrNotFound)
	}
	return sec.Inventory.Clone(), nil
}

// SaveDQRules upserts the given rules.
func (s *Store) SaveDQRules(ctx context.Context, rules []*types.DQRule) error {
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sec := s.sectionFor(ctx)
	for _, r := range rules {
		if _, exists := sec.DQRules[r.ID]; !exists {
			sec.ruleOrder = append(sec.ruleOrder, r.ID)
		}
		sec.DQRules[r.ID] = r.Clone()
	}
	return nil
}

// ListDQRules returns rules for one CDE (or all rules when cdeID is empty),
// in creation order.
func (s *Store) ListDQRules(ctx context.Context, cdeID string) ([]*types.DQRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sec := s.readSection(ctx)
	if sec == nil {
		return nil, nil
	}
	var out []*types.DQRule
	for _, id := range sec.ruleOrder {
		r := sec.DQRules[id]
		if cdeID != "" && r.CDEID != cdeID {
			continue
		}
		out = append(out, r.Clone())
	}
	return out, nil
}

// Tenants returns the ids of tenants with stored state, sorted.
func (s *Store) Tenants() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.sections))
	for id := range s.sections {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Close implements storage.Storage. The memory backend has nothing to
// release.
func (s *Store) Close() error { return nil }
