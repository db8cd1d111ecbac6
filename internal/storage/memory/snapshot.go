package memory

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/regsuite/governance/internal/types"
)

// snapshot is the on-disk form of the store: one section per tenant.
type snapshot struct {
	Tenants map[string]*section `yaml:"tenants"`
}

// SaveSnapshot writes the whole store to a YAML file. The snapshot format
// is a convenience for the reference backend; persistent backends define
// their own layout.
func (s *Store) SaveSnapshot(path string) error {
	s.mu.RLock()
	snap := snapshot{Tenants: s.sections}
	data, err := yaml.Marshal(&snap)
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot replaces the store's contents with a previously saved
// snapshot. Listing order is rebuilt from entity creation timestamps.
func (s *Store) LoadSnapshot(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator-supplied
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	var snap snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("unmarshal snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sections = make(map[string]*section, len(snap.Tenants))
	for id, sec := range snap.Tenants {
		if sec == nil {
			sec = newSection()
		}
		if sec.Cycles == nil {
			sec.Cycles = make(map[string]*types.CycleInstance)
		}
		if sec.Tasks == nil {
			sec.Tasks = make(map[string]*types.HumanTask)
		}
		if sec.Issues == nil {
			sec.Issues = make(map[string]*types.Issue)
		}
		if sec.DQRules == nil {
			sec.DQRules = make(map[string]*types.DQRule)
		}
		rebuildOrder(sec)
		s.sections[id] = sec
	}
	return nil
}

// rebuildOrder restores stable listing order after a snapshot load.
func rebuildOrder(sec *section) {
	sec.cycleOrder = sec.cycleOrder[:0]
	for id := range sec.Cycles {
		sec.cycleOrder = append(sec.cycleOrder, id)
	}
	sort.Slice(sec.cycleOrder, func(i, j int) bool {
		a, b := sec.Cycles[sec.cycleOrder[i]], sec.Cycles[sec.cycleOrder[j]]
		if !a.StartedAt.Equal(b.StartedAt) {
			return a.StartedAt.Before(b.StartedAt)
		}
		return a.ID < b.ID
	})

	sec.taskOrder = sec.taskOrder[:0]
	for id := range sec.Tasks {
		sec.taskOrder = append(sec.taskOrder, id)
	}
	sort.Slice(sec.taskOrder, func(i, j int) bool {
		a, b := sec.Tasks[sec.taskOrder[i]], sec.Tasks[sec.taskOrder[j]]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	sec.issueOrder = sec.issueOrder[:0]
	for id := range sec.Issues {
		sec.issueOrder = append(sec.issueOrder, id)
	}
	sort.Slice(sec.issueOrder, func(i, j int) bool {
		a, b := sec.Issues[sec.issueOrder[i]], sec.Issues[sec.issueOrder[j]]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	sec.ruleOrder = sec.ruleOrder[:0]
	for id := range sec.DQRules {
		sec.ruleOrder = append(sec.ruleOrder, id)
	}
	sort.Slice(sec.ruleOrder, func(i, j int) bool {
		a, b := sec.DQRules[sec.ruleOrder[i]], sec.DQRules[sec.ruleOrder[j]]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
