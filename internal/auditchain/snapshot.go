package auditchain

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/regsuite/governance/internal/types"
)

// chainLog is the on-disk form of the audit store: per tenant, the ordered
// entry log with hashes intact.
type chainLog struct {
	Tenants map[string][]*types.ImmutableAuditEntry `yaml:"tenants"`
}

// SaveSnapshot writes every tenant's chain to a YAML file. Entries are
// persisted verbatim, hashes included, so a reloaded chain verifies the
// same as the live one.
func (s *Store) SaveSnapshot(path string) error {
	s.mu.RLock()
	chains := make([]*chain, 0, len(s.chains))
	for _, c := range s.chains {
		chains = append(chains, c)
	}
	s.mu.RUnlock()

	log := chainLog{Tenants: make(map[string][]*types.ImmutableAuditEntry, len(chains))}
	for _, c := range chains {
		c.mu.Lock()
		if len(c.entries) > 0 {
			entries := make([]*types.ImmutableAuditEntry, len(c.entries))
			for i, e := range c.entries {
				entries[i] = e.Clone()
			}
			log.Tenants[c.tenantID] = entries
		}
		c.mu.Unlock()
	}

	data, err := yaml.Marshal(&log)
	if err != nil {
		return fmt.Errorf("marshal audit snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write audit snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot replaces the store's chains with a previously saved log.
// Every chain is re-verified entry by entry before it is accepted; a
// snapshot with a tampered or broken chain is rejected whole.
func (s *Store) LoadSnapshot(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator-supplied
	if err != nil {
		return fmt.Errorf("read audit snapshot: %w", err)
	}
	var log chainLog
	if err := yaml.Unmarshal(data, &log); err != nil {
		return fmt.Errorf("unmarshal audit snapshot: %w", err)
	}

	chains := make(map[string]*chain, len(log.Tenants))
	for tenantID, entries := range log.Tenants {
		if result := verifyEntries(entries, GenesisHash); !result.IsValid {
			if result.FirstInvalidSequence != nil {
				return fmt.Errorf("audit snapshot: tenant %s chain invalid at sequence %d: %s",
					tenantID, *result.FirstInvalidSequence, result.Error)
			}
			return fmt.Errorf("audit snapshot: tenant %s chain invalid: %s", tenantID, result.Error)
		}
		c := &chain{tenantID: tenantID, lastHash: GenesisHash, byID: make(map[string]int, len(entries))}
		for _, e := range entries {
			imm := e.Clone()
			c.entries = append(c.entries, imm)
			c.byID[imm.ID] = imm.SequenceNumber
			c.lastHash = imm.EntryHash
		}
		chains[tenantID] = c
	}

	s.mu.Lock()
	s.chains = chains
	s.mu.Unlock()
	return nil
}
