package auditchain

import (
	"context"
	"fmt"

	"github.com/regsuite/governance/internal/tenant"
	"github.com/regsuite/governance/internal/types"
)

// Export is a self-contained, externally verifiable slice of a chain.
type Export struct {
	Entries            []*types.ImmutableAuditEntry `json:"entries"`
	MerkleRoot         string                       `json:"merkle_root"`
	ChainStartSequence int                          `json:"chain_start_sequence"`
	ChainEndSequence   int                          `json:"chain_end_sequence"`
	TenantID           string                       `json:"tenant_id"`
}

// Export copies the entries in [start, end] (negative end means the last
// entry) together with their Merkle root for external verification.
func (s *Store) Export(ctx context.Context, start, end int) (*Export, error) {
	tenantID := tenant.ID(ctx)
	c := s.chainFor(tenantID)
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.entriesInRange(start, end)
	if len(entries) == 0 {
		return nil, fmt.Errorf("export range [%d,%d] is empty", start, end)
	}
	out := &Export{
		Entries:            make([]*types.ImmutableAuditEntry, len(entries)),
		ChainStartSequence: entries[0].SequenceNumber,
		ChainEndSequence:   entries[len(entries)-1].SequenceNumber,
		TenantID:           tenantID,
	}
	leaves := make([]string, len(entries))
	for i, e := range entries {
		out.Entries[i] = e.Clone()
		leaves[i] = e.EntryHash
	}
	out.MerkleRoot = merkleRoot(leaves)
	return out, nil
}

// VerifyExport recomputes the chain and Merkle root of an export without
// access to the live store. The first entry's previous_hash is trusted as
// the anchor when the export does not begin at the genesis entry.
func VerifyExport(exp *Export) VerificationResult {
	if exp == nil || len(exp.Entries) == 0 {
		return VerificationResult{Error: "empty export"}
	}
	expectedPrev := exp.Entries[0].PreviousHash
	if exp.ChainStartSequence == 0 {
		expectedPrev = GenesisHash
	}
	result := verifyEntries(exp.Entries, expectedPrev)
	if result.IsValid && result.MerkleRoot != exp.MerkleRoot {
		result.IsValid = false
		result.Error = "merkle root mismatch"
		result.MerkleRoot = ""
	}
	return result
}
