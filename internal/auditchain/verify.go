package auditchain

import (
	"context"

	"github.com/regsuite/governance/internal/tenant"
	"github.com/regsuite/governance/internal/types"
)

// Verification failure reasons.
const (
	// ReasonChainBroken marks a previous_hash that does not match the
	// preceding entry's hash.
	ReasonChainBroken = "chain_broken"
	// ReasonHashTampered marks an entry whose recomputed hash differs
	// from the stored one.
	ReasonHashTampered = "hash_tampered"
)

// VerificationResult reports the outcome of a chain verification walk.
// Failures are reported in the result, never raised as errors.
type VerificationResult struct {
	IsValid              bool   `json:"is_valid"`
	EntriesChecked       int    `json:"entries_checked"`
	FirstInvalidSequence *int   `json:"first_invalid_sequence,omitempty"`
	MerkleRoot           string `json:"merkle_root,omitempty"`
	Error                string `json:"error,omitempty"`
}

// VerifyChain walks the tenant's chain over [start, end] (negative end
// means the last entry), recomputing every hash and checking every link.
// The Merkle root is only reported for a valid range.
func (s *Store) VerifyChain(ctx context.Context, start, end int) VerificationResult {
	c := s.chainFor(tenant.ID(ctx))
	c.mu.Lock()
	defer c.mu.Unlock()
	return verifyEntries(c.entriesInRange(start, end), prevHashBefore(c, start))
}

// prevHashBefore returns the expected previous_hash for the entry at
// sequence start. Callers must hold c.mu.
func prevHashBefore(c *chain, start int) string {
	if start <= 0 || start > len(c.entries) {
		return GenesisHash
	}
	return c.entries[start-1].EntryHash
}

// verifyEntries checks hash integrity and chain linkage for a contiguous
// run of entries. expectedPrev is the hash the first entry must link to.
func verifyEntries(entries []*types.ImmutableAuditEntry, expectedPrev string) VerificationResult {
	result := VerificationResult{IsValid: true}
	for i, e := range entries {
		// Hash check first: a tampered entry also breaks the next link,
		// and the tamper is the root cause to report.
		if ComputeEntryHash(e) != e.EntryHash {
			seq := e.SequenceNumber
			return VerificationResult{
				EntriesChecked:       i + 1,
				FirstInvalidSequence: &seq,
				Error:                ReasonHashTampered,
			}
		}
		if e.PreviousHash != expectedPrev {
			seq := e.SequenceNumber
			return VerificationResult{
				EntriesChecked:       i + 1,
				FirstInvalidSequence: &seq,
				Error:                ReasonChainBroken,
			}
		}
		expectedPrev = e.EntryHash
		result.EntriesChecked = i + 1
	}
	if result.IsValid && len(entries) > 0 {
		leaves := make([]string, len(entries))
		for i, e := range entries {
			leaves[i] = e.EntryHash
		}
		result.MerkleRoot = merkleRoot(leaves)
	}
	return result
}
