package auditchain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/regsuite/governance/internal/storage"
	"github.com/regsuite/governance/internal/tenant"
)

// ProofSide says which side a sibling hash sits on when recomputing the
// path to the root.
type ProofSide string

// Proof sides
const (
	SideLeft  ProofSide = "left"
	SideRight ProofSide = "right"
)

// ProofStep is one sibling on the path from a leaf to the Merkle root.
type ProofStep struct {
	SiblingHash string    `json:"sibling_hash"`
	Side        ProofSide `json:"side"`
}

// MerkleProof is an inclusion proof for one audit entry.
type MerkleProof struct {
	EntryID    string      `json:"entry_id"`
	EntryHash  string      `json:"entry_hash"`
	Path       []ProofStep `json:"proof_path"`
	MerkleRoot string      `json:"merkle_root"`
}

// merkleRoot builds the binary tree over the leaf hashes in sequence order.
// An odd node at any level is duplicated (hashed with itself). This
// self-pairing differs from RFC 6962 and is preserved for export
// compatibility.
func merkleRoot(leaves []string) string {
	if len(leaves) == 0 {
		return ""
	}
	level := append([]string(nil), leaves...)
	for len(level) > 1 {
		next := make([]string, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, hashPair(left, right))
		}
		level = next
	}
	return level[0]
}

func hashPair(left, right string) string {
	sum := sha256.Sum256([]byte(left + right))
	return hex.EncodeToString(sum[:])
}

// merkleProofPath computes the sibling path for the leaf at index.
func merkleProofPath(leaves []string, index int) []ProofStep {
	var path []ProofStep
	level := append([]string(nil), leaves...)
	for len(level) > 1 {
		var sibling string
		var side ProofSide
		if index%2 == 0 {
			// Right sibling; an unpaired last node pairs with itself.
			if index+1 < len(level) {
				sibling = level[index+1]
			} else {
				sibling = level[index]
			}
			side = SideRight
		} else {
			sibling = level[index-1]
			side = SideLeft
		}
		path = append(path, ProofStep{SiblingHash: sibling, Side: side})

		next := make([]string, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, hashPair(left, right))
		}
		level = next
		index /= 2
	}
	return path
}

// Proof returns a Merkle inclusion proof for the entry with the given id,
// over the tenant's full chain.
func (s *Store) Proof(ctx context.Context, entryID string) (*MerkleProof, error) {
	c := s.chainFor(tenant.ID(ctx))
	c.mu.Lock()
	defer c.mu.Unlock()

	seq, ok := c.byID[entryID]
	if !ok {
		return nil, fmt.Errorf("audit entry %s: %w", entryID, storage.ErrNotFound)
	}
	leaves := make([]string, len(c.entries))
	for i, e := range c.entries {
		leaves[i] = e.EntryHash
	}
	return &MerkleProof{
		EntryID:    entryID,
		EntryHash:  c.entries[seq].EntryHash,
		Path:       merkleProofPath(leaves, seq),
		MerkleRoot: merkleRoot(leaves),
	}, nil
}

// VerifyProof recomputes the root from a leaf hash and its proof path.
func VerifyProof(proof *MerkleProof) bool {
	h := proof.EntryHash
	for _, step := range proof.Path {
		if step.Side == SideLeft {
			h = hashPair(step.SiblingHash, h)
		} else {
			h = hashPair(h, step.SiblingHash)
		}
	}
	return h == proof.MerkleRoot
}
