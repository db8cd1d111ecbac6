package auditchain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/regsuite/governance/internal/storage"
)

func TestMerkleRoot_OddLeafDuplication(t *testing.T) {
	a, b, c := "aa", "bb", "cc"
	// With three leaves the unpaired third node pairs with itself.
	want := hashPair(hashPair(a, b), hashPair(c, c))
	if got := merkleRoot([]string{a, b, c}); got != want {
		t.Errorf("merkleRoot = %s, want %s", got, want)
	}
}

func TestMerkleRoot_SingleLeaf(t *testing.T) {
	if got := merkleRoot([]string{"aa"}); got != "aa" {
		t.Errorf("single-leaf root = %s, want the leaf itself", got)
	}
	if got := merkleRoot(nil); got != "" {
		t.Errorf("empty root = %q, want empty", got)
	}
}

func TestProof_VerifiesForEveryEntry(t *testing.T) {
	for _, n := range []int{1, 2, 3, 7, 8} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			s := NewStore()
			ctx := context.Background()
			entries := appendN(t, s, ctx, n)

			for _, e := range entries {
				proof, err := s.Proof(ctx, e.ID)
				if err != nil {
					t.Fatalf("proof for seq %d: %v", e.SequenceNumber, err)
				}
				if !VerifyProof(proof) {
					t.Errorf("proof for seq %d did not verify", e.SequenceNumber)
				}
			}
		})
	}
}

func TestProof_UnknownEntry(t *testing.T) {
	s := NewStore()
	appendN(t, s, context.Background(), 2)
	_, err := s.Proof(context.Background(), "no-such-id")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestProof_RootMatchesVerifyChain(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	entries := appendN(t, s, ctx, 5)

	proof, err := s.Proof(ctx, entries[2].ID)
	if err != nil {
		t.Fatalf("proof: %v", err)
	}
	result := s.VerifyChain(ctx, 0, -1)
	if proof.MerkleRoot != result.MerkleRoot {
		t.Errorf("proof root %s != chain root %s", proof.MerkleRoot, result.MerkleRoot)
	}
}

func TestExport_RoundTrip(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	appendN(t, s, ctx, 6)

	exp, err := s.Export(ctx, 0, -1)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if exp.ChainStartSequence != 0 || exp.ChainEndSequence != 5 {
		t.Fatalf("range = [%d,%d], want [0,5]", exp.ChainStartSequence, exp.ChainEndSequence)
	}

	result := VerifyExport(exp)
	if !result.IsValid {
		t.Fatalf("export should verify: %+v", result)
	}
}

func TestExport_SubRangeVerifies(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	appendN(t, s, ctx, 6)

	exp, err := s.Export(ctx, 2, 4)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	result := VerifyExport(exp)
	if !result.IsValid {
		t.Fatalf("sub-range export should verify: %+v", result)
	}
}

func TestVerifyExport_DetectsTamper(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	appendN(t, s, ctx, 6)

	exp, err := s.Export(ctx, 0, -1)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	exp.Entries[4].Rationale = "forged"

	result := VerifyExport(exp)
	if result.IsValid {
		t.Fatal("tampered export verified as valid")
	}
	if result.FirstInvalidSequence == nil || *result.FirstInvalidSequence != 4 {
		t.Fatalf("first invalid = %v, want 4", result.FirstInvalidSequence)
	}
	if result.Error != ReasonHashTampered {
		t.Errorf("error = %q, want %q", result.Error, ReasonHashTampered)
	}
}

func TestVerifyExport_DetectsRootMismatch(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	appendN(t, s, ctx, 4)

	exp, err := s.Export(ctx, 0, -1)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	exp.MerkleRoot = "deadbeef"

	result := VerifyExport(exp)
	if result.IsValid {
		t.Fatal("export with wrong root verified as valid")
	}
}
