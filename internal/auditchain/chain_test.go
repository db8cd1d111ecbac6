package auditchain

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/regsuite/governance/internal/tenant"
	"github.com/regsuite/governance/internal/types"
)

func testEntry(action string) *types.AuditEntry {
	return &types.AuditEntry{
		Actor:      "alice",
		ActorType:  types.ActorHuman,
		Action:     action,
		EntityType: "issue",
		EntityID:   "iss-1",
	}
}

func appendN(t *testing.T, s *Store, ctx context.Context, n int) []*types.ImmutableAuditEntry {
	t.Helper()
	out := make([]*types.ImmutableAuditEntry, n)
	for i := 0; i < n; i++ {
		e, err := s.Append(ctx, testEntry(fmt.Sprintf("action_%d", i)))
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		out[i] = e
	}
	return out
}

func TestAppend_ChainsHashes(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	entries := appendN(t, s, ctx, 3)

	if entries[0].PreviousHash != GenesisHash {
		t.Errorf("first entry previous_hash = %s, want genesis", entries[0].PreviousHash)
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].PreviousHash != entries[i-1].EntryHash {
			t.Errorf("entry %d previous_hash does not match entry %d hash", i, i-1)
		}
		if entries[i].SequenceNumber != i {
			t.Errorf("entry %d sequence = %d", i, entries[i].SequenceNumber)
		}
	}
}

func TestAppend_IdenticalContentDifferentPrevHash(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	a, err := s.Append(ctx, testEntry("same_action"))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	b, err := s.Append(ctx, testEntry("same_action"))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if a.EntryHash == b.EntryHash {
		t.Error("entries with identical content but different previous_hash must hash differently")
	}
}

func TestVerifyChain_Valid(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	appendN(t, s, ctx, 10)

	result := s.VerifyChain(ctx, 0, -1)
	if !result.IsValid {
		t.Fatalf("fresh chain should verify: %+v", result)
	}
	if result.EntriesChecked != 10 {
		t.Errorf("checked %d entries, want 10", result.EntriesChecked)
	}
	if result.MerkleRoot == "" {
		t.Error("valid result should carry a merkle root")
	}
}

func TestVerifyChain_DetectsTamperedEntry(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	appendN(t, s, ctx, 10)

	// Reach into the stored chain and tamper with one entry in place.
	c := s.chainFor(tenant.DefaultTenant)
	c.entries[5].Action = "forged_action"

	result := s.VerifyChain(ctx, 0, -1)
	if result.IsValid {
		t.Fatal("tampered chain verified as valid")
	}
	if result.FirstInvalidSequence == nil || *result.FirstInvalidSequence != 5 {
		t.Fatalf("first invalid sequence = %v, want 5", result.FirstInvalidSequence)
	}
	if result.Error != ReasonHashTampered {
		t.Errorf("error = %q, want %q", result.Error, ReasonHashTampered)
	}
}

func TestVerifyChain_DetectsBrokenLink(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	appendN(t, s, ctx, 5)

	c := s.chainFor(tenant.DefaultTenant)
	// Replace entry 3 wholesale with a self-consistent entry that does not
	// link to entry 2.
	forged := c.entries[3].Clone()
	forged.PreviousHash = GenesisHash
	forged.EntryHash = ComputeEntryHash(forged)
	c.entries[3] = forged

	result := s.VerifyChain(ctx, 0, -1)
	if result.IsValid {
		t.Fatal("broken chain verified as valid")
	}
	if result.FirstInvalidSequence == nil || *result.FirstInvalidSequence != 3 {
		t.Fatalf("first invalid sequence = %v, want 3", result.FirstInvalidSequence)
	}
	if result.Error != ReasonChainBroken {
		t.Errorf("error = %q, want %q", result.Error, ReasonChainBroken)
	}
}

func TestVerifyChain_SubRange(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	appendN(t, s, ctx, 8)

	result := s.VerifyChain(ctx, 3, 6)
	if !result.IsValid {
		t.Fatalf("sub-range should verify: %+v", result)
	}
	if result.EntriesChecked != 4 {
		t.Errorf("checked %d entries, want 4", result.EntriesChecked)
	}
}

func TestCanonicalSerialize_NullDistinctFromEmpty(t *testing.T) {
	base := &types.ImmutableAuditEntry{AuditEntry: *testEntry("x")}
	withNil := base.Clone()
	withNil.NewState = nil
	withEmpty := base.Clone()
	withEmpty.NewState = map[string]any{}

	if ComputeEntryHash(withNil) == ComputeEntryHash(withEmpty) {
		t.Error("nil state and empty state must serialize differently")
	}
}

func TestAppend_ConcurrentSequenceMonotonic(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := s.Append(ctx, testEntry(fmt.Sprintf("concurrent_%d", i))); err != nil {
				t.Errorf("append: %v", err)
			}
		}(i)
	}
	wg.Wait()

	result := s.VerifyChain(ctx, 0, -1)
	if !result.IsValid {
		t.Fatalf("concurrently built chain should verify: %+v", result)
	}
	if s.Len(ctx) != n {
		t.Errorf("chain length = %d, want %d", s.Len(ctx), n)
	}
}

func TestAppend_TenantChainsIndependent(t *testing.T) {
	s := NewStore()
	ctxA := tenant.WithBinding(context.Background(), tenant.NewBinding("acme", "a", types.ActorHuman))
	ctxB := tenant.WithBinding(context.Background(), tenant.NewBinding("globex", "b", types.ActorHuman))

	appendN(t, s, ctxA, 3)
	eB, err := s.Append(ctxB, testEntry("first"))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if eB.SequenceNumber != 0 || eB.PreviousHash != GenesisHash {
		t.Errorf("tenant chains must be independent: seq=%d prev=%s", eB.SequenceNumber, eB.PreviousHash)
	}
	if eB.TenantID != "globex" {
		t.Errorf("tenant id = %s, want globex", eB.TenantID)
	}
}

func TestList_Filters(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	appendN(t, s, ctx, 5)
	if _, err := s.Append(ctx, &types.AuditEntry{
		Actor: "bob", ActorType: types.ActorHuman,
		Action: "approve_catalog", EntityType: "report_catalog", EntityID: "cat-1",
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := s.List(ctx, types.AuditFilter{Actor: "bob"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].Action != "approve_catalog" {
		t.Fatalf("expected bob's single entry, got %d", len(got))
	}

	got, err = s.List(ctx, types.AuditFilter{Actor: "bob", Action: "action_0"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 0 {
		t.Error("conjunctive filter with no matches should return empty")
	}
}

func TestList_ReturnsCopies(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	appendN(t, s, ctx, 2)

	got, err := s.List(ctx, types.AuditFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	got[0].Action = "mutated"

	result := s.VerifyChain(ctx, 0, -1)
	if !result.IsValid {
		t.Fatal("mutating a listed copy must not affect the stored chain")
	}
}
