package registry

import (
	"sync"
	"testing"

	"github.com/biblioweave/weaver/internal/ids"
)

func set(t *testing.T, raw ...string) ids.IdentifierSet {
	t.Helper()
	s, err := ids.NewIdentifierSet(raw...)
	if err != nil {
		t.Fatalf("NewIdentifierSet(%v): %v", raw, err)
	}
	return s
}

func TestRegisterMintsFreshCanonical(t *testing.T) {
	r := New(ids.KindPaper)

	cid, aliases, err := r.Register(set(t, "doi:10.1/x"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if cid == "" {
		t.Fatal("expected non-empty canonical id")
	}
	if len(aliases) != 1 {
		t.Fatalf("expected 1 alias, got %d", len(aliases))
	}
}

func TestRegisterIdempotent(t *testing.T) {
	r := New(ids.KindPaper)

	cid1, _, err := r.Register(set(t, "doi:10.1/x"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	cid2, _, err := r.Register(set(t, "doi:10.1/x"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if cid1 != cid2 {
		t.Fatalf("expected same canonical id, got %q and %q", cid1, cid2)
	}
}

func TestRegisterMergesOnOverlap(t *testing.T) {
	r := New(ids.KindAuthor)

	cidA, _, err := r.Register(set(t, "o:O1"))
	if err != nil {
		t.Fatalf("Register A: %v", err)
	}
	cidB, _, err := r.Register(set(t, "ss:S1"))
	if err != nil {
		t.Fatalf("Register B: %v", err)
	}
	if cidA == cidB {
		t.Fatal("expected distinct canonicals before merge")
	}

	merged, aliases, err := r.Register(set(t, "o:O1", "ss:S1"))
	if err != nil {
		t.Fatalf("Register merge: %v", err)
	}
	if merged != cidA && merged != cidB {
		t.Fatalf("merged canonical %q should be one of %q, %q", merged, cidA, cidB)
	}
	if len(aliases) != 2 {
		t.Fatalf("expected 2 merged aliases, got %d: %v", len(aliases), aliases)
	}

	// Both original handles now resolve to the same canonical (P1).
	if r.CanonicalOf(set(t, "o:O1")) != r.CanonicalOf(set(t, "ss:S1")) {
		t.Fatal("expected both identifiers to resolve to the same canonical after merge")
	}
}

func TestCanonicalOfIsPureQuery(t *testing.T) {
	r := New(ids.KindPaper)
	if got := r.CanonicalOf(set(t, "doi:unknown")); got != "" {
		t.Fatalf("expected empty canonical for unknown id, got %q", got)
	}

	cid, _, _ := r.Register(set(t, "doi:10.1/x"))
	if got := r.CanonicalOf(set(t, "doi:10.1/x")); got != cid {
		t.Fatalf("expected %q, got %q", cid, got)
	}
	// A query must never mutate state: repeated calls are stable.
	if got := r.CanonicalOf(set(t, "doi:10.1/x")); got != cid {
		t.Fatalf("expected stable %q, got %q", cid, got)
	}
}

func TestAliasesOfMonotonicallyGrows(t *testing.T) {
	r := New(ids.KindPaper)
	cid, _, _ := r.Register(set(t, "doi:10.1/x"))
	if len(r.AliasesOf(cid)) != 1 {
		t.Fatalf("expected 1 alias")
	}

	cid2, _, err := r.Register(set(t, "doi:10.1/x", "arxiv:1706.03762"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if cid2 != cid {
		t.Fatalf("expected same canonical %q, got %q", cid, cid2)
	}
	if len(r.AliasesOf(cid)) != 2 {
		t.Fatalf("expected aliases to grow to 2, got %d", len(r.AliasesOf(cid)))
	}
}

func TestEnumerateSnapshot(t *testing.T) {
	r := New(ids.KindVenue)
	r.Register(set(t, "issn:1"))
	r.Register(set(t, "issn:2"))
	if got := len(r.Enumerate()); got != 2 {
		t.Fatalf("expected 2 live canonicals, got %d", got)
	}
}

func TestRegisterEmptySetRejected(t *testing.T) {
	r := New(ids.KindPaper)
	if _, _, err := r.Register(ids.IdentifierSet{}); err == nil {
		t.Fatal("expected error for empty identifier set")
	}
}

// TestConcurrentOverlappingRegisterProducesOneCanonical exercises the
// atomicity requirement of spec §4.1: two concurrent Register calls whose
// sets overlap must never leave two canonicals needing later
// reconciliation.
func TestConcurrentOverlappingRegisterProducesOneCanonical(t *testing.T) {
	r := New(ids.KindAuthor)

	var wg sync.WaitGroup
	results := make([]ids.CanonicalID, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		cid, _, _ := r.Register(set(t, "o:O1", "shared:X"))
		results[0] = cid
	}()
	go func() {
		defer wg.Done()
		cid, _, _ := r.Register(set(t, "ss:S1", "shared:X"))
		results[1] = cid
	}()
	wg.Wait()

	final, _, err := r.Register(set(t, "o:O1", "ss:S1"))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if final != results[0] || final != results[1] {
		t.Fatalf("expected single surviving canonical, got %v merging to %q", results, final)
	}
}
