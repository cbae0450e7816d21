package edgestore

import (
	"sync"
	"testing"

	"github.com/biblioweave/weaver/internal/ids"
)

func TestCommitOnce(t *testing.T) {
	s := NewMemory()
	e := Edge{Relation: ids.RelAuthored, Parent: "p1", Child: "a1"}

	if s.Contains(e) {
		t.Fatal("expected edge absent initially")
	}
	if !s.Commit(e) {
		t.Fatal("expected first commit to report newlyCommitted=true")
	}
	if s.Commit(e) {
		t.Fatal("expected second commit to report newlyCommitted=false")
	}
	if !s.Contains(e) {
		t.Fatal("expected edge present after commit")
	}
}

func TestDirectionalityIsIndependent(t *testing.T) {
	s := NewMemory()
	ab := Edge{Relation: ids.RelCites, Parent: "a", Child: "b"}
	ba := Edge{Relation: ids.RelCites, Parent: "b", Child: "a"}

	s.Commit(ab)
	if s.Contains(ba) {
		t.Fatal("expected (b,a) to be independent of committed (a,b)")
	}
}

// TestConcurrentCommitRace exercises spec §5's "two concurrent parent
// steps race to commit the same edge" scenario (S4): exactly one caller
// must observe newlyCommitted=true.
func TestConcurrentCommitRace(t *testing.T) {
	s := NewMemory()
	e := Edge{Relation: ids.RelAuthored, Parent: "p1", Child: "a1"}

	const n = 50
	var wg sync.WaitGroup
	results := make([]bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.Commit(e)
		}(i)
	}
	wg.Wait()

	newCount := 0
	for _, r := range results {
		if r {
			newCount++
		}
	}
	if newCount != 1 {
		t.Fatalf("expected exactly 1 newlyCommitted=true among %d racers, got %d", n, newCount)
	}
}
