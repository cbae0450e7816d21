// Package destination defines the destination contract (spec §6): the
// narrow interface the weaver writes through to an external graph store.
// The concrete store is an external collaborator (spec §1); this package
// provides only the interface and an in-memory fixture for tests.
package destination

import (
	"context"
	"sync"

	"github.com/biblioweave/weaver/internal/ids"
)

// Destination is the narrow interface the BFS step writes through. Both
// operations are idempotent and may be called concurrently; the
// destination is responsible for its own consistency (spec §6).
type Destination interface {
	// SaveInfo upserts a node carrying entity's identifiers and info,
	// merging with any existing node that shares an identifier.
	SaveInfo(ctx context.Context, kind ids.Kind, entityIDs ids.IdentifierSet, info ids.Info) error
	// Link upserts a typed directed edge, creating nodes on demand if
	// either endpoint is missing.
	Link(ctx context.Context, relation ids.Relation, parentIDs, childIDs ids.IdentifierSet) error
}

// node is one saved node of the fixture: its accumulated identifiers and
// its latest info. The fixture finds a node by scanning for identifier
// overlap, without a real graph engine's indexing.
type node struct {
	ids  ids.IdentifierSet
	info ids.Info
}

// Fixture is an in-memory Destination for tests: it tracks saved nodes
// per kind (merging on identifier overlap, as a real destination would)
// and a log of every Link call, duplicates included, so tests can check
// the commit-once expectation the engine relies on as property P3.
type Fixture struct {
	mu    sync.Mutex
	nodes map[ids.Kind][]*node
	links []LinkCall
}

// LinkCall records one observed Link invocation, for assertions in
// tests about how many times an edge was actually written (property P3).
type LinkCall struct {
	Relation ids.Relation
	ParentID string // one representative identifier, for readability
	ChildID  string
}

// NewFixture creates an empty in-memory destination.
func NewFixture() *Fixture {
	return &Fixture{nodes: make(map[ids.Kind][]*node)}
}

// SaveInfo implements Destination.
func (f *Fixture) SaveInfo(_ context.Context, kind ids.Kind, entityIDs ids.IdentifierSet, info ids.Info) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, n := range f.nodes[kind] {
		if n.ids.Overlaps(entityIDs) {
			n.ids = n.ids.Union(entityIDs)
			n.info = info.Clone()
			return nil
		}
	}
	f.nodes[kind] = append(f.nodes[kind], &node{ids: entityIDs.Union(nil), info: info.Clone()})
	return nil
}

// Link implements Destination.
func (f *Fixture) Link(_ context.Context, relation ids.Relation, parentIDs, childIDs ids.IdentifierSet) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.links = append(f.links, LinkCall{
		Relation: relation,
		ParentID: firstOf(parentIDs),
		ChildID:  firstOf(childIDs),
	})
	return nil
}

// NodeCount returns how many distinct nodes of kind have been saved.
func (f *Fixture) NodeCount(kind ids.Kind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.nodes[kind])
}

// LinkCalls returns every Link invocation observed so far, in call
// order — including duplicates, so tests can assert on property P3
// ("at most one link(R, p, c) after the first successful commit") by
// inspecting this directly instead of trusting the engine's own
// bookkeeping.
func (f *Fixture) LinkCalls() []LinkCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]LinkCall, len(f.links))
	copy(out, f.links)
	return out
}

func firstOf(set ids.IdentifierSet) string {
	for id := range set {
		return id
	}
	return ""
}
