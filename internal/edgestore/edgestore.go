// Package edgestore implements the committed-edge store (spec §4.3): a
// permanent, never-TTL'd record of (relation, parent_cid, child_cid)
// triples already written to the destination, giving the engine its
// commit-once guarantee (spec invariant I5).
package edgestore

import (
	"sync"

	"github.com/biblioweave/weaver/internal/ids"
)

// Edge identifies one directed, typed relation instance.
type Edge struct {
	Relation ids.Relation
	Parent   ids.CanonicalID
	Child    ids.CanonicalID
}

// Store is the narrow interface consumed by the BFS step (C8). Contains
// must be safe to race against concurrent Commit calls for the same key:
// per spec §5, two concurrent parent steps may race to commit the same
// edge via different relations, and the store must make check-then-commit
// atomic.
type Store interface {
	// Contains reports whether e is already committed.
	Contains(e Edge) bool
	// Commit records e as committed. Returns true if this call newly
	// committed it, false if it was already committed (so the caller
	// never double-counts a "new edge").
	Commit(e Edge) (newlyCommitted bool)
}

// EnumerableStore is a Store that can also list everything committed so
// far. Optional: only the in-memory backend implements it (an external-kv
// backend may have no cheap full scan), so callers that want to walk the
// committed graph (e.g. a debugging trace) must type-assert for it.
type EnumerableStore interface {
	Store
	Enumerate() []Edge
}

// Memory is an in-process Store. Registry and committed-edge namespaces
// are never TTL'd (spec §6), so Memory has no expiry support by design.
type Memory struct {
	mu   sync.Mutex
	seen map[Edge]struct{}
}

// NewMemory creates an empty in-process committed-edge store.
func NewMemory() *Memory {
	return &Memory{seen: make(map[Edge]struct{})}
}

// Contains implements Store.
func (m *Memory) Contains(e Edge) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.seen[e]
	return ok
}

// Commit implements Store, atomically via the same mutex guarding
// Contains — the check-then-commit race described in spec §5 cannot
// split two commits of the same edge into two "new edge" outcomes.
func (m *Memory) Commit(e Edge) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[e]; ok {
		return false
	}
	m.seen[e] = struct{}{}
	return true
}

// Enumerate returns a snapshot of every edge committed so far, in no
// particular order. Grounded on the donor's dependency-graph walker
// (internal/deps in the donor), repurposed here for a committed-edge
// trace instead of a build-dependency tree.
func (m *Memory) Enumerate() []Edge {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Edge, 0, len(m.seen))
	for e := range m.seen {
		out = append(out, e)
	}
	return out
}

// KVClient is a minimal external store contract capable of an atomic
// "set if absent" — the primitive a networked committed-edge backend
// needs to preserve the commit-once guarantee across processes (spec
// §5's "destination's own MERGE/upsert semantics absorb the duplicate"
// escape hatch is for the destination; this is for the cache layer).
type KVClient interface {
	// SetIfAbsent returns true if key was not already present and is now
	// set, false if it already existed.
	SetIfAbsent(key string) (bool, error)
	Exists(key string) (bool, error)
}

// ExternalKV is a Store backed by an external KVClient.
type ExternalKV struct {
	client KVClient
	prefix string
}

// NewExternalKV wires an ExternalKV committed-edge store.
func NewExternalKV(client KVClient, prefix string) *ExternalKV {
	return &ExternalKV{client: client, prefix: prefix}
}

// Contains implements Store.
func (e *ExternalKV) Contains(edge Edge) bool {
	ok, err := e.client.Exists(e.key(edge))
	return err == nil && ok
}

// Commit implements Store.
func (e *ExternalKV) Commit(edge Edge) bool {
	ok, err := e.client.SetIfAbsent(e.key(edge))
	return err == nil && ok
}

func (e *ExternalKV) key(edge Edge) string {
	return e.prefix + ":" + string(edge.Relation) + ":" + string(edge.Parent) + ":" + string(edge.Child)
}
