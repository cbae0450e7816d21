// Package registry implements the identifier registry (spec §4.1): a
// disjoint-set over opaque identifiers, partitioned per entity kind, that
// maps heterogeneous identifier sets onto stable canonical IDs and merges
// them on overlap.
package registry

import (
	"sync"

	"github.com/google/uuid"

	"github.com/biblioweave/weaver/internal/ids"
)

// Registry is a concurrency-safe union-find over identifiers of a single
// entity kind. The zero value is not usable; use New.
type Registry struct {
	kind ids.Kind

	mu      sync.Mutex
	idToCID map[string]ids.CanonicalID
	aliases map[ids.CanonicalID]ids.IdentifierSet
}

// New creates an empty registry for one entity kind.
func New(kind ids.Kind) *Registry {
	return &Registry{
		kind:    kind,
		idToCID: make(map[string]ids.CanonicalID),
		aliases: make(map[ids.CanonicalID]ids.IdentifierSet),
	}
}

// Kind returns the entity kind this registry partitions.
func (r *Registry) Kind() ids.Kind { return r.kind }

// CanonicalOf is a pure query: it returns the canonical ID of any member
// of set that is already registered, or "" if none is. When members
// belong to distinct canonicals it deterministically picks the smallest
// canonical ID among the hits and never merges — register is the only
// operation allowed to merge.
func (r *Registry) CanonicalOf(set ids.IdentifierSet) ids.CanonicalID {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best ids.CanonicalID
	for id := range set {
		if cid, ok := r.idToCID[id]; ok && (best == "" || cid < best) {
			best = cid
		}
	}
	return best
}

// Register idempotently registers set, minting a fresh canonical ID if no
// member is known, or merging every overlapping canonical's aliases (plus
// set) under one surviving canonical if one or more are found. The
// critical section is short and never calls out to external storage,
// satisfying the "register must be atomic and non-blocking on I/O"
// requirement of spec §5.
func (r *Registry) Register(set ids.IdentifierSet) (ids.CanonicalID, ids.IdentifierSet, error) {
	if len(set) == 0 {
		return "", nil, ids.ErrInvalidInput
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	hit := make(map[ids.CanonicalID]struct{})
	for id := range set {
		if cid, ok := r.idToCID[id]; ok {
			hit[cid] = struct{}{}
		}
	}

	var primary ids.CanonicalID
	switch len(hit) {
	case 0:
		primary = ids.CanonicalID("cid_" + uuid.NewString())
		r.aliases[primary] = make(ids.IdentifierSet)
	case 1:
		for cid := range hit {
			primary = cid
		}
	default:
		// Multiple canonicals overlap set: pick one deterministically
		// (smallest string value) as the surviving primary and fold the
		// rest into it.
		for cid := range hit {
			if primary == "" || cid < primary {
				primary = cid
			}
		}
		for cid := range hit {
			if cid == primary {
				continue
			}
			for id := range r.aliases[cid] {
				r.idToCID[id] = primary
				r.aliases[primary][id] = struct{}{}
			}
			delete(r.aliases, cid)
		}
	}

	merged := r.aliases[primary]
	for id := range set {
		r.idToCID[id] = primary
		merged[id] = struct{}{}
	}

	return primary, cloneSet(merged), nil
}

// AliasesOf returns every identifier currently bound to cid.
func (r *Registry) AliasesOf(cid ids.CanonicalID) ids.IdentifierSet {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneSet(r.aliases[cid])
}

// Enumerate returns a snapshot of every currently live canonical ID.
// Concurrent Register calls that run after this snapshot is taken need
// not be reflected; the next BFS pass picks them up (spec §4.1).
func (r *Registry) Enumerate() []ids.CanonicalID {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ids.CanonicalID, 0, len(r.aliases))
	for cid := range r.aliases {
		out = append(out, cid)
	}
	return out
}

func cloneSet(s ids.IdentifierSet) ids.IdentifierSet {
	out := make(ids.IdentifierSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}
