// Package pendingmgr implements the pending-list manager (spec §4.5): the
// combination of the identifier registry (C1) and the pending-list store
// (C3) for a single relation, responsible for deduping children by
// canonical ID and merging their identifiers on read.
package pendingmgr

import (
	"github.com/biblioweave/weaver/internal/ids"
	"github.com/biblioweave/weaver/internal/pendingstore"
	"github.com/biblioweave/weaver/internal/registry"
)

// Manager combines a child-kind Registry and a pendingstore.Store for one
// relation.
type Manager struct {
	childReg *registry.Registry
	store    pendingstore.Store
}

// New creates a Manager. childReg must be the registry for the relation's
// child kind.
func New(childReg *registry.Registry, store pendingstore.Store) *Manager {
	return &Manager{childReg: childReg, store: store}
}

// GetPending reads the raw list for parent, re-registering each element
// so callers always observe the current merged identifier closure.
// Returns ok=false iff the list was never set — distinct from an
// explicitly-empty list, which means "parent has no children of this
// kind" (spec §4.5, §8).
func (m *Manager) GetPending(parent ids.CanonicalID) ([]ids.IdentifierSet, bool) {
	raw, ok := m.store.Get(parent)
	if !ok {
		return nil, false
	}
	merged := make([]ids.IdentifierSet, len(raw))
	for i, childSet := range raw {
		_, aliases, err := m.childReg.Register(childSet)
		if err != nil {
			// childSet came from storage and was non-empty when first
			// written; defensive only.
			merged[i] = childSet
			continue
		}
		merged[i] = aliases
	}
	return merged, true
}

// AddPending registers every identifier set in children, dedupes them by
// canonical ID against the list already on file, and writes back the
// union: children already present keep their prior position, enriched
// in place if a richer identifier set arrived; genuinely new children are
// appended in input order (spec §4.5's ordering guarantee, preserving
// e.g. paper author order).
//
// Returns the merged alias set for each input position, in the same
// order as the children argument, so the caller can update its in-memory
// child handles.
func (m *Manager) AddPending(parent ids.CanonicalID, children []ids.IdentifierSet) ([]ids.IdentifierSet, error) {
	existing, _ := m.store.Get(parent)

	order := make([]ids.CanonicalID, 0, len(existing)+len(children))
	byCID := make(map[ids.CanonicalID]ids.IdentifierSet, len(existing)+len(children))

	for _, childSet := range existing {
		cid, aliases, err := m.childReg.Register(childSet)
		if err != nil {
			continue
		}
		if _, seen := byCID[cid]; !seen {
			order = append(order, cid)
		}
		byCID[cid] = aliases
	}

	result := make([]ids.IdentifierSet, len(children))
	for i, childSet := range children {
		cid, aliases, err := m.childReg.Register(childSet)
		if err != nil {
			return nil, err
		}
		if _, seen := byCID[cid]; !seen {
			order = append(order, cid)
		}
		byCID[cid] = aliases // overwrite with the (possibly richer) incoming aliases
		result[i] = aliases
	}

	list := make([]ids.IdentifierSet, len(order))
	for i, cid := range order {
		list[i] = byCID[cid]
	}
	m.store.Set(parent, list)

	return result, nil
}
