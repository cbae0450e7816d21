// Package entityinfo implements the entity-info manager (spec §4.4): the
// combination of the identifier registry (C1) and the info store (C2)
// for a single entity kind.
package entityinfo

import (
	"github.com/biblioweave/weaver/internal/ids"
	"github.com/biblioweave/weaver/internal/infostore"
	"github.com/biblioweave/weaver/internal/registry"
)

// Manager combines one Registry and one infostore.Store for a single
// entity kind.
type Manager struct {
	reg   *registry.Registry
	store infostore.Store
}

// New creates a Manager over reg and store. Both must be scoped to the
// same entity kind.
func New(reg *registry.Registry, store infostore.Store) *Manager {
	return &Manager{reg: reg, store: store}
}

// Kind returns the entity kind this manager tracks.
func (m *Manager) Kind() ids.Kind { return m.reg.Kind() }

// GetInfo looks up set and, on a hit, always folds it into the registry's
// equivalence class. Per spec §9's Open Questions resolution, merging on
// get is the default mode; a pure-query variant is provided separately as
// GetInfoNoMerge for callers that explicitly need to avoid mutating the
// registry.
//
// Returns ("", nil, nil, false) if set resolves to no known canonical.
func (m *Manager) GetInfo(set ids.IdentifierSet) (ids.CanonicalID, ids.IdentifierSet, ids.Info, bool) {
	cid := m.reg.CanonicalOf(set)
	if cid == "" {
		return "", nil, nil, false
	}
	cid, aliases, err := m.reg.Register(set)
	if err != nil {
		// set was non-empty (CanonicalOf already found a hit), so this
		// cannot fail; defensive only.
		return "", nil, nil, false
	}
	info, _ := m.store.Get(cid)
	return cid, aliases, info, true
}

// GetInfoNoMerge is a pure-query variant: it resolves set to its current
// canonical and info without registering set's identifiers. Marked
// distinctly per spec §9: "if the implementer wishes to offer a
// pure-query variant, it must be clearly marked".
func (m *Manager) GetInfoNoMerge(set ids.IdentifierSet) (ids.CanonicalID, ids.Info, bool) {
	cid := m.reg.CanonicalOf(set)
	if cid == "" {
		return "", nil, false
	}
	info, _ := m.store.Get(cid)
	return cid, info, true
}

// SetInfo registers set and overwrites its info.
func (m *Manager) SetInfo(set ids.IdentifierSet, info ids.Info) (ids.CanonicalID, ids.IdentifierSet, error) {
	cid, aliases, err := m.reg.Register(set)
	if err != nil {
		return "", nil, err
	}
	m.store.Set(cid, info)
	return cid, aliases, nil
}

// RegisterOnly registers set without touching info.
func (m *Manager) RegisterOnly(set ids.IdentifierSet) (ids.CanonicalID, ids.IdentifierSet, error) {
	return m.reg.Register(set)
}

// EntityHandle is one element of IterateEntities' result.
type EntityHandle struct {
	CID     ids.CanonicalID
	Aliases ids.IdentifierSet
}

// IterateEntities wraps Registry.Enumerate, pairing each canonical with
// its current aliases (spec §4.4).
func (m *Manager) IterateEntities() []EntityHandle {
	cids := m.reg.Enumerate()
	out := make([]EntityHandle, 0, len(cids))
	for _, cid := range cids {
		out = append(out, EntityHandle{CID: cid, Aliases: m.reg.AliasesOf(cid)})
	}
	return out
}
