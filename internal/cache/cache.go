// Package cache implements the cache composition (spec §4.10, C10): the
// concrete cache object the BFS step and driver consume is the union of
// one entity-info manager (C5) per entity kind, one pending-list manager
// (C6) per relation, and a single committed-edge store (C4), presented
// behind one narrow facade. Per the donor's "deep inheritance" design
// note (spec §9), this is a plain aggregate of narrow per-capability
// interfaces — composition, not an interface hierarchy.
package cache

import (
	"fmt"
	"time"

	"github.com/biblioweave/weaver/internal/edgestore"
	"github.com/biblioweave/weaver/internal/entityinfo"
	"github.com/biblioweave/weaver/internal/ids"
	"github.com/biblioweave/weaver/internal/infostore"
	"github.com/biblioweave/weaver/internal/pendingmgr"
	"github.com/biblioweave/weaver/internal/pendingstore"
	"github.com/biblioweave/weaver/internal/registry"
)

// Cache is the C10 facade. Construct it with NewMemory or NewBuilder; do not build
// one by hand, since the entity-info manager for a relation's child kind
// must share the same Registry as that relation's pending-list manager.
type Cache struct {
	registries map[ids.Kind]*registry.Registry
	entities   map[ids.Kind]*entityinfo.Manager
	pending    map[ids.Relation]*pendingmgr.Manager
	edges      edgestore.Store
}

// Builder assembles a Cache one kind/relation at a time, so callers can
// mix backends (e.g. memory info stores with an external-kv pending
// store) the way cache.backend selects per spec §6.
type Builder struct {
	c *Cache
}

// NewBuilder starts an empty Cache build.
func NewBuilder() *Builder {
	return &Builder{c: &Cache{
		registries: make(map[ids.Kind]*registry.Registry),
		entities:   make(map[ids.Kind]*entityinfo.Manager),
		pending:    make(map[ids.Relation]*pendingmgr.Manager),
	}}
}

func (b *Builder) registryFor(kind ids.Kind) *registry.Registry {
	r, ok := b.c.registries[kind]
	if !ok {
		r = registry.New(kind)
		b.c.registries[kind] = r
	}
	return r
}

// WithInfoStore registers the entity-info manager for kind, backed by
// store.
func (b *Builder) WithInfoStore(kind ids.Kind, store infostore.Store) *Builder {
	b.c.entities[kind] = entityinfo.New(b.registryFor(kind), store)
	return b
}

// WithPendingStore registers the pending-list manager for relation,
// backed by store. The relation's child-kind registry must already
// exist (via WithInfoStore for that kind) or is created fresh here and
// shared if WithInfoStore for that kind is called later.
func (b *Builder) WithPendingStore(relation ids.Relation, store pendingstore.Store) *Builder {
	schema := ids.Schemas[relation]
	b.c.pending[relation] = pendingmgr.New(b.registryFor(schema.Child), store)
	return b
}

// WithEdgeStore sets the committed-edge store.
func (b *Builder) WithEdgeStore(store edgestore.Store) *Builder {
	b.c.edges = store
	return b
}

// Build validates and returns the assembled Cache.
func (b *Builder) Build() (*Cache, error) {
	if b.c.edges == nil {
		return nil, fmt.Errorf("cache: no edge store configured")
	}
	return b.c, nil
}

// NewMemory builds an all-in-memory Cache for the given kinds and
// relations, honoring per-kind info TTLs and per-relation pending-list
// TTLs (spec §6's cache.ttl.<info-kind> / cache.ttl.pending.<relation>).
// A zero TTL means permanent.
func NewMemory(kinds []ids.Kind, relations []ids.Relation, infoTTL map[ids.Kind]time.Duration, pendingTTL map[ids.Relation]time.Duration) (*Cache, error) {
	b := NewBuilder()
	for _, k := range kinds {
		b.WithInfoStore(k, infostore.NewMemory(infoTTL[k]))
	}
	for _, rel := range relations {
		b.WithPendingStore(rel, pendingstore.NewMemory(pendingTTL[rel]))
	}
	b.WithEdgeStore(edgestore.NewMemory())
	return b.Build()
}

// Entities returns the entity-info manager for kind, or nil if kind was
// never configured.
func (c *Cache) Entities(kind ids.Kind) *entityinfo.Manager { return c.entities[kind] }

// Pending returns the pending-list manager for relation, or nil if
// relation was never configured.
func (c *Cache) Pending(relation ids.Relation) *pendingmgr.Manager { return c.pending[relation] }

// Edges returns the shared committed-edge store.
func (c *Cache) Edges() edgestore.Store { return c.edges }
