package weaver

import (
	"github.com/biblioweave/weaver/internal/edgestore"
	"github.com/biblioweave/weaver/internal/ids"
)

// Trace walks the committed-edge store backward from cid under relation
// and returns the chain of canonical IDs leading to it, closest first,
// ending at a root (an entity with no committed parent under relation).
// It is a debugging aid, not part of the run loop: useful for answering
// "how did the engine reach this entity" without re-deriving it from the
// destination store. Grounded on the donor's dependency-graph parent-map
// walk (internal/deps in the donor builds a child->parent map over a
// tree and walks it to answer ancestor queries); here the "tree" is
// whatever committed edges happen to form for one relation, which may
// contain cycles (e.g. CITES), so Trace stops the first time it would
// revisit a node rather than looping forever.
//
// Returns nil if the store doesn't support enumeration (an external-kv
// edge store, say), and a one-element chain holding just cid if cid has
// no committed parent on record.
func Trace(edges edgestore.Store, relation ids.Relation, cid ids.CanonicalID) []ids.CanonicalID {
	enum, ok := edges.(edgestore.EnumerableStore)
	if !ok {
		return nil
	}

	parentOf := make(map[ids.CanonicalID]ids.CanonicalID)
	for _, e := range enum.Enumerate() {
		if e.Relation == relation {
			parentOf[e.Child] = e.Parent
		}
	}

	chain := []ids.CanonicalID{cid}
	seen := map[ids.CanonicalID]bool{cid: true}
	cur := cid
	for {
		parent, ok := parentOf[cur]
		if !ok || seen[parent] {
			break
		}
		chain = append(chain, parent)
		seen[parent] = true
		cur = parent
	}
	return chain
}
