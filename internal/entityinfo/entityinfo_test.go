package entityinfo

import (
	"testing"

	"github.com/biblioweave/weaver/internal/ids"
	"github.com/biblioweave/weaver/internal/infostore"
	"github.com/biblioweave/weaver/internal/registry"
)

func mustSet(t *testing.T, raw ...string) ids.IdentifierSet {
	t.Helper()
	s, err := ids.NewIdentifierSet(raw...)
	if err != nil {
		t.Fatalf("NewIdentifierSet: %v", err)
	}
	return s
}

func newManager() *Manager {
	return New(registry.New(ids.KindPaper), infostore.NewMemory(0))
}

func TestGetInfoMissOnUnknown(t *testing.T) {
	m := newManager()
	if _, _, _, ok := m.GetInfo(mustSet(t, "doi:unknown")); ok {
		t.Fatal("expected miss on unregistered identifier")
	}
}

func TestSetInfoThenGetInfo(t *testing.T) {
	m := newManager()
	cid, _, err := m.SetInfo(mustSet(t, "doi:1"), ids.Info{"title": "X"})
	if err != nil {
		t.Fatalf("SetInfo: %v", err)
	}

	gotCID, aliases, info, ok := m.GetInfo(mustSet(t, "doi:1"))
	if !ok {
		t.Fatal("expected hit")
	}
	if gotCID != cid {
		t.Fatalf("expected cid %q, got %q", cid, gotCID)
	}
	if len(aliases) != 1 {
		t.Fatalf("expected 1 alias, got %v", aliases)
	}
	if info["title"] != "X" {
		t.Fatalf("unexpected info: %v", info)
	}
}

func TestGetInfoMergesOnGet(t *testing.T) {
	m := newManager()
	m.SetInfo(mustSet(t, "doi:1"), ids.Info{"title": "X"})

	// A later call bringing a richer identifier set for the same entity
	// must fold it into the registry (spec §9's "always merge on get").
	_, aliases, _, ok := m.GetInfo(mustSet(t, "doi:1", "arxiv:2"))
	if !ok {
		t.Fatal("expected hit")
	}
	if len(aliases) != 2 {
		t.Fatalf("expected merge to grow aliases to 2, got %v", aliases)
	}

	if _, aliases2, _, _ := m.GetInfo(mustSet(t, "arxiv:2")); len(aliases2) != 2 {
		t.Fatalf("expected arxiv:2 alone to now resolve with merged aliases, got %v", aliases2)
	}
}

func TestGetInfoNoMergeDoesNotRegister(t *testing.T) {
	m := newManager()
	m.SetInfo(mustSet(t, "doi:1"), ids.Info{"title": "X"})

	if _, _, ok := m.GetInfoNoMerge(mustSet(t, "doi:1")); !ok {
		t.Fatal("expected hit on known id")
	}

	// Querying an unrelated id via the no-merge path must not fold it in.
	if _, _, ok := m.GetInfoNoMerge(mustSet(t, "arxiv:unrelated")); ok {
		t.Fatal("expected miss for unrelated identifier")
	}
	if _, aliases, _, _ := m.GetInfo(mustSet(t, "doi:1")); len(aliases) != 1 {
		t.Fatalf("expected no-merge query to leave aliases untouched, got %v", aliases)
	}
}

func TestIterateEntities(t *testing.T) {
	m := newManager()
	m.SetInfo(mustSet(t, "doi:1"), ids.Info{"title": "X"})
	m.SetInfo(mustSet(t, "doi:2"), ids.Info{"title": "Y"})

	handles := m.IterateEntities()
	if len(handles) != 2 {
		t.Fatalf("expected 2 entities, got %d", len(handles))
	}
}
