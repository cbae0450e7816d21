// Package seed defines the seed/initializer contract (spec §6): a finite
// sequence of entities of a single kind that the weaver uses to bootstrap
// a fresh registry.
package seed

import (
	"github.com/biblioweave/weaver/internal/datasource"
	"github.com/biblioweave/weaver/internal/ids"
)

// Initializer yields a finite sequence of seed entities, all of the same
// kind.
type Initializer interface {
	Kind() ids.Kind
	Seeds() []datasource.Entity
}

// Static is a slice-backed Initializer — the simplest possible seed
// source, standing in for whatever external seeding tool (file, query,
// CLI flag) produces the initial entity list; seeding sources are an
// explicit external collaborator (spec §1).
type Static struct {
	kind  ids.Kind
	seeds []datasource.Entity
}

// NewStatic creates a Static initializer over seeds, all of kind.
func NewStatic(kind ids.Kind, seeds []datasource.Entity) *Static {
	return &Static{kind: kind, seeds: seeds}
}

// Kind implements Initializer.
func (s *Static) Kind() ids.Kind { return s.kind }

// Seeds implements Initializer.
func (s *Static) Seeds() []datasource.Entity { return s.seeds }
