package seed

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/biblioweave/weaver/internal/datasource"
	"github.com/biblioweave/weaver/internal/ids"
)

// File is a line-delimited seed source, the simplest file-backed stand-in
// for whatever real seeding tool an operator points at the weaver (spec
// §1 names seeding sources as an external collaborator). Each non-blank,
// non-comment line lists one seed entity as comma-separated identifier
// aliases, e.g. "doi:10.1/x, arxiv:1706.03762".
type File struct {
	kind ids.Kind
	path string
}

// NewFile creates a File initializer over path, treating every seed as
// kind.
func NewFile(kind ids.Kind, path string) *File {
	return &File{kind: kind, path: path}
}

// Kind implements Initializer.
func (f *File) Kind() ids.Kind { return f.kind }

// Seeds implements Initializer. A read or scan failure yields no seeds
// rather than panicking the run, and a line that does not form a valid
// identifier set (e.g. an empty alias between two commas) is skipped
// while the other lines are kept; Initializer has no error return (spec
// §6), so a malformed file is reported by the caller inspecting the
// returned slice's length, not by an error channel.
func (f *File) Seeds() []datasource.Entity {
	entities, _ := f.load()
	return entities
}

func (f *File) load() ([]datasource.Entity, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("seed: read %s: %w", f.path, err)
	}

	var out []datasource.Entity
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		raw := strings.Split(line, ",")
		for i := range raw {
			raw[i] = strings.TrimSpace(raw[i])
		}
		set, err := ids.NewIdentifierSet(raw...)
		if err != nil {
			continue
		}
		out = append(out, datasource.Entity{Kind: f.kind, IDs: set})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("seed: scan %s: %w", f.path, err)
	}
	return out, nil
}
