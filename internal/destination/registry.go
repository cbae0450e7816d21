package destination

import "fmt"

// Options configures a registered Destination backend: connection
// details a concrete graph-store adapter needs to construct itself.
type Options struct {
	URI      string
	Database string
	Username string
	Password string
}

// Factory constructs a Destination from Options. The concrete
// destination store is an explicit external collaborator (spec §1); a
// real graph-database adapter registers itself here from its own
// package's init, mirroring internal/datasource's Factory/Register
// pattern (itself grounded on the teacher's storage backend registry).
type Factory func(Options) (Destination, error)

var backendRegistry = make(map[string]Factory)

// Register adds a named Destination factory to the registry.
func Register(name string, f Factory) {
	backendRegistry[name] = f
}

// Build constructs the named backend. "fixture" is always available as
// the default, in-memory destination suitable for demos and tests.
func Build(name string, opts Options) (Destination, error) {
	f, ok := backendRegistry[name]
	if !ok {
		return nil, fmt.Errorf("destination: no backend registered under %q", name)
	}
	return f(opts)
}

func init() {
	Register("fixture", func(Options) (Destination, error) {
		return NewFixture(), nil
	})
}
