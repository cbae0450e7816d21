package datasource

import "fmt"

// Options configures a registered Source backend: the per-source
// credentials and tuning a concrete adapter needs to construct itself.
// Grounded on the teacher's internal/storage/factory.Options, which
// plays the same role for storage backends.
type Options struct {
	BaseURL       string
	APIKey        string
	RateRPS       float64
	RateBurst     int
	RetryMaxDelay float64 // seconds; passed to the Factory only, cmd/weave gates Retrying on datasource.retry_max_elapsed_s
}

// Factory constructs a Source from Options. Concrete HTTP adapters for
// real upstream services (DBLP, Semantic Scholar, ...) are an explicit
// external collaborator (spec §1) and register themselves here by name
// from their own package's init, the same pattern the teacher's
// internal/storage/factory_dolt.go uses to register the Dolt backend
// without factory.go importing it directly.
type Factory func(Options) (Source, error)

var backendRegistry = make(map[string]Factory)

// Register adds a named Source factory to the registry. Calling
// Register twice with the same name overwrites the prior entry, mainly
// useful for tests that swap in a fixture under a fixed name.
func Register(name string, f Factory) {
	backendRegistry[name] = f
}

// Build constructs the named backend. "fixture" is always available
// (registered below) as the default, in-memory adapter suitable for
// demos and tests; anything else must have been registered by an
// adapter package's own init.
func Build(name string, opts Options) (Source, error) {
	f, ok := backendRegistry[name]
	if !ok {
		return nil, fmt.Errorf("datasource: no backend registered under %q", name)
	}
	return f(opts)
}

func init() {
	Register("fixture", func(Options) (Source, error) {
		return NewFixture(), nil
	})
}
