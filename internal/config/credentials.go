package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Credentials holds per-data-source API credentials, loaded from a
// separate TOML file rather than the YAML run config — grounded on the
// teacher's recipe loader, which keeps its own TOML-keyed lookup table
// apart from the main YAML config for the same reason: the two files
// have different operational owners (an operator edits the run config,
// a secrets tool writes the credential file).
type Credentials struct {
	Sources map[string]SourceCredential `toml:"source"`
}

// SourceCredential is one named adapter's access secrets: an API token
// and base URL for a data-source adapter, or a username/password for a
// destination store — whichever fields a given backend's Options need.
type SourceCredential struct {
	APIKey   string `toml:"api_key"`
	BaseURL  string `toml:"base_url"`
	Username string `toml:"username"`
	Password string `toml:"password"`
}

// LoadCredentials reads a TOML credentials file. A missing path is not an
// error: an adapter with no configured credential falls back to
// unauthenticated or environment-variable access.
func LoadCredentials(path string) (Credentials, error) {
	if path == "" {
		return Credentials{}, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Credentials{}, nil
	}
	var creds Credentials
	if _, err := toml.DecodeFile(path, &creds); err != nil {
		return Credentials{}, fmt.Errorf("config: decode credentials %s: %w", path, err)
	}
	return creds, nil
}

// For looks up the credential for a named source, ok=false if none was
// configured.
func (c Credentials) For(source string) (SourceCredential, bool) {
	sc, ok := c.Sources[source]
	return sc, ok
}
