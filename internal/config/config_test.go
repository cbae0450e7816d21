package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/biblioweave/weaver/internal/ids"
)

func TestLoadDefaultsWithNoFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Cache.Backend != "memory" {
		t.Fatalf("expected default backend memory, got %q", cfg.Cache.Backend)
	}
	if cfg.Datasource.MaxConcurrent != 1 {
		t.Fatalf("expected default max_concurrent 1, got %d", cfg.Datasource.MaxConcurrent)
	}
	if cfg.Datasource.Backend != "fixture" {
		t.Fatalf("expected default datasource backend fixture, got %q", cfg.Datasource.Backend)
	}
	if cfg.Destination.Backend != "fixture" {
		t.Fatalf("expected default destination backend fixture, got %q", cfg.Destination.Backend)
	}
}

func TestLoadParsesYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "weave.yaml")
	contents := `
cache:
  backend: external-kv
datasource:
  max_concurrent: 4
  timeout_s: 10
run:
  max_iterations: 3
  relations: [AUTHORED, CITES]
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Cache.Backend != "external-kv" {
		t.Fatalf("expected external-kv, got %q", cfg.Cache.Backend)
	}
	if cfg.Datasource.MaxConcurrent != 4 {
		t.Fatalf("expected max_concurrent 4, got %d", cfg.Datasource.MaxConcurrent)
	}
	if len(cfg.Run.Relations) != 2 || cfg.Run.Relations[0] != ids.RelAuthored {
		t.Fatalf("unexpected relations: %v", cfg.Run.Relations)
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "weave.yaml")
	if err := os.WriteFile(path, []byte("cache:\n  backend: bogus\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for an unknown cache backend")
	}
}

func TestLoadRejectsEmptyRelations(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "weave.yaml")
	if err := os.WriteFile(path, []byte("run:\n  relations: []\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for an empty relation list")
	}
}

func TestEnvOverridesMaxConcurrent(t *testing.T) {
	t.Setenv("WEAVE_DATASOURCE_MAX_CONCURRENT", "7")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Datasource.MaxConcurrent != 7 {
		t.Fatalf("expected env override to 7, got %d", cfg.Datasource.MaxConcurrent)
	}
}

func TestLoadCredentialsMissingFileIsNotError(t *testing.T) {
	creds, err := LoadCredentials(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if _, ok := creds.For("dblp"); ok {
		t.Fatal("expected no credential for an unconfigured source")
	}
}

func TestLoadCredentialsParsesTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "creds.toml")
	contents := `
[source.dblp]
api_key = "abc123"
base_url = "https://dblp.org"
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	creds, err := LoadCredentials(path)
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	sc, ok := creds.For("dblp")
	if !ok {
		t.Fatal("expected dblp credential")
	}
	if sc.APIKey != "abc123" || sc.BaseURL != "https://dblp.org" {
		t.Fatalf("unexpected credential: %+v", sc)
	}
}
