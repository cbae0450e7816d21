// Package config loads the weaver's run configuration (spec §6): cache
// backend selection and TTLs, fetch-pool sizing, run bounds, and the
// enabled relation list. Grounded on the teacher's config.yaml loader —
// a flat key set parsed with gopkg.in/yaml.v3, with environment
// variables overriding individual fields at load time.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/biblioweave/weaver/internal/ids"
)

// Config is the parsed, validated run configuration.
type Config struct {
	Cache       Cache       `yaml:"cache"`
	Datasource  Datasource  `yaml:"datasource"`
	Destination Destination `yaml:"destination"`
	Run         Run         `yaml:"run"`
}

// Cache holds the cache.* options.
type Cache struct {
	// Backend names the C1-C4 implementations: "memory" or
	// "external-kv". Validate accepts either value, but cmd/weave builds
	// the in-memory cache (cache.NewMemory) whatever is set; nothing in
	// this repository builds an external-kv cache from this option, and
	// the registry (C1) has only an in-memory implementation.
	Backend string `yaml:"backend"`
	// TTL is cache.ttl.<info-kind>: expiry for info-store entries per
	// kind. A kind absent from the map, or mapped to 0, never expires.
	TTL map[ids.Kind]time.Duration `yaml:"ttl"`
	// PendingTTL is the per-relation expiry for pending lists, read from
	// the YAML key cache.pending_ttl.<relation> (not from under
	// cache.ttl). A relation absent from the map, or mapped to 0, never
	// expires.
	PendingTTL map[ids.Relation]time.Duration `yaml:"pending_ttl"`
}

// Datasource holds the datasource.* options.
type Datasource struct {
	// Backend names the registered internal/datasource.Factory this run
	// wires up (spec §1 treats concrete adapters as an external
	// collaborator; "fixture" is the only backend registered by
	// default). Not one of spec §6's enumerated options; added so the
	// CLI binary has something to construct.
	Backend string `yaml:"backend"`
	// BaseURL and APIKey are passed through to the selected backend's
	// Factory as datasource.Options; unused by the "fixture" backend.
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"-"` // never read from the run config; see Credentials
	// MaxConcurrent is the fetch-pool semaphore size.
	MaxConcurrent int `yaml:"max_concurrent"`
	// TimeoutSeconds bounds a single fetch_fn invocation.
	TimeoutSeconds int `yaml:"timeout_s"`
	// CacheTTL is datasource.cache_ttl.<kind>: the raw-response cache
	// TTL the fetch pool applies ahead of dedup bookkeeping.
	CacheTTL map[ids.Kind]time.Duration `yaml:"cache_ttl"`
	// RateRPS/RateBurst configure the rate.Limiter a backend may wrap
	// itself with (internal/datasource.RateLimited); 0 RPS disables it.
	RateRPS   float64 `yaml:"rate_rps"`
	RateBurst int     `yaml:"rate_burst"`
	// RetryMaxElapsedS bounds internal/datasource.Retrying's backoff; 0
	// disables the retry wrapper.
	RetryMaxElapsedS float64 `yaml:"retry_max_elapsed_s"`
}

// Destination holds the destination.* options: which registered
// internal/destination.Factory this run wires up, and its connection
// details. Like Datasource.Backend, this is ambient CLI glue, not one
// of spec §6's enumerated run options — the destination store proper is
// an external collaborator (spec §1).
type Destination struct {
	Backend  string `yaml:"backend"`
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"-"` // never read from the run config; see Credentials
}

// Run holds the run.* options.
type Run struct {
	// MaxIterations bounds how many BFS passes run.run(); 0 means run
	// until quiescent.
	MaxIterations int `yaml:"max_iterations"`
	// Relations is the enabled relation list, in the fixed order the
	// driver runs them each pass.
	Relations []ids.Relation `yaml:"relations"`
}

// Default returns the configuration the weaver falls back to when no
// file or environment override names a value: an unbounded, permanent
// in-memory cache with a single fetch in flight at a time.
func Default() Config {
	return Config{
		Cache: Cache{
			Backend: "memory",
		},
		Datasource: Datasource{
			Backend:        "fixture",
			MaxConcurrent:  1,
			TimeoutSeconds: 30,
		},
		Destination: Destination{
			Backend: "fixture",
		},
		Run: Run{
			MaxIterations: 0,
			Relations:     []ids.Relation{ids.RelAuthored, ids.RelPublishedIn, ids.RelCites},
		},
	}
}

// Load reads a YAML config file at path, overlays it on Default, applies
// WEAVE_-prefixed environment overrides, and validates the result. An
// empty path skips the file read and starts from Default.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnvOverrides lets a handful of hot-path options be tuned without
// editing the file, the same override points the teacher's deployment
// scripts use for concurrency and iteration caps.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WEAVE_CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = v
	}
	if v := os.Getenv("WEAVE_DATASOURCE_BACKEND"); v != "" {
		cfg.Datasource.Backend = v
	}
	if v := os.Getenv("WEAVE_DESTINATION_BACKEND"); v != "" {
		cfg.Destination.Backend = v
	}
	if v := os.Getenv("WEAVE_DATASOURCE_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Datasource.MaxConcurrent = n
		}
	}
	if v := os.Getenv("WEAVE_RUN_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Run.MaxIterations = n
		}
	}
	if v := os.Getenv("WEAVE_RUN_RELATIONS"); v != "" {
		var rels []ids.Relation
		for _, r := range strings.Split(v, ",") {
			if r = strings.TrimSpace(r); r != "" {
				rels = append(rels, ids.Relation(r))
			}
		}
		if len(rels) > 0 {
			cfg.Run.Relations = rels
		}
	}
}

// Validate rejects a configuration the engine cannot run with.
func (c Config) Validate() error {
	switch c.Cache.Backend {
	case "memory", "external-kv":
	default:
		return fmt.Errorf("config: cache.backend %q must be \"memory\" or \"external-kv\"", c.Cache.Backend)
	}
	if c.Datasource.MaxConcurrent <= 0 {
		return fmt.Errorf("config: datasource.max_concurrent must be positive, got %d", c.Datasource.MaxConcurrent)
	}
	if c.Datasource.Backend == "" {
		return fmt.Errorf("config: datasource.backend must name a registered backend")
	}
	if c.Destination.Backend == "" {
		return fmt.Errorf("config: destination.backend must name a registered backend")
	}
	if len(c.Run.Relations) == 0 {
		return fmt.Errorf("config: run.relations must name at least one relation")
	}
	for _, rel := range c.Run.Relations {
		if _, ok := ids.Schemas[rel]; !ok {
			return fmt.Errorf("config: run.relations names unknown relation %q", rel)
		}
	}
	return nil
}

// Timeout returns datasource.timeout_s as a Duration.
func (d Datasource) Timeout() time.Duration {
	return time.Duration(d.TimeoutSeconds) * time.Second
}
