package main

import (
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/biblioweave/weaver/internal/cache"
	"github.com/biblioweave/weaver/internal/config"
	"github.com/biblioweave/weaver/internal/datasource"
	"github.com/biblioweave/weaver/internal/destination"
	"github.com/biblioweave/weaver/internal/ids"
	"github.com/biblioweave/weaver/internal/seed"
	"github.com/biblioweave/weaver/internal/weaver"
)

// allKinds lists every entity kind the cache composition tracks,
// regardless of which relations a given run enables (spec §3: Paper,
// Author, Venue).
func allKinds() []ids.Kind {
	return []ids.Kind{ids.KindPaper, ids.KindAuthor, ids.KindVenue}
}

// parseKind maps a CLI-facing kind name onto its ids.Kind constant.
func parseKind(s string) (ids.Kind, error) {
	switch s {
	case "paper":
		return ids.KindPaper, nil
	case "author":
		return ids.KindAuthor, nil
	case "venue":
		return ids.KindVenue, nil
	default:
		return "", fmt.Errorf("unknown seed kind %q (want paper, author, or venue)", s)
	}
}

// newDataSource builds the configured internal/datasource.Source,
// wrapping it in rate-limiting and retry per cfg exactly as spec §1's
// "data-source adapter" note expects: the adapter itself is an external
// collaborator, registered by name (spec §9's "dynamic dispatch over
// backends" design note, extended here from cache backends to the data
// source too).
func newDataSource(cfg config.Config, creds config.Credentials, log *slog.Logger) (datasource.Source, error) {
	opts := datasource.Options{
		BaseURL:   cfg.Datasource.BaseURL,
		RateRPS:   cfg.Datasource.RateRPS,
		RateBurst: cfg.Datasource.RateBurst,
	}
	if sc, ok := creds.For(cfg.Datasource.Backend); ok {
		opts.APIKey = sc.APIKey
		if opts.BaseURL == "" {
			opts.BaseURL = sc.BaseURL
		}
	}

	src, err := datasource.Build(cfg.Datasource.Backend, opts)
	if err != nil {
		return nil, fmt.Errorf("datasource: %w", err)
	}

	if opts.RateRPS > 0 {
		src = datasource.NewRateLimited(src, opts.RateRPS, opts.RateBurst)
	}
	if cfg.Datasource.RetryMaxElapsedS > 0 {
		maxElapsed := time.Duration(cfg.Datasource.RetryMaxElapsedS * float64(time.Second))
		src = datasource.NewRetrying(src, maxElapsed)
	}

	log.Info("data source wired", "backend", cfg.Datasource.Backend)
	return src, nil
}

// newDestination builds the configured internal/destination.Destination,
// filling in the username/password from the credentials file when the
// backend has one configured there (mirroring newDataSource's lookup).
func newDestination(cfg config.Config, creds config.Credentials, log *slog.Logger) (destination.Destination, error) {
	opts := destination.Options{
		URI:      cfg.Destination.URI,
		Database: cfg.Destination.Database,
		Username: cfg.Destination.Username,
		Password: cfg.Destination.Password,
	}
	if sc, ok := creds.For(cfg.Destination.Backend); ok {
		if opts.Username == "" {
			opts.Username = sc.Username
		}
		opts.Password = sc.Password
	}

	dst, err := destination.Build(cfg.Destination.Backend, opts)
	if err != nil {
		return nil, fmt.Errorf("destination: %w", err)
	}
	log.Info("destination wired", "backend", cfg.Destination.Backend)
	return dst, nil
}

// wireEngine assembles the BFS driver (C9) from its collaborators: the
// cache composition, data source, destination, a fetch pool sized per
// cfg, OpenTelemetry counters (best-effort; a failure to construct them
// never blocks a run), and the seed initializers.
//
// Metrics are pulled from whatever MeterProvider is globally registered
// (otel.SetMeterProvider, e.g. by an operator's SDK bootstrap); when
// nothing has been set, the global default is a no-op provider, and
// NewMetrics handles that meter exactly like a nil one.
func wireEngine(c *cache.Cache, src datasource.Source, dst destination.Destination, cfg config.Config, seeds []seed.Initializer, log *slog.Logger) *weaver.Engine {
	pool := weaver.NewPool(cfg.Datasource.MaxConcurrent, cfg.Datasource.CacheTTL)
	meter := otel.GetMeterProvider().Meter("github.com/biblioweave/weaver")
	metrics, err := weaver.NewMetrics(meter)
	if err != nil {
		log.Warn("metrics construction failed, continuing without telemetry", "error", err)
		metrics = weaver.Metrics{}
	}
	deps := weaver.Deps{
		Cache:       c,
		Source:      src,
		Destination: dst,
		Pool:        pool,
		Log:         log,
		Timeout:     cfg.Datasource.Timeout(),
		Metrics:     metrics,
	}
	return weaver.New(deps, cfg.Run.Relations, seeds)
}
