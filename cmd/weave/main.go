// Command weave runs the BFS weaver to completion or quiescence against a
// configured data source and destination. It is ambient glue only: the
// CLI front end proper (interactive commands, output formatting) is out
// of scope, so the flag surface here is limited to pointing the run at a
// config file, a credentials file and a seed file, naming the seed kind,
// and choosing JSON or text logs.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/biblioweave/weaver/internal/cache"
	"github.com/biblioweave/weaver/internal/config"
	"github.com/biblioweave/weaver/internal/seed"
)

var (
	configPath      string
	credentialsPath string
	seedPath        string
	seedKind        string
	jsonLogs        bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "weave",
		Short: "Run the bibliographic graph weaver",
		RunE:  runWeave,
	}
	root.Flags().StringVar(&configPath, "config", "", "path to a YAML run config (optional, defaults apply)")
	root.Flags().StringVar(&credentialsPath, "credentials", "", "path to a TOML data-source credentials file (optional)")
	root.Flags().StringVar(&seedPath, "seed-file", "", "path to a newline-delimited seed identifier file")
	root.Flags().StringVar(&seedKind, "seed-kind", "paper", "entity kind of the seed file's identifiers (paper|author|venue)")
	root.Flags().BoolVar(&jsonLogs, "json-logs", false, "emit structured JSON logs instead of text")
	return root
}

func runWeave(cmd *cobra.Command, _ []string) error {
	log := newLogger(jsonLogs)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("weave: %w", err)
	}
	creds, err := config.LoadCredentials(credentialsPath)
	if err != nil {
		return fmt.Errorf("weave: %w", err)
	}

	seeds, err := loadSeeds(seedPath, seedKind)
	if err != nil {
		return fmt.Errorf("weave: %w", err)
	}

	c, err := cache.NewMemory(allKinds(), cfg.Run.Relations, cfg.Cache.TTL, cfg.Cache.PendingTTL)
	if err != nil {
		return fmt.Errorf("weave: build cache: %w", err)
	}

	src, err := newDataSource(cfg, creds, log)
	if err != nil {
		return fmt.Errorf("weave: %w", err)
	}
	dst, err := newDestination(cfg, creds, log)
	if err != nil {
		return fmt.Errorf("weave: %w", err)
	}

	engine := wireEngine(c, src, dst, cfg, seeds, log)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	total, err := engine.Run(ctx, cfg.Run.MaxIterations)
	if err != nil {
		return fmt.Errorf("weave: run: %w", err)
	}
	log.Info("run complete", "new_entities", total)
	return nil
}

// newLogger mirrors the teacher's slog setup: text by default, JSON on
// request, never a bare fmt.Print for operational output.
func newLogger(asJSON bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if asJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func loadSeeds(path, kind string) ([]seed.Initializer, error) {
	if path == "" {
		return nil, fmt.Errorf("--seed-file is required")
	}
	k, err := parseKind(kind)
	if err != nil {
		return nil, err
	}
	return []seed.Initializer{seed.NewFile(k, path)}, nil
}
