// Command segmenta runs the portfolio segmentation batch: it clusters the
// clients of each configured profile, persists a versioned run per
// profile, and writes the CSV report tables.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/veredalabs/segmenta/internal/config"
	"github.com/veredalabs/segmenta/internal/export"
	"github.com/veredalabs/segmenta/internal/segment"
	"github.com/veredalabs/segmenta/internal/storage"
	"github.com/veredalabs/segmenta/internal/telemetry"
	"github.com/veredalabs/segmenta/migrations"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	// Level is adjustable so the configured value can take over once config
	// is loaded; until then the logger runs at info.
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger, level); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger, level *slog.LevelVar) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	level.Set(cfg.SlogLevel())

	slog.Info("segmenta starting", "version", version, "profiles", cfg.Profiles, "workers", cfg.Workers)

	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	db, err := storage.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer db.Close()

	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	params := segment.Params{
		PrimaryFeatures:   cfg.PrimaryFeatures,
		SecondaryFeatures: cfg.SecondaryFeatures,
		KMin:              cfg.KMin,
		KMax:              cfg.KMax,
		Seed:              cfg.Seed,
		MinClients:        cfg.MinClientsPerProfile,
		MaxExclusionRate:  cfg.MaxExclusionRate,
	}
	pipeline := segment.NewPipeline(params, db, logger)

	profiles := cfg.Profiles
	if cfg.AllProfiles() {
		profiles = nil // runner resolves every profile from the source
	}
	runner := segment.NewRunner(db, pipeline, profiles, cfg.Workers, cfg.ProfileTimeout, logger)

	outcomes, err := runner.Run(ctx)
	if err != nil {
		return fmt.Errorf("batch: %w", err)
	}
	if len(outcomes) == 0 {
		slog.Warn("no profiles to process")
		return nil
	}

	if cfg.OutputDir != "" {
		writer, err := export.NewWriter(cfg.OutputDir)
		if err != nil {
			return err
		}
		for _, o := range outcomes {
			if o.Failed() {
				continue
			}
			if err := writer.WriteProfile(o.Result); err != nil {
				return err
			}
		}
		if err := writer.WriteCrossTabs(outcomes); err != nil {
			return err
		}
		slog.Info("reports written", "dir", cfg.OutputDir)
	}
	return nil
}
