package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/aibps/aibps/internal/artifacts"
	"github.com/aibps/aibps/internal/config"
	"github.com/aibps/aibps/internal/fetch"
	"github.com/aibps/aibps/internal/persistence"
	"github.com/aibps/aibps/internal/pipeline"
	"github.com/aibps/aibps/internal/telemetry"
	"github.com/aibps/aibps/internal/timeseries"
)

var (
	computeOut string
)

var computeCmd = &cobra.Command{
	Use:   "compute",
	Short: "Run the pipeline once and write the composite table",
	Long: `Compute fetches every configured pillar source, aligns the series onto
the canonical monthly grid, normalizes each pillar to a 0-100 heat score
and writes the weighted composite table as a full-overwrite CSV.

Example usage:
  aibps compute                            # built-in defaults
  aibps compute --config config/pillars.yaml
  aibps compute --out /tmp/aibps.csv`,
	RunE: runCompute,
}

func init() {
	computeCmd.Flags().StringVar(&computeOut, "out", "", "Output CSV path (overrides config)")
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

// buildFetcher assembles the fetch stack: CSV sources wrapped in the
// optional Redis cache, a circuit breaker and a rate limiter.
func buildFetcher(cfg *config.Config) fetch.Fetcher {
	var fetcher fetch.Fetcher = fetch.NewCSVFetcher(cfg.Sources)
	fetcher = fetch.NewBreakerFetcher(fetcher, "sources", 30*time.Second)
	fetcher = fetch.NewThrottledFetcher(fetcher, 50, 10)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
		ttl := time.Duration(cfg.Redis.TTLSeconds) * time.Second
		fetcher = fetch.NewCachedFetcher(fetcher, client, ttl)
		log.Info().Str("addr", cfg.Redis.Addr).Dur("ttl", ttl).Msg("Raw series cache enabled")
	}
	return fetcher
}

func runCompute(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if computeOut != "" {
		cfg.Output.Path = computeOut
	}

	metrics := telemetry.NewMetrics()
	runner := pipeline.NewRunner(cfg, buildFetcher(cfg), pipeline.WithMetrics(metrics))

	res, err := runner.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("pipeline run failed: %w", err)
	}

	if err := artifacts.WriteTable(cfg.Output.Path, res); err != nil {
		return err
	}

	if cfg.Postgres.DSN != "" {
		if err := persistRun(cmd.Context(), cfg.Postgres.DSN, res); err != nil {
			return err
		}
	}

	logTail(res)
	return nil
}

func persistRun(ctx context.Context, dsn string, res *pipeline.Result) error {
	store, err := persistence.Open(dsn, 30*time.Second)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.SaveRun(ctx, res); err != nil {
		return fmt.Errorf("persist run: %w", err)
	}
	log.Info().Str("run_id", res.RunID).Msg("Run persisted to Postgres")
	return nil
}

// logTail summarizes the most recent composite readings.
func logTail(res *pipeline.Result) {
	shown := 0
	for i := len(res.Grid) - 1; i >= 0 && shown < 6; i-- {
		ts, comp := res.Composite.At(i)
		if timeseries.IsMissing(comp) {
			continue
		}
		_, smoothed := res.Smoothed.At(i)
		log.Info().
			Str("date", ts.Format("2006-01-02")).
			Float64("composite", comp).
			Float64("composite_ra", smoothed).
			Msg("Composite")
		shown++
	}
}
