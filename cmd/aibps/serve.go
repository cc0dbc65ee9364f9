package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aibps/aibps/internal/httpapi"
	"github.com/aibps/aibps/internal/pipeline"
	"github.com/aibps/aibps/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Compute once, then serve the composite table over HTTP",
	Long: `Serve runs the pipeline once and exposes the result read-only:

  GET  /api/v1/composite   latest table as JSON
  POST /api/v1/reweight    re-aggregate under a caller weight vector
  GET  /healthz            liveness
  GET  /metrics            Prometheus exposition`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	metrics := telemetry.NewMetrics()
	runner := pipeline.NewRunner(cfg, buildFetcher(cfg), pipeline.WithMetrics(metrics))

	res, err := runner.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("pipeline run failed: %w", err)
	}

	serverCfg := httpapi.DefaultServerConfig()
	if cfg.Server.Host != "" {
		serverCfg.Host = cfg.Server.Host
	}
	if cfg.Server.Port != 0 {
		serverCfg.Port = cfg.Server.Port
	}
	serverCfg.ReadTimeout = 10 * time.Second

	server := httpapi.NewServer(serverCfg, metrics)
	server.SetResult(res)
	return server.ListenAndServe()
}
