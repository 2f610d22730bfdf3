package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/goingest/internal/database"
	"github.com/dbsmedya/goingest/internal/logger"
	"github.com/dbsmedya/goingest/internal/pipeline"
)

var (
	serveDatasets []string
	serveOutput   string
	serveForce    bool
	serveInterval time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run ingestion cycles on a fixed interval",
	Long: `Serve runs an ingestion cycle immediately and then once per interval
until interrupted. A cycle that is still running when the next tick arrives
delays that tick; cycles never overlap.

Each cycle takes the cycle lock when the state database is enabled, so two
serve processes with the same cycle name do not ingest concurrently. A
cycle that cannot take the lock is skipped.

Example:
  goingest serve --config goingest.yaml
  goingest serve --interval 10m --output json`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringSliceVarP(&serveDatasets, "dataset", "d", nil,
		"Dataset to ingest (repeatable, default all)")
	serveCmd.Flags().StringVarP(&serveOutput, "output", "o", formatText,
		"Output format for each cycle (text, json, yaml)")
	serveCmd.Flags().BoolVar(&serveForce, "force", false,
		"Run cycles without the cycle lock (use with caution)")
	serveCmd.Flags().DurationVar(&serveInterval, "interval", 0,
		"Override interval between cycles (e.g. 30m)")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := validateFormat(serveOutput); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	datasets, err := cfg.ResolveDatasets(serveDatasets)
	if err != nil {
		return err
	}

	interval := cfg.Interval()
	if serveInterval > 0 {
		interval = serveInterval
	}

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := database.SetupSignalHandler(context.Background(), func(sig os.Signal) {
		log.Warnw("Received shutdown signal - stopping after the current cycle...", "signal", sig.String())
	})
	defer cancel()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	orch, err := a.orchestrator()
	if err != nil {
		return err
	}

	log.Infow("Serving ingestion cycles",
		"interval", interval.String(),
		"datasets", len(datasets),
	)

	err = pipeline.Serve(ctx, interval, func(ctx context.Context) {
		release, err := a.acquireCycleLock(ctx, serveForce)
		if err != nil {
			log.Warnf("Skipping cycle: %v", err)
			return
		}
		defer release()

		results := orch.RunCycle(ctx, datasets)
		if err := renderCycle(outputWriter, serveOutput, results); err != nil {
			log.Warnf("Failed to render results: %v", err)
		}
		if err := cycleError(results); err != nil {
			log.Warn(err.Error())
		}
	})

	if errors.Is(err, context.Canceled) {
		log.Info("Serve stopped")
		return nil
	}
	return err
}
