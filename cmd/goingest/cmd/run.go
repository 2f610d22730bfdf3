package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/goingest/internal/database"
	"github.com/dbsmedya/goingest/internal/logger"
	"github.com/dbsmedya/goingest/internal/types"
)

var (
	runDatasets []string
	runOutput   string
	runForce    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one ingestion cycle",
	Long: `Run executes a single ingestion cycle over every configured dataset
(or the subset named with --dataset) and exits.

For each dataset the cycle:
  1. Lists objects under the dataset prefix
  2. Downloads them to the staging directory
  3. Uploads them to the table stage and runs COPY INTO
  4. Commits, then moves each object under the archive prefix

A failure in one dataset does not stop the others. The exit status is
non-zero if any dataset failed.

Example:
  goingest run --config goingest.yaml
  goingest run --dataset customers --dataset accounts --output json`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringSliceVarP(&runDatasets, "dataset", "d", nil,
		"Dataset to ingest (repeatable, default all)")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", formatText,
		"Output format (text, json, yaml)")
	runCmd.Flags().BoolVar(&runForce, "force", false,
		"Run even if the cycle lock cannot be acquired (use with caution)")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	if err := validateFormat(runOutput); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	datasets, err := cfg.ResolveDatasets(runDatasets)
	if err != nil {
		return err
	}

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Infow("Starting ingestion cycle",
		"config", GetConfigFile(),
		"datasets", len(datasets),
	)

	ctx, cancel := database.SetupSignalHandler(context.Background(), func(sig os.Signal) {
		log.Warnw("Received shutdown signal - finishing in-flight datasets...", "signal", sig.String())
	})
	defer cancel()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	release, err := a.acquireCycleLock(ctx, runForce)
	if err != nil {
		return err
	}
	defer release()

	orch, err := a.orchestrator()
	if err != nil {
		return err
	}

	results := orch.RunCycle(ctx, datasets)

	if err := renderCycle(outputWriter, runOutput, results); err != nil {
		return fmt.Errorf("failed to render results: %w", err)
	}

	return cycleError(results)
}

// cycleError returns an error naming the failed datasets, or nil.
func cycleError(results []types.CycleResult) error {
	var failed []string
	for _, r := range results {
		if r.Failed() {
			failed = append(failed, r.Dataset)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return fmt.Errorf("cycle completed with %d failed dataset(s): %v", len(failed), failed)
}
