package cmd

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/goingest/internal/database"
	"github.com/dbsmedya/goingest/internal/ledger"
	"github.com/dbsmedya/goingest/internal/logger"
)

var (
	historyLimit  int
	historyOutput string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent cycles from the state database",
	Long: `History prints the most recent cycles recorded in the state database
and any datasets whose last archive step left objects at both the source
and the archive location.

Requires state.enabled in the configuration.

Example:
  goingest history --config goingest.yaml --limit 20`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10,
		"Number of cycles to show")
	historyCmd.Flags().StringVarP(&historyOutput, "output", "o", formatText,
		"Output format (text, json, yaml)")

	rootCmd.AddCommand(historyCmd)
}

// historyReport is the structured form of the history command's output.
type historyReport struct {
	Cycles         []cycleRow          `json:"cycles" yaml:"cycles"`
	PendingCleanup map[string][]string `json:"pending_cleanup,omitempty" yaml:"pending_cleanup,omitempty"`
}

type cycleRow struct {
	RunID      string `json:"run_id" yaml:"run_id"`
	Status     string `json:"status" yaml:"status"`
	Datasets   int    `json:"datasets" yaml:"datasets"`
	StartedAt  string `json:"started_at" yaml:"started_at"`
	FinishedAt string `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
}

func runHistory(cmd *cobra.Command, args []string) error {
	if err := validateFormat(historyOutput); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.State.Enabled {
		return fmt.Errorf("state database is disabled; set state.enabled to record history")
	}

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx := context.Background()

	dbManager := database.NewManager(cfg)
	if err := dbManager.ConnectState(ctx); err != nil {
		return err
	}
	defer dbManager.Close()

	l, err := ledger.New(dbManager.State, cfg.Processing.CycleName, log)
	if err != nil {
		return err
	}

	report, err := buildHistory(ctx, l, historyLimit)
	if err != nil {
		return err
	}

	if historyOutput != formatText {
		return renderStructured(outputWriter, historyOutput, report)
	}
	printHistory(cmd, cfg.Processing.CycleName, report)
	return nil
}

// historySource is the part of the ledger the history command reads.
type historySource interface {
	RecentCycles(ctx context.Context, limit int) ([]ledger.Cycle, error)
	PendingCleanup(ctx context.Context) (map[string][]string, error)
}

func buildHistory(ctx context.Context, src historySource, limit int) (historyReport, error) {
	cycles, err := src.RecentCycles(ctx, limit)
	if err != nil {
		return historyReport{}, err
	}
	pending, err := src.PendingCleanup(ctx)
	if err != nil {
		return historyReport{}, err
	}

	report := historyReport{Cycles: make([]cycleRow, 0, len(cycles)), PendingCleanup: pending}
	for _, c := range cycles {
		row := cycleRow{
			RunID:     c.RunID,
			Status:    string(c.Status),
			Datasets:  c.Datasets,
			StartedAt: c.StartedAt.Format("2006-01-02 15:04:05"),
		}
		if c.FinishedAt.Valid {
			row.FinishedAt = c.FinishedAt.Time.Format("2006-01-02 15:04:05")
		}
		report.Cycles = append(report.Cycles, row)
	}
	return report, nil
}

func printHistory(cmd *cobra.Command, cycleName string, report historyReport) {
	cmd.Printf("\n=== History: %s ===\n\n", cycleName)

	if len(report.Cycles) == 0 {
		cmd.Println("No cycles recorded")
	} else {
		rows := make([][]string, 0, len(report.Cycles))
		for _, c := range report.Cycles {
			rows = append(rows, []string{c.RunID, c.Status, fmt.Sprintf("%d", c.Datasets), c.StartedAt, c.FinishedAt})
		}
		printTable(cmd.OutOrStdout(), []string{"RUN ID", "STATUS", "DATASETS", "STARTED", "FINISHED"}, rows, nil)
	}

	if len(report.PendingCleanup) == 0 {
		return
	}

	names := make([]string, 0, len(report.PendingCleanup))
	for name := range report.PendingCleanup {
		names = append(names, name)
	}
	sort.Strings(names)

	cmd.Printf("\n⚠️  Datasets needing cleanup (objects at source and in the archive):\n")
	for _, name := range names {
		cmd.Printf("  %s\n", name)
		for _, k := range report.PendingCleanup[name] {
			cmd.Printf("    - %s\n", k)
		}
	}
}
