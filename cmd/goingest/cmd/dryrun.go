package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/gookit/color"
	"github.com/spf13/cobra"

	"github.com/dbsmedya/goingest/internal/ingest"
	"github.com/dbsmedya/goingest/internal/logger"
	"github.com/dbsmedya/goingest/internal/objectstore"
	"github.com/dbsmedya/goingest/internal/types"
)

var (
	dryrunDatasets []string
	dryrunOutput   string
)

var dryrunCmd = &cobra.Command{
	Use:     "dry-run",
	Aliases: []string{"dryrun"},
	Short:   "Show what the next cycle would ingest",
	Long: `Dry-run lists the objects the next cycle would pick up for each dataset,
without downloading, loading or archiving anything. Only the object store
is contacted.

Datasets whose keys would collide in the staging directory are reported,
since the next cycle would fail them with DiscoveryConflict.

Example:
  goingest dry-run --config goingest.yaml
  goingest dry-run --dataset transactions --output yaml`,
	RunE: runDryrun,
}

func init() {
	dryrunCmd.Flags().StringSliceVarP(&dryrunDatasets, "dataset", "d", nil,
		"Dataset to inspect (repeatable, default all)")
	dryrunCmd.Flags().StringVarP(&dryrunOutput, "output", "o", formatText,
		"Output format (text, json, yaml)")

	rootCmd.AddCommand(dryrunCmd)
}

// keyLister is the part of the object store client dry-run needs.
type keyLister interface {
	List(ctx context.Context, prefix string) ([]string, error)
}

// datasetPlan is what the next cycle would see for one dataset.
type datasetPlan struct {
	Dataset  string   `json:"dataset" yaml:"dataset"`
	Prefix   string   `json:"prefix" yaml:"prefix"`
	Table    string   `json:"table" yaml:"table"`
	Keys     []string `json:"keys" yaml:"keys"`
	Conflict string   `json:"conflict,omitempty" yaml:"conflict,omitempty"`
	Error    string   `json:"error,omitempty" yaml:"error,omitempty"`
}

func runDryrun(cmd *cobra.Command, args []string) error {
	if err := validateFormat(dryrunOutput); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	datasets, err := cfg.ResolveDatasets(dryrunDatasets)
	if err != nil {
		return err
	}

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx := context.Background()

	store, err := objectstore.New(ctx, &cfg.Store, log)
	if err != nil {
		return fmt.Errorf("failed to create object store client: %w", err)
	}

	plans := planDatasets(ctx, store, datasets)

	if dryrunOutput != formatText {
		return renderStructured(outputWriter, dryrunOutput, plans)
	}
	printPlans(outputWriter, plans, store.ArchiveKey)
	return nil
}

// planDatasets lists each dataset's prefix. Listing errors are recorded per
// dataset and do not stop the others.
func planDatasets(ctx context.Context, store keyLister, datasets []types.Dataset) []datasetPlan {
	plans := make([]datasetPlan, 0, len(datasets))
	for _, ds := range datasets {
		p := datasetPlan{Dataset: ds.Name, Prefix: ds.Prefix, Table: ds.Table, Keys: []string{}}

		keys, err := store.List(ctx, ds.Prefix)
		if err != nil {
			p.Error = err.Error()
			plans = append(plans, p)
			continue
		}
		p.Keys = keys
		if err := ingest.CheckBaseNames(keys); err != nil {
			p.Conflict = err.Error()
		}
		plans = append(plans, p)
	}
	return plans
}

func printPlans(w io.Writer, plans []datasetPlan, archiveKey func(string) string) {
	fmt.Fprintf(w, "\n=== Dry Run ===\n")

	total := 0
	for _, p := range plans {
		fmt.Fprintf(w, "\n[%s] prefix=%s table=%s\n", p.Dataset, p.Prefix, p.Table)
		switch {
		case p.Error != "":
			fmt.Fprintf(w, "  %s %s\n", color.Red.Sprint("❌"), p.Error)
			continue
		case len(p.Keys) == 0:
			fmt.Fprintln(w, "  (no objects, dataset would be skipped)")
			continue
		}

		total += len(p.Keys)
		rows := make([][]string, 0, len(p.Keys))
		for _, k := range p.Keys {
			rows = append(rows, []string{k, archiveKey(k)})
		}
		printTable(indent{w}, []string{"KEY", "ARCHIVE TO"}, rows, nil)

		if p.Conflict != "" {
			fmt.Fprintf(w, "  %s %s\n", color.Yellow.Sprint("⚠️  conflict:"), p.Conflict)
		}
	}

	fmt.Fprintf(w, "\n%d object(s) across %d dataset(s) would be ingested\n", total, len(plans))
}

// indent prefixes every write with two spaces. printTable writes one line per call.
type indent struct{ w io.Writer }

func (i indent) Write(p []byte) (int, error) {
	if _, err := io.WriteString(i.w, "  "); err != nil {
		return 0, err
	}
	return i.w.Write(p)
}
