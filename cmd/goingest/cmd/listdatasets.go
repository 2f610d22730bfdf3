package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/goingest/internal/config"
)

var listDatasetsCmd = &cobra.Command{
	Use:   "list-datasets",
	Short: "List all datasets defined in configuration",
	Long: `List-datasets displays the datasets defined in the configuration file
with their source prefix, destination table and archive location.

Example:
  goingest list-datasets --config goingest.yaml`,
	RunE: runListDatasets,
}

func init() {
	rootCmd.AddCommand(listDatasetsCmd)
}

func runListDatasets(cmd *cobra.Command, args []string) error {
	configFile := GetConfigFile()

	// Load configuration
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	datasets, err := cfg.ResolveDatasets(nil)
	if err != nil {
		return err
	}

	if len(datasets) == 0 {
		cmd.Printf("No datasets defined in %s\n", configFile)
		return nil
	}

	cmd.Printf("Datasets defined in %s:\n\n", configFile)

	for i, ds := range datasets {
		cmd.Printf("%d. %s\n", i+1, ds.Name)
		cmd.Printf("   Prefix:   %s\n", ds.Prefix)
		cmd.Printf("   Table:    %s\n", ds.Table)
		cmd.Printf("   Archive:  %s%s\n", cfg.Store.ArchivePrefix, ds.Prefix)
		cmd.Println()
	}

	cmd.Printf("Bucket: %s (%s)\n", cfg.Store.Bucket, cfg.Store.Driver)
	cmd.Printf("Total: %d dataset(s)\n", len(datasets))

	return nil
}
