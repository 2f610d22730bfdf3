package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/goingest/internal/config"
	"github.com/dbsmedya/goingest/internal/database"
	"github.com/dbsmedya/goingest/internal/lock"
	"github.com/dbsmedya/goingest/internal/logger"
	"github.com/dbsmedya/goingest/internal/objectstore"
	"github.com/dbsmedya/goingest/internal/warehouse"
)

var validateOffline bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and run preflight checks",
	Long: `Validate checks the configuration file and runs preflight checks
against the object store, the warehouse and the state database.

Checks performed:
  - Configuration syntax and required fields
  - Object store reachability and bucket access
  - Warehouse connectivity
  - Destination table existence for every dataset
  - State database connectivity and cycle lock status (if enabled)

Example:
  goingest validate --config goingest.yaml
  goingest validate --offline`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateOffline, "offline", false,
		"Only validate the configuration file")

	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile := GetConfigFile()

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	overrides := GetCLIOverrides()
	cfg.ApplyOverrides(overrides.LogLevel, overrides.LogFormat,
		overrides.Concurrency, overrides.StagingRoot)

	cmd.Printf("\n=== Configuration Validation ===\n")
	cmd.Printf("Config file: %s\n", configFile)
	cmd.Printf("Datasets found: %d\n\n", len(cfg.Datasets))

	if err := cfg.Validate(); err != nil {
		cmd.Printf("❌ Configuration invalid:\n%v\n", err)
		return fmt.Errorf("validation failed")
	}
	cmd.Printf("✅ Configuration valid\n")

	if validateOffline {
		return nil
	}

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx := context.Background()
	hasErrors := false
	check := func(name string, err error) bool {
		if err != nil {
			cmd.Printf("❌ %s: %v\n", name, err)
			hasErrors = true
			return false
		}
		cmd.Printf("✅ %s\n", name)
		return true
	}

	store, err := objectstore.New(ctx, &cfg.Store, log)
	if check("Object store client", err) {
		check(fmt.Sprintf("Bucket %s reachable", cfg.Store.Bucket), store.Ping(ctx))
	}

	dbManager := database.NewManager(cfg)
	defer dbManager.Close()

	if check("Warehouse connection", dbManager.ConnectWarehouse(ctx)) {
		loader, err := warehouse.NewLoader(dbManager.Warehouse, cfg.WarehouseCallTimeout(), log)
		if check("Warehouse loader", err) {
			datasets, _ := cfg.ResolveDatasets(nil)
			for _, ds := range datasets {
				check(fmt.Sprintf("Table %s (dataset %s)", ds.Table, ds.Name), loader.CheckTable(ctx, ds.Table))
			}
		}
	}

	if cfg.State.Enabled {
		if check("State database connection", dbManager.ConnectState(ctx)) {
			running, err := lock.IsCycleRunning(ctx, dbManager.State, cfg.Processing.CycleName)
			if check("Cycle lock query", err) && running {
				cmd.Printf("⚠️  Cycle %q is currently running on another instance\n", cfg.Processing.CycleName)
			}
		}
	} else {
		cmd.Printf("-  State database disabled\n")
	}

	if hasErrors {
		return fmt.Errorf("validation failed")
	}

	cmd.Printf("\nAll checks passed\n")
	return nil
}
