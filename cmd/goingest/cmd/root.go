package cmd

import (
	"os"

	"github.com/gookit/color"
	"github.com/spf13/cobra"
)

// Version information (set via ldflags at build time)
var (
	Version = "0.0.1-dev"
	Commit  = "unknown"
)

// CLI flags that override config file values
var (
	cfgFile     string
	logLevel    string
	logFormat   string
	concurrency int
	stagingRoot string
	noColor     bool
)

var rootCmd = &cobra.Command{
	Use:   "goingest",
	Short: "Object store to Snowflake ingestion pipeline",
	Long: `A CLI for periodically ingesting files from an object store bucket into
Snowflake tables, one dataset per prefix.

Each cycle, per dataset:
  - Discover objects under the dataset prefix
  - Download them to a local staging directory
  - Upload them to the table stage and COPY INTO the table
  - Commit, then move each source object under the archive prefix

Objects are only archived after their load committed, so a failed cycle
leaves them in place for the next one.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			color.Enable = false
		}
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// Config file flag
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "goingest.yaml",
		"Path to configuration file")

	// Logging overrides
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Override log format (json, text)")

	// Processing overrides
	rootCmd.PersistentFlags().IntVar(&concurrency, "concurrency", 0,
		"Override number of datasets processed in parallel")
	rootCmd.PersistentFlags().StringVar(&stagingRoot, "staging-root", "",
		"Override local staging directory")

	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false,
		"Disable colored output")
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// CLIOverrides contains flag values that override config file settings
type CLIOverrides struct {
	LogLevel    string
	LogFormat   string
	Concurrency int
	StagingRoot string
}

// GetCLIOverrides returns the CLI flag override values
func GetCLIOverrides() CLIOverrides {
	return CLIOverrides{
		LogLevel:    logLevel,
		LogFormat:   logFormat,
		Concurrency: concurrency,
		StagingRoot: stagingRoot,
	}
}
