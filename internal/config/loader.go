package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/viper"

	"github.com/dbsmedya/goingest/internal/types"
)

// Load reads configuration from the specified file path.
// It supports YAML files and performs environment variable substitution.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return LoadFromViper(v)
}

// LoadFromViper creates a Config from an existing Viper instance.
// Useful for testing or when Viper is configured externally.
func LoadFromViper(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	substituteEnvVars(cfg)

	return cfg, nil
}

// envVarPattern matches ${VAR_NAME} or $VAR_NAME patterns
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// substituteEnvVars replaces ${VAR_NAME} patterns with environment variable values.
// Only endpoint and credential fields are expanded.
func substituteEnvVars(cfg *Config) {
	cfg.Store.Endpoint = expandEnvVar(cfg.Store.Endpoint)
	cfg.Store.AccessKey = expandEnvVar(cfg.Store.AccessKey)
	cfg.Store.SecretKey = expandEnvVar(cfg.Store.SecretKey)
	cfg.Store.Bucket = expandEnvVar(cfg.Store.Bucket)
	cfg.Store.LocalRoot = expandEnvVar(cfg.Store.LocalRoot)

	cfg.Warehouse.Account = expandEnvVar(cfg.Warehouse.Account)
	cfg.Warehouse.User = expandEnvVar(cfg.Warehouse.User)
	cfg.Warehouse.Password = expandEnvVar(cfg.Warehouse.Password)
	cfg.Warehouse.Database = expandEnvVar(cfg.Warehouse.Database)
	cfg.Warehouse.Schema = expandEnvVar(cfg.Warehouse.Schema)
	cfg.Warehouse.Warehouse = expandEnvVar(cfg.Warehouse.Warehouse)
	cfg.Warehouse.Role = expandEnvVar(cfg.Warehouse.Role)

	cfg.State.Host = expandEnvVar(cfg.State.Host)
	cfg.State.User = expandEnvVar(cfg.State.User)
	cfg.State.Password = expandEnvVar(cfg.State.Password)
	cfg.State.Database = expandEnvVar(cfg.State.Database)

	cfg.Processing.StagingRoot = expandEnvVar(cfg.Processing.StagingRoot)
	cfg.Logging.Output = expandEnvVar(cfg.Logging.Output)
}

// expandEnvVar expands environment variables in the format ${VAR} or $VAR.
func expandEnvVar(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}

		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		// Return original if env var not found
		return match
	})
}

// GetDataset retrieves a dataset configuration by name.
func (c *Config) GetDataset(name string) (*DatasetConfig, error) {
	for i := range c.Datasets {
		if c.Datasets[i].Name == name {
			return &c.Datasets[i], nil
		}
	}
	return nil, fmt.Errorf("dataset %q not found in configuration", name)
}

// ListDatasets returns all dataset names in configuration order.
func (c *Config) ListDatasets() []string {
	names := make([]string, 0, len(c.Datasets))
	for _, ds := range c.Datasets {
		names = append(names, ds.Name)
	}
	return names
}

// ResolveDatasets converts the configured datasets into pipeline datasets.
// When names is non-empty only those datasets are returned, in configuration order;
// an unknown name is an error.
func (c *Config) ResolveDatasets(names []string) ([]types.Dataset, error) {
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		if _, err := c.GetDataset(n); err != nil {
			return nil, err
		}
		wanted[n] = true
	}

	out := make([]types.Dataset, 0, len(c.Datasets))
	for _, ds := range c.Datasets {
		if len(wanted) > 0 && !wanted[ds.Name] {
			continue
		}
		out = append(out, types.NewDataset(ds.Name, ds.Prefix, ds.Table))
	}
	return out, nil
}

// ApplyOverrides applies CLI flag overrides to the configuration.
// Only non-zero/non-empty values are applied.
func (c *Config) ApplyOverrides(logLevel, logFormat string, concurrency int, stagingRoot string) {
	if logLevel != "" {
		c.Logging.Level = logLevel
	}
	if logFormat != "" {
		c.Logging.Format = logFormat
	}
	if concurrency > 0 {
		c.Processing.Concurrency = concurrency
	}
	if stagingRoot != "" {
		c.Processing.StagingRoot = stagingRoot
	}
}
