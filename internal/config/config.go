// Package config provides configuration structures and loading for GoIngest.
package config

import "time"

// Config represents the complete application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Warehouse  WarehouseConfig  `yaml:"warehouse" mapstructure:"warehouse"`
	State      StateConfig      `yaml:"state" mapstructure:"state"`
	Datasets   []DatasetConfig  `yaml:"datasets" mapstructure:"datasets"`
	Processing ProcessingConfig `yaml:"processing" mapstructure:"processing"`
	Logging    LoggingConfig    `yaml:"logging" mapstructure:"logging"`
}

// StoreConfig describes the object store holding the incoming files.
type StoreConfig struct {
	Driver             string  `yaml:"driver" mapstructure:"driver"` // minio, s3, local
	Endpoint           string  `yaml:"endpoint" mapstructure:"endpoint"`
	Region             string  `yaml:"region" mapstructure:"region"`
	AccessKey          string  `yaml:"access_key" mapstructure:"access_key"`
	SecretKey          string  `yaml:"secret_key" mapstructure:"secret_key"`
	UseSSL             bool    `yaml:"use_ssl" mapstructure:"use_ssl"`
	Bucket             string  `yaml:"bucket" mapstructure:"bucket"`
	LocalRoot          string  `yaml:"local_root" mapstructure:"local_root"` // local driver only
	ArchivePrefix      string  `yaml:"archive_prefix" mapstructure:"archive_prefix"`
	Verify             string  `yaml:"verify" mapstructure:"verify"` // size or none
	CallTimeoutSeconds int     `yaml:"call_timeout_seconds" mapstructure:"call_timeout_seconds"`
	RateLimitRPS       float64 `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
}

// WarehouseConfig represents the Snowflake connection and load settings.
type WarehouseConfig struct {
	Account            string `yaml:"account" mapstructure:"account"`
	User               string `yaml:"user" mapstructure:"user"`
	Password           string `yaml:"password" mapstructure:"password"`
	Database           string `yaml:"database" mapstructure:"database"`
	Schema             string `yaml:"schema" mapstructure:"schema"`
	Warehouse          string `yaml:"warehouse" mapstructure:"warehouse"`
	Role               string `yaml:"role" mapstructure:"role"`
	MaxConnections     int    `yaml:"max_connections" mapstructure:"max_connections"`
	MaxIdleConnections int    `yaml:"max_idle_connections" mapstructure:"max_idle_connections"`
	CallTimeoutSeconds int    `yaml:"call_timeout_seconds" mapstructure:"call_timeout_seconds"`
	FileFormat         string `yaml:"file_format" mapstructure:"file_format"`                   // PARQUET, CSV, JSON
	MatchByColumnName  string `yaml:"match_by_column_name" mapstructure:"match_by_column_name"` // NONE, CASE_SENSITIVE, CASE_INSENSITIVE
	OnError            string `yaml:"on_error" mapstructure:"on_error"`                         // continue or abort_statement
}

// StateConfig represents the optional MySQL database used for the cycle ledger
// and the cross-process cycle lock.
type StateConfig struct {
	Enabled            bool   `yaml:"enabled" mapstructure:"enabled"`
	Host               string `yaml:"host" mapstructure:"host"`
	Port               int    `yaml:"port" mapstructure:"port"`
	User               string `yaml:"user" mapstructure:"user"`
	Password           string `yaml:"password" mapstructure:"password"`
	Database           string `yaml:"database" mapstructure:"database"`
	TLS                string `yaml:"tls" mapstructure:"tls"` // disable, preferred, required
	MaxConnections     int    `yaml:"max_connections" mapstructure:"max_connections"`
	MaxIdleConnections int    `yaml:"max_idle_connections" mapstructure:"max_idle_connections"`
}

// DatasetConfig represents one logical table fed from an object-store prefix.
type DatasetConfig struct {
	Name   string `yaml:"name" mapstructure:"name"`
	Prefix string `yaml:"prefix" mapstructure:"prefix"` // defaults to "<name>/"
	Table  string `yaml:"table" mapstructure:"table"`   // defaults to name
}

// ProcessingConfig represents cycle execution settings.
type ProcessingConfig struct {
	Concurrency     int    `yaml:"concurrency" mapstructure:"concurrency"`
	StagingRoot     string `yaml:"staging_root" mapstructure:"staging_root"`
	IntervalSeconds int    `yaml:"interval_seconds" mapstructure:"interval_seconds"`
	CycleName       string `yaml:"cycle_name" mapstructure:"cycle_name"` // lock/ledger namespace
}

// LoggingConfig represents logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json or text
	Output string `yaml:"output" mapstructure:"output"` // stdout, stderr, or file path
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Driver:             "minio",
			Region:             "us-east-1",
			ArchivePrefix:      "archive/",
			Verify:             "size",
			CallTimeoutSeconds: 60,
		},
		Warehouse: WarehouseConfig{
			MaxConnections:     4,
			MaxIdleConnections: 2,
			CallTimeoutSeconds: 300,
			FileFormat:         "PARQUET",
			MatchByColumnName:  "NONE",
			OnError:            "continue",
		},
		State: StateConfig{
			Enabled:            false,
			Port:               3306,
			TLS:                "preferred",
			MaxConnections:     2,
			MaxIdleConnections: 1,
		},
		Processing: ProcessingConfig{
			Concurrency:     1,
			StagingRoot:     "/tmp/goingest",
			IntervalSeconds: 1800,
			CycleName:       "default",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// StoreCallTimeout returns the per-call object store timeout.
func (c *Config) StoreCallTimeout() time.Duration {
	return time.Duration(c.Store.CallTimeoutSeconds) * time.Second
}

// WarehouseCallTimeout returns the per-statement warehouse timeout.
func (c *Config) WarehouseCallTimeout() time.Duration {
	return time.Duration(c.Warehouse.CallTimeoutSeconds) * time.Second
}

// Interval returns the time between cycles in serve mode.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Processing.IntervalSeconds) * time.Second
}
