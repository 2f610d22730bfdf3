package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dbsmedya/goingest/internal/sqlutil"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

var datasetNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Validate checks the configuration for required fields and valid values.
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, c.validateStore()...)
	errors = append(errors, c.validateWarehouse()...)

	if c.State.Enabled {
		errors = append(errors, c.validateState()...)
	}

	errors = append(errors, c.validateDatasets()...)
	errors = append(errors, c.validateProcessing()...)
	errors = append(errors, c.validateLogging()...)

	if len(errors) > 0 {
		return errors
	}
	return nil
}

func (c *Config) validateStore() ValidationErrors {
	var errors ValidationErrors
	s := &c.Store

	switch s.Driver {
	case "minio", "s3":
		if s.Endpoint == "" && s.Driver == "minio" {
			errors = append(errors, ValidationError{
				Field:   "store.endpoint",
				Message: "endpoint is required for the minio driver",
			})
		}
		// s3 may fall back to the default AWS credential chain
		if s.Driver == "minio" && (s.AccessKey == "" || s.SecretKey == "") {
			errors = append(errors, ValidationError{
				Field:   "store.access_key",
				Message: "access_key and secret_key are required for the minio driver",
			})
		}
		if (s.AccessKey == "") != (s.SecretKey == "") {
			errors = append(errors, ValidationError{
				Field:   "store.secret_key",
				Message: "access_key and secret_key must be set together",
			})
		}
	case "local":
		if s.LocalRoot == "" {
			errors = append(errors, ValidationError{
				Field:   "store.local_root",
				Message: "local_root is required for the local driver",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "store.driver",
			Message: "driver must be 'minio', 's3', or 'local'",
		})
	}

	if s.Bucket == "" {
		errors = append(errors, ValidationError{
			Field:   "store.bucket",
			Message: "bucket is required",
		})
	}

	if s.ArchivePrefix == "" || !strings.HasSuffix(s.ArchivePrefix, "/") {
		errors = append(errors, ValidationError{
			Field:   "store.archive_prefix",
			Message: "archive_prefix must be non-empty and end with '/'",
		})
	}

	validVerify := map[string]bool{"size": true, "none": true, "": true}
	if !validVerify[s.Verify] {
		errors = append(errors, ValidationError{
			Field:   "store.verify",
			Message: "verify must be 'size' or 'none'",
		})
	}

	if s.CallTimeoutSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "store.call_timeout_seconds",
			Message: "call_timeout_seconds must be positive",
		})
	}

	if s.RateLimitRPS < 0 {
		errors = append(errors, ValidationError{
			Field:   "store.rate_limit_rps",
			Message: "rate_limit_rps cannot be negative",
		})
	}

	return errors
}

func (c *Config) validateWarehouse() ValidationErrors {
	var errors ValidationErrors
	w := &c.Warehouse

	required := map[string]string{
		"account":   w.Account,
		"user":      w.User,
		"database":  w.Database,
		"schema":    w.Schema,
		"warehouse": w.Warehouse,
	}
	for _, field := range []string{"account", "user", "database", "schema", "warehouse"} {
		if required[field] == "" {
			errors = append(errors, ValidationError{
				Field:   "warehouse." + field,
				Message: field + " is required",
			})
		}
	}

	if w.MaxConnections < c.Processing.Concurrency {
		errors = append(errors, ValidationError{
			Field:   "warehouse.max_connections",
			Message: fmt.Sprintf("max_connections (%d) must be at least processing.concurrency (%d)", w.MaxConnections, c.Processing.Concurrency),
		})
	}

	if w.MaxIdleConnections < 0 {
		errors = append(errors, ValidationError{
			Field:   "warehouse.max_idle_connections",
			Message: "max_idle_connections cannot be negative",
		})
	}

	if w.CallTimeoutSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "warehouse.call_timeout_seconds",
			Message: "call_timeout_seconds must be positive",
		})
	}

	validFormats := map[string]bool{"PARQUET": true, "CSV": true, "JSON": true}
	if !validFormats[strings.ToUpper(w.FileFormat)] {
		errors = append(errors, ValidationError{
			Field:   "warehouse.file_format",
			Message: "file_format must be 'PARQUET', 'CSV', or 'JSON'",
		})
	}

	validMatch := map[string]bool{"NONE": true, "CASE_SENSITIVE": true, "CASE_INSENSITIVE": true, "": true}
	if !validMatch[strings.ToUpper(w.MatchByColumnName)] {
		errors = append(errors, ValidationError{
			Field:   "warehouse.match_by_column_name",
			Message: "match_by_column_name must be 'NONE', 'CASE_SENSITIVE', or 'CASE_INSENSITIVE'",
		})
	}

	validOnError := map[string]bool{"continue": true, "abort_statement": true, "": true}
	if !validOnError[strings.ToLower(w.OnError)] {
		errors = append(errors, ValidationError{
			Field:   "warehouse.on_error",
			Message: "on_error must be 'continue' or 'abort_statement'",
		})
	}

	return errors
}

func (c *Config) validateState() ValidationErrors {
	var errors ValidationErrors

	if c.State.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "state.host",
			Message: "host is required when state is enabled",
		})
	}

	if c.State.Port <= 0 || c.State.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "state.port",
			Message: "port must be between 1 and 65535",
		})
	}

	if c.State.User == "" {
		errors = append(errors, ValidationError{
			Field:   "state.user",
			Message: "user is required when state is enabled",
		})
	}

	if c.State.Database == "" {
		errors = append(errors, ValidationError{
			Field:   "state.database",
			Message: "database name is required when state is enabled",
		})
	}

	validTLS := map[string]bool{"disable": true, "preferred": true, "required": true, "": true}
	if !validTLS[c.State.TLS] {
		errors = append(errors, ValidationError{
			Field:   "state.tls",
			Message: "tls must be 'disable', 'preferred', or 'required'",
		})
	}

	return errors
}

func (c *Config) validateDatasets() ValidationErrors {
	var errors ValidationErrors

	if len(c.Datasets) == 0 {
		errors = append(errors, ValidationError{
			Field:   "datasets",
			Message: "at least one dataset must be defined",
		})
	}

	seen := make(map[string]bool)
	prefixes := make([]string, 0, len(c.Datasets))
	for i, ds := range c.Datasets {
		prefix := fmt.Sprintf("datasets[%d]", i)

		if !datasetNamePattern.MatchString(ds.Name) {
			errors = append(errors, ValidationError{
				Field:   prefix + ".name",
				Message: "name is required and may only contain letters, digits, '_' and '-'",
			})
		}
		if seen[ds.Name] {
			errors = append(errors, ValidationError{
				Field:   prefix + ".name",
				Message: fmt.Sprintf("duplicate dataset name %q", ds.Name),
			})
		}
		seen[ds.Name] = true

		table := ds.Table
		if table == "" {
			table = ds.Name
		}
		if !sqlutil.IsValidIdentifier(table) {
			errors = append(errors, ValidationError{
				Field:   prefix + ".table",
				Message: fmt.Sprintf("table %q is not a valid identifier", table),
			})
		}

		effective := ds.Prefix
		if effective == "" {
			effective = ds.Name + "/"
		}
		if c.Store.ArchivePrefix != "" && strings.HasPrefix(effective, c.Store.ArchivePrefix) {
			errors = append(errors, ValidationError{
				Field:   prefix + ".prefix",
				Message: fmt.Sprintf("prefix %q lies inside archive_prefix %q", effective, c.Store.ArchivePrefix),
			})
		}

		// Overlapping prefixes would load and archive the same keys twice.
		for j, other := range prefixes {
			if strings.HasPrefix(effective, other) || strings.HasPrefix(other, effective) {
				errors = append(errors, ValidationError{
					Field:   prefix + ".prefix",
					Message: fmt.Sprintf("prefix %q overlaps datasets[%d] prefix %q", effective, j, other),
				})
			}
		}
		prefixes = append(prefixes, effective)
	}

	return errors
}

func (c *Config) validateProcessing() ValidationErrors {
	var errors ValidationErrors

	if c.Processing.Concurrency <= 0 {
		errors = append(errors, ValidationError{
			Field:   "processing.concurrency",
			Message: "concurrency must be positive",
		})
	}

	if c.Processing.StagingRoot == "" {
		errors = append(errors, ValidationError{
			Field:   "processing.staging_root",
			Message: "staging_root is required",
		})
	}

	if c.Processing.IntervalSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "processing.interval_seconds",
			Message: "interval_seconds cannot be negative",
		})
	}

	return errors
}

func (c *Config) validateLogging() ValidationErrors {
	var errors ValidationErrors

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "": true}
	if !validLevels[c.Logging.Level] {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Message: "level must be 'debug', 'info', 'warn', or 'error'",
		})
	}

	validFormats := map[string]bool{"json": true, "text": true, "": true}
	if !validFormats[c.Logging.Format] {
		errors = append(errors, ValidationError{
			Field:   "logging.format",
			Message: "format must be 'json' or 'text'",
		})
	}

	return errors
}
