package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetConfigFile(t *testing.T) {
	originalCfgFile := cfgFile
	defer func() {
		cfgFile = originalCfgFile
	}()

	tests := []struct {
		name     string
		cfgValue string
		want     string
	}{
		{
			name:     "empty config file",
			cfgValue: "",
			want:     "",
		},
		{
			name:     "custom config file",
			cfgValue: "/etc/goingest/prod.yaml",
			want:     "/etc/goingest/prod.yaml",
		},
		{
			name:     "config file with spaces",
			cfgValue: "/path/to/my config.yaml",
			want:     "/path/to/my config.yaml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfgFile = tt.cfgValue
			assert.Equal(t, tt.want, GetConfigFile())
		})
	}
}

func TestGetCLIOverrides(t *testing.T) {
	originalLogLevel := logLevel
	originalLogFormat := logFormat
	originalConcurrency := concurrency
	originalStagingRoot := stagingRoot
	defer func() {
		logLevel = originalLogLevel
		logFormat = originalLogFormat
		concurrency = originalConcurrency
		stagingRoot = originalStagingRoot
	}()

	tests := []struct {
		name        string
		logLevel    string
		logFormat   string
		concurrency int
		stagingRoot string
	}{
		{name: "all empty"},
		{name: "logging only", logLevel: "debug", logFormat: "text"},
		{name: "processing only", concurrency: 4, stagingRoot: "/var/lib/goingest"},
		{name: "all set", logLevel: "warn", logFormat: "json", concurrency: 2, stagingRoot: "/tmp/stage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logLevel = tt.logLevel
			logFormat = tt.logFormat
			concurrency = tt.concurrency
			stagingRoot = tt.stagingRoot

			got := GetCLIOverrides()
			assert.Equal(t, CLIOverrides{
				LogLevel:    tt.logLevel,
				LogFormat:   tt.logFormat,
				Concurrency: tt.concurrency,
				StagingRoot: tt.stagingRoot,
			}, got)
		})
	}
}

func TestRootPersistentFlags(t *testing.T) {
	for _, name := range []string{"config", "log-level", "log-format", "concurrency", "staging-root", "no-color"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(name), "missing persistent flag %s", name)
	}
	assert.Equal(t, "c", rootCmd.PersistentFlags().Lookup("config").Shorthand)
}
