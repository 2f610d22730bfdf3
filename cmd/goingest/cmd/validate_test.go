package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCommandStructure(t *testing.T) {
	assert.NotNil(t, validateCmd)
	assert.Equal(t, "validate", validateCmd.Use)
	assert.NotEmpty(t, validateCmd.Short)
	assert.NotEmpty(t, validateCmd.Long)
	assert.NotNil(t, validateCmd.RunE)
	assert.NotNil(t, validateCmd.Flags().Lookup("offline"))
}

func TestRunValidate_Offline(t *testing.T) {
	original := validateOffline
	validateOffline = true
	defer func() { validateOffline = original }()

	writeTestConfig(t, t.TempDir())

	var buf bytes.Buffer
	validateCmd.SetOut(&buf)

	require.NoError(t, runValidate(validateCmd, []string{}))
	assert.Contains(t, buf.String(), "Datasets found: 3")
	assert.Contains(t, buf.String(), "✅ Configuration valid")
}

func TestRunValidate_InvalidConfig(t *testing.T) {
	originalCfgFile := cfgFile
	originalOffline := validateOffline
	defer func() {
		cfgFile = originalCfgFile
		validateOffline = originalOffline
	}()
	validateOffline = true

	content := `store:
  driver: ftp
  bucket: ""
datasets:
  - name: customers
    prefix: archive/customers/
`
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	cfgFile = path

	var buf bytes.Buffer
	validateCmd.SetOut(&buf)

	err := runValidate(validateCmd, []string{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")

	output := buf.String()
	assert.Contains(t, output, "❌ Configuration invalid")
	assert.Contains(t, output, "store.driver")
	assert.Contains(t, output, "store.bucket")
	assert.Contains(t, output, "warehouse.account")
	assert.Contains(t, output, "datasets[0].prefix")
}

func TestRunValidate_MissingConfig(t *testing.T) {
	originalCfgFile := cfgFile
	defer func() { cfgFile = originalCfgFile }()
	cfgFile = "nonexistent-config.yaml"

	err := runValidate(validateCmd, []string{})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}
