package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeTestConfig writes a config using the local store driver rooted at
// storeRoot and points cfgFile at it. cfgFile is restored on cleanup.
func writeTestConfig(t *testing.T, storeRoot string) string {
	t.Helper()

	content := fmt.Sprintf(`store:
  driver: local
  local_root: %s
  bucket: landing
  archive_prefix: archive/

warehouse:
  account: xy12345.eu-west-1
  user: loader
  password: secret
  database: RAW
  schema: PUBLIC
  warehouse: LOAD_WH

datasets:
  - name: customers
  - name: accounts
    table: ACCOUNTS_RAW
  - name: transactions
    prefix: txn/

processing:
  staging_root: %s

logging:
  level: error
  output: stderr
`, storeRoot, filepath.Join(t.TempDir(), "staging"))

	path := filepath.Join(t.TempDir(), "goingest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	original := cfgFile
	cfgFile = path
	t.Cleanup(func() { cfgFile = original })
	return path
}

// putObject creates a file in the local store at root/landing/key.
func putObject(t *testing.T, root, key, body string) {
	t.Helper()
	p := filepath.Join(root, "landing", filepath.FromSlash(key))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(body), 0644))
}
