// Package app resolves the daemon's config directory, database path, and
// runtime configuration, generalizing the teacher's ~/.config/vybe layout
// to ~/.config/memoryd.
package app

import (
	"os"
	"path/filepath"
)

// ConfigDir returns ~/.config/memoryd on all platforms.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "memoryd"), nil
}

// EnsureConfigDir creates the config directory and default config.yaml if missing.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}

	configFile := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return os.WriteFile(configFile, []byte(defaultConfig), 0600)
	}
	return nil
}

const defaultConfig = `# memoryd configuration
# Run: memoryd serve --help

# Optional: override the SQLite database location.
# Can also be set via MEMORYD_DB_PATH or --db-path.
# db_path: ~/.config/memoryd/memoryd.db

budget:
  max_tokens: 65000

retrieval:
  candidate_pool_max: 2000
  retrieved_chunks_max: 200
  alpha: 0.6
  beta: 0.3
  gamma: 0.1

ingestion:
  max_bytes_per_tool_result: 65536
  default_scope: global

privacy:
  never_store_secrets: true

capsules:
  default_ttl_days: 7

graph:
  max_traversal_depth: 5
`
