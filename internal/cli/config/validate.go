package config

import (
	"fmt"
	"os"
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.SnapshotsDir == "" {
		return fmt.Errorf("snapshots_dir is required")
	}

	// Directory existence is checked separately so help and init work
	// without a project.
	return nil
}

// ValidateDirectories checks if required directories exist.
func (c *Config) ValidateDirectories() error {
	if _, err := os.Stat(c.SnapshotsDir); os.IsNotExist(err) {
		return fmt.Errorf("snapshots directory does not exist: %s\nHint: Create the directory or use --snapshots-dir to specify a different path", c.SnapshotsDir)
	}
	return nil
}
