// Package config provides configuration management for the Driftlake
// CLI.
//
// It layers defaults, the driftlake.yaml project file, DRIFTLAKE_
// environment variables, and CLI flags (highest precedence) into a
// single Config via koanf.
package config

import (
	intconfig "github.com/driftlake-labs/driftlake/internal/config"
	"github.com/driftlake-labs/driftlake/pkg/core"
)

// TargetConfig is an alias for the shared target configuration.
// This allows CLI code to use config.TargetConfig without importing
// pkg/core.
type TargetConfig = core.TargetConfig

// Config holds all CLI configuration options.
type Config struct {
	SnapshotsDir string               `koanf:"snapshots_dir"`
	SeedsDir     string               `koanf:"seeds_dir"`
	StatePath    string               `koanf:"state_path"`
	Environment  string               `koanf:"environment"`
	Verbose      bool                 `koanf:"verbose"`
	OutputFormat string               `koanf:"output"`
	Target       *TargetConfig        `koanf:"target"`
	Environments map[string]EnvConfig `koanf:"environments"`

	// ProjectRoot is the directory all relative paths resolve against.
	// Inferred at load time, never read from the config file.
	ProjectRoot string `koanf:"-"`
}

// EnvConfig holds environment-specific configuration overrides.
type EnvConfig struct {
	SnapshotsDir string        `koanf:"snapshots_dir"`
	SeedsDir     string        `koanf:"seeds_dir"`
	Target       *TargetConfig `koanf:"target"`
}

// Default configuration values. Directory defaults come from the
// shared internal/config package.
const (
	DefaultSnapshotsDir = intconfig.DefaultSnapshotsDir
	DefaultSeedsDir     = intconfig.DefaultSeedsDir
	DefaultStateFile    = ".driftlake/state.db"
	DefaultEnv          = "dev"
	DefaultOutput       = "auto" // Auto-detect: TTY=text, non-TTY=markdown
)
