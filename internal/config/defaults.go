// Package config provides shared configuration defaults and validation
// for Driftlake. It is decoupled from CLI concerns so other tools can
// load project configuration without pulling in cobra.
package config

import "github.com/driftlake-labs/driftlake/pkg/core"

// Default configuration values.
const (
	DefaultSnapshotsDir = "snapshots"
	DefaultSeedsDir     = "seeds"
)

// Config file names, in lookup order.
const (
	ConfigFileName    = "driftlake.yaml"
	ConfigFileNameAlt = "driftlake.yml"
)

// ApplyDefaults applies default values to a ProjectConfig.
func ApplyDefaults(c *core.ProjectConfig) {
	if c == nil {
		return
	}
	if c.SnapshotsDir == "" {
		c.SnapshotsDir = DefaultSnapshotsDir
	}
	if c.SeedsDir == "" {
		c.SeedsDir = DefaultSeedsDir
	}
}

// DefaultSchemaForType returns the default schema for a warehouse type.
func DefaultSchemaForType(dbType string) string {
	switch dbType {
	case "postgres":
		return "public"
	default:
		return "main"
	}
}

// ApplyTargetDefaults applies default values to a TargetConfig based on
// the target type.
func ApplyTargetDefaults(t *core.TargetConfig) {
	if t == nil {
		return
	}

	if t.Schema == "" {
		t.Schema = DefaultSchemaForType(t.Type)
	}

	if t.Type == "postgres" && t.Port == 0 {
		t.Port = 5432
	}
}
