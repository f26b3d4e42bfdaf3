package config

import (
	"fmt"
	"strings"

	"github.com/driftlake-labs/driftlake/pkg/adapter"
	"github.com/driftlake-labs/driftlake/pkg/core"
)

// ValidateTarget checks if the target configuration is valid. The
// adapter registry is the single source of truth for known types.
func ValidateTarget(t *core.TargetConfig) error {
	if t == nil {
		return fmt.Errorf("target configuration is required")
	}
	if t.Type == "" {
		return fmt.Errorf("target type is required")
	}

	if !adapter.IsRegistered(strings.ToLower(t.Type)) {
		return &adapter.UnknownAdapterError{
			Type:      t.Type,
			Available: adapter.ListAdapters(),
		}
	}

	return nil
}
