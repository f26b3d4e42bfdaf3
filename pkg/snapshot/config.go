package snapshot

import (
	"fmt"
	"strings"

	"github.com/driftlake-labs/driftlake/pkg/core"
)

// Strategy selects how row changes are detected.
type Strategy string

// Change detection strategies.
const (
	// StrategyTimestamp compares the source's updated_at column against the
	// recorded one; a strictly greater value means the row changed.
	StrategyTimestamp Strategy = "timestamp"

	// StrategyCheck compares the configured check columns (or all non-meta
	// columns) value by value.
	StrategyCheck Strategy = "check"
)

// HardDeletePolicy selects what happens when a tracked identity disappears
// from the source.
type HardDeletePolicy string

// Hard delete policies.
const (
	// HardDeleteIgnore leaves the last row open, as if the record were
	// still present.
	HardDeleteIgnore HardDeletePolicy = "ignore"

	// HardDeleteInvalidate closes the open row at the run timestamp.
	HardDeleteInvalidate HardDeletePolicy = "invalidate"

	// HardDeleteNewRecord closes the open row and inserts a deletion
	// marker carrying the record's final values.
	HardDeleteNewRecord HardDeletePolicy = "new_record"
)

// Metadata columns maintained on every snapshot table. dbt_is_deleted is
// only present when the hard delete policy is new_record.
const (
	ColScdID     = "dbt_scd_id"
	ColUpdatedAt = "dbt_updated_at"
	ColValidFrom = "dbt_valid_from"
	ColValidTo   = "dbt_valid_to"
	ColIsDeleted = "dbt_is_deleted"
)

// Values stored in the dbt_is_deleted column. Text, not boolean, for
// portability across warehouses.
const (
	DeletedTrue  = "True"
	DeletedFalse = "False"
)

// IsMetaColumn reports whether a physical column name is one of the
// snapshot metadata columns. The match is case-insensitive because folding
// dialects store unquoted names in their own case.
func IsMetaColumn(name string) bool {
	for _, m := range [...]string{ColScdID, ColUpdatedAt, ColValidFrom, ColValidTo, ColIsDeleted} {
		if strings.EqualFold(name, m) {
			return true
		}
	}
	return false
}

// Config describes one snapshot as the user wrote it. Column references are
// identifier specifiers, not physical names: unquoted specifiers fold per
// the target dialect, double-quoted ones match verbatim.
type Config struct {
	// Name identifies the snapshot and, by default, its target table.
	Name string

	// UniqueKey lists the key column specifiers. Order matters: it is the
	// order key values are hashed and reported in.
	UniqueKey []string

	// Strategy selects change detection.
	Strategy Strategy

	// UpdatedAt is the specifier of the last-modified column. Required for
	// the timestamp strategy, ignored otherwise.
	UpdatedAt string

	// CheckCols lists the specifiers compared by the check strategy.
	// Ignored when CheckAll is set.
	CheckCols []string

	// CheckAll compares every source column that is not a metadata column.
	CheckAll bool

	// HardDeletes selects the disappearance policy. Empty means ignore.
	HardDeletes HardDeletePolicy

	// ValidToCurrent, when non-empty, is the timestamp literal written to
	// dbt_valid_to on open rows instead of NULL.
	ValidToCurrent string
}

// Validate checks the parts of the configuration that can be checked
// without the source relation.
func (c *Config) Validate() error {
	if len(c.UniqueKey) == 0 {
		return &ConfigurationError{Snapshot: c.Name, Detail: "unique_key must name at least one column"}
	}
	switch c.Strategy {
	case StrategyTimestamp:
		if c.UpdatedAt == "" {
			return &ConfigurationError{Snapshot: c.Name, Detail: "timestamp strategy requires updated_at"}
		}
	case StrategyCheck:
		if !c.CheckAll && len(c.CheckCols) == 0 {
			return &ConfigurationError{Snapshot: c.Name, Detail: "check strategy requires check_cols"}
		}
	default:
		return &ConfigurationError{
			Snapshot: c.Name,
			Detail:   fmt.Sprintf("unknown strategy %q (expected timestamp or check)", c.Strategy),
		}
	}
	switch c.HardDeletes {
	case "", HardDeleteIgnore, HardDeleteInvalidate, HardDeleteNewRecord:
	default:
		return &ConfigurationError{
			Snapshot: c.Name,
			Detail:   fmt.Sprintf("unknown hard_deletes policy %q (expected ignore, invalidate or new_record)", c.HardDeletes),
		}
	}
	if c.ValidToCurrent != "" {
		if _, err := core.ParseTimestamp(c.ValidToCurrent); err != nil {
			return &ConfigurationError{
				Snapshot: c.Name,
				Detail:   fmt.Sprintf("dbt_valid_to_current: %v", err),
			}
		}
	}
	return nil
}

// hardDeletes returns the effective policy with the default applied.
func (c *Config) hardDeletes() HardDeletePolicy {
	if c.HardDeletes == "" {
		return HardDeleteIgnore
	}
	return c.HardDeletes
}

// sentinel returns the configured open-row timestamp, or NULL when open
// rows are represented by NULL.
func (c *Config) sentinel() (core.Value, error) {
	if c.ValidToCurrent == "" {
		return core.NullValue(), nil
	}
	v, err := core.ParseTimestamp(c.ValidToCurrent)
	if err != nil {
		return core.Value{}, &ConfigurationError{
			Snapshot: c.Name,
			Detail:   fmt.Sprintf("dbt_valid_to_current: %v", err),
		}
	}
	return v, nil
}
