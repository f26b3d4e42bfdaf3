// Package duckdb provides a DuckDB warehouse adapter for Driftlake.
//
// This file registers the DuckDB adapter with the adapter registry.
// Import this package with a blank identifier to register the adapter:
//
//	import _ "github.com/driftlake-labs/driftlake/pkg/adapters/duckdb"
package duckdb

import (
	"log/slog"

	"github.com/driftlake-labs/driftlake/pkg/adapter"
)

func init() {
	adapter.Register("duckdb", func(logger *slog.Logger) adapter.Adapter { return New(logger) })
}
