// Package postgres provides a PostgreSQL warehouse adapter for Driftlake.
//
// This file registers the PostgreSQL adapter with the adapter registry.
// Import this package with a blank identifier to register the adapter:
//
//	import _ "github.com/driftlake-labs/driftlake/pkg/adapters/postgres"
package postgres

import (
	"log/slog"

	"github.com/driftlake-labs/driftlake/pkg/adapter"
)

func init() {
	adapter.Register("postgres", func(logger *slog.Logger) adapter.Adapter { return New(logger) })
}
