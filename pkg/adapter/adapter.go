// Package adapter provides warehouse adapter interfaces and shared
// implementation for Driftlake's snapshot engine.
//
// This package contains the public contract that all warehouse adapters must
// implement. Concrete adapter implementations are in pkg/adapters/
// subdirectories.
//
// Note: Core types (Config, Column, Metadata, Rows) are defined in pkg/core.
// This package re-exports them via type aliases for convenience.
package adapter

import (
	"github.com/driftlake-labs/driftlake/pkg/core"
)

// Type aliases for the core types adapters speak in.
type (
	// Config is an alias for core.AdapterConfig.
	Config = core.AdapterConfig

	// Column is an alias for core.Column.
	Column = core.Column

	// Metadata is an alias for core.TableMetadata.
	Metadata = core.TableMetadata

	// Rows is an alias for core.Rows.
	Rows = core.Rows

	// Adapter is an alias for core.Adapter, the interface every warehouse
	// adapter implements.
	Adapter = core.Adapter
)
