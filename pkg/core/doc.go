// Package core defines the shared language of the Driftlake system.
//
// This package contains:
//   - Domain values (Value, Row, TableRef)
//   - Run bookkeeping records (Run, SnapshotRun)
//   - Service interfaces (Adapter, Store)
//   - Configuration types (ProjectConfig, TargetConfig)
//
// The Golden Rule: pkg/core imports ONLY the stdlib.
// All other packages depend on core, not the reverse.
package core
