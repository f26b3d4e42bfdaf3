// Package state persists run history, the snapshot registry, and file
// content hashes in a project-local SQLite database.
package state

import "github.com/driftlake-labs/driftlake/pkg/core"

// Re-export the core state types so internal packages can use state.Run
// and friends without importing pkg/core directly.
type (
	// Store is an alias for core.Store.
	Store = core.Store

	// Run is an alias for core.Run.
	Run = core.Run

	// RunStatus is an alias for core.RunStatus.
	RunStatus = core.RunStatus

	// Snapshot is an alias for core.PersistedSnapshot.
	Snapshot = core.PersistedSnapshot

	// SnapshotRun is an alias for core.SnapshotRun.
	SnapshotRun = core.SnapshotRun

	// SnapshotRunStatus is an alias for core.SnapshotRunStatus.
	SnapshotRunStatus = core.SnapshotRunStatus

	// SnapshotRunStats is an alias for core.SnapshotRunStats.
	SnapshotRunStats = core.SnapshotRunStats
)

// Re-export status constants from core.
const (
	RunStatusRunning   = core.RunStatusRunning
	RunStatusCompleted = core.RunStatusCompleted
	RunStatusFailed    = core.RunStatusFailed
	RunStatusCancelled = core.RunStatusCancelled

	SnapshotRunStatusPending = core.SnapshotRunStatusPending
	SnapshotRunStatusRunning = core.SnapshotRunStatusRunning
	SnapshotRunStatusSuccess = core.SnapshotRunStatusSuccess
	SnapshotRunStatusFailed  = core.SnapshotRunStatusFailed
	SnapshotRunStatusSkipped = core.SnapshotRunStatusSkipped
)
