package core

import "time"

// RunStatus represents the status of a snapshot run session.
type RunStatus string

// Run status constants.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Run represents one invocation of the snapshot engine, covering one or
// more snapshots.
type Run struct {
	ID          string
	Trigger     string // manual, watch
	Status      RunStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// SnapshotRunStatus represents the status of an individual snapshot
// execution within a run.
type SnapshotRunStatus string

// Snapshot run status constants.
const (
	SnapshotRunStatusPending SnapshotRunStatus = "pending"
	SnapshotRunStatusRunning SnapshotRunStatus = "running"
	SnapshotRunStatusSuccess SnapshotRunStatus = "success"
	SnapshotRunStatusFailed  SnapshotRunStatus = "failed"
	SnapshotRunStatusSkipped SnapshotRunStatus = "skipped"
)

// SnapshotRunStats carries the row counters produced by applying one merge
// plan. The counters describe mutations of the history table, not of the
// source.
type SnapshotRunStats struct {
	SourceRows     int64 // rows read from the source relation
	RowsInserted   int64 // new history rows, tombstones included
	RowsClosed     int64 // previously open rows that received a valid_to
	RowsTombstoned int64 // deletion markers among the inserted rows
}

// SnapshotRun represents a single execution of one snapshot within a run.
type SnapshotRun struct {
	ID          string
	RunID       string
	SnapshotID  string
	Status      SnapshotRunStatus
	Stats       SnapshotRunStats
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
	ExecutionMS int64
}

// PersistedSnapshot represents a snapshot definition registered in the
// state database. The definition itself lives on disk; this record carries
// what the CLI needs for listing, searching, and change detection.
type PersistedSnapshot struct {
	ID          string // database primary key
	Name        string
	Path        string // project-relative path of the definition file
	FilePath    string // absolute path of the definition file
	TargetTable string
	Strategy    string // timestamp, check
	Description string
	ContentHash string // for change detection
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
