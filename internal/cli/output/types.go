package output

// RunEvent is one line of the --json event stream emitted by the
// snapshot command. Events: run_start, snapshot_start,
// snapshot_complete, run_complete.
type RunEvent struct {
	Event     string `json:"event"`
	Timestamp string `json:"timestamp"`
	RunID     string `json:"run_id"`

	// run_start
	Snapshots []string `json:"snapshots,omitempty"`

	// snapshot_start / snapshot_complete
	Snapshot     string `json:"snapshot,omitempty"`
	Status       string `json:"status,omitempty"`
	SourceRows   int64  `json:"source_rows,omitempty"`
	RowsInserted int64  `json:"rows_inserted,omitempty"`
	RowsClosed   int64  `json:"rows_closed,omitempty"`
	ExecutionMS  int64  `json:"execution_ms,omitempty"`
	Error        string `json:"error,omitempty"`
	File         string `json:"file,omitempty"`

	// run_complete
	TotalSnapshots int   `json:"total_snapshots,omitempty"`
	Successful     int   `json:"successful,omitempty"`
	Failed         int   `json:"failed,omitempty"`
	Skipped        int   `json:"skipped,omitempty"`
	TotalMS        int64 `json:"total_ms,omitempty"`
}

// ListOutput is the JSON payload of the list command.
type ListOutput struct {
	Snapshots []SnapshotInfo `json:"snapshots"`
	Summary   ListSummary    `json:"summary"`
}

// SnapshotInfo describes one registered snapshot definition.
type SnapshotInfo struct {
	Name         string       `json:"name"`
	Path         string       `json:"path"`
	FilePath     string       `json:"file_path"`
	TargetTable  string       `json:"target_table"`
	Strategy     string       `json:"strategy"`
	Description  string       `json:"description,omitempty"`
	ContentHash  string       `json:"content_hash,omitempty"`
	Dependencies []string     `json:"dependencies,omitempty"`
	Dependents   []string     `json:"dependents,omitempty"`
	LastRun      *LastRunInfo `json:"last_run,omitempty"`
}

// LastRunInfo summarizes the most recent execution of a snapshot.
type LastRunInfo struct {
	Status       string  `json:"status"`
	SourceRows   int64   `json:"source_rows"`
	RowsInserted int64   `json:"rows_inserted"`
	RowsClosed   int64   `json:"rows_closed"`
	ExecutionMS  int64   `json:"execution_ms"`
	CompletedAt  string  `json:"completed_at,omitempty"`
	Error        *string `json:"error,omitempty"`
}

// ListSummary aggregates list results.
type ListSummary struct {
	TotalSnapshots int            `json:"total_snapshots"`
	ByStatus       map[string]int `json:"by_status"`
}

// SeedOutput is the JSON payload of the seed command.
type SeedOutput struct {
	Seeds   []SeedInfo  `json:"seeds"`
	Summary SeedSummary `json:"summary"`
}

// SeedInfo describes one loaded seed file.
type SeedInfo struct {
	Name     string `json:"name"`
	FilePath string `json:"file_path"`
}

// SeedSummary aggregates seed results.
type SeedSummary struct {
	TotalSeeds int `json:"total_seeds"`
}

// RunsOutput is the JSON payload of the runs command.
type RunsOutput struct {
	Runs []RunInfo `json:"runs"`
}

// RunInfo describes one recorded run.
type RunInfo struct {
	ID          string            `json:"id"`
	Trigger     string            `json:"trigger"`
	Status      string            `json:"status"`
	StartedAt   string            `json:"started_at"`
	CompletedAt string            `json:"completed_at,omitempty"`
	Error       string            `json:"error,omitempty"`
	Snapshots   []SnapshotRunInfo `json:"snapshots,omitempty"`
}

// SnapshotRunInfo describes one snapshot execution within a run.
type SnapshotRunInfo struct {
	Snapshot     string `json:"snapshot"`
	Status       string `json:"status"`
	SourceRows   int64  `json:"source_rows"`
	RowsInserted int64  `json:"rows_inserted"`
	RowsClosed   int64  `json:"rows_closed"`
	ExecutionMS  int64  `json:"execution_ms"`
	Error        string `json:"error,omitempty"`
}
