package state

import (
	"database/sql"
	"fmt"
	"time"
)

// --- Snapshot run operations ---

// RecordSnapshotRun records a new snapshot execution.
func (s *SQLiteStore) RecordSnapshotRun(snapRun *SnapshotRun) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	if snapRun.ID == "" {
		snapRun.ID = generateID()
	}
	if snapRun.StartedAt.IsZero() {
		snapRun.StartedAt = time.Now().UTC()
	}

	var errorPtr *string
	if snapRun.Error != "" {
		errorPtr = &snapRun.Error
	}

	_, err := s.db.Exec(
		`INSERT INTO snapshot_runs
		 (id, run_id, snapshot_id, status, source_rows, rows_inserted, rows_closed, rows_tombstoned, started_at, error, execution_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snapRun.ID, snapRun.RunID, snapRun.SnapshotID, snapRun.Status,
		snapRun.Stats.SourceRows, snapRun.Stats.RowsInserted, snapRun.Stats.RowsClosed, snapRun.Stats.RowsTombstoned,
		snapRun.StartedAt, errorPtr, snapRun.ExecutionMS,
	)
	if err != nil {
		return fmt.Errorf("failed to record snapshot run: %w", err)
	}
	return nil
}

// UpdateSnapshotRun updates the status and counters of a snapshot run.
// The execution time is derived from the recorded start time.
func (s *SQLiteStore) UpdateSnapshotRun(id string, status SnapshotRunStatus, stats SnapshotRunStats, errMsg string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	var startedAt time.Time
	err := s.db.QueryRow(`SELECT started_at FROM snapshot_runs WHERE id = ?`, id).Scan(&startedAt)
	if err == sql.ErrNoRows {
		return fmt.Errorf("snapshot run not found: %s", id)
	}
	if err != nil {
		return fmt.Errorf("failed to get snapshot run start time: %w", err)
	}

	now := time.Now().UTC()
	executionMS := now.Sub(startedAt).Milliseconds()

	var errorPtr *string
	if errMsg != "" {
		errorPtr = &errMsg
	}

	_, err = s.db.Exec(
		`UPDATE snapshot_runs
		 SET status = ?, source_rows = ?, rows_inserted = ?, rows_closed = ?, rows_tombstoned = ?,
		     completed_at = ?, error = ?, execution_ms = ?
		 WHERE id = ?`,
		status, stats.SourceRows, stats.RowsInserted, stats.RowsClosed, stats.RowsTombstoned,
		now, errorPtr, executionMS, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update snapshot run: %w", err)
	}
	return nil
}

const snapshotRunColumns = `id, run_id, snapshot_id, status, source_rows, rows_inserted, rows_closed, rows_tombstoned, started_at, completed_at, error, execution_ms`

// GetSnapshotRunsForRun retrieves all snapshot runs for a given run.
func (s *SQLiteStore) GetSnapshotRunsForRun(runID string) ([]*SnapshotRun, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(
		`SELECT `+snapshotRunColumns+` FROM snapshot_runs WHERE run_id = ? ORDER BY started_at`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var snapRuns []*SnapshotRun
	for rows.Next() {
		sr, err := scanSnapshotRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot run: %w", err)
		}
		snapRuns = append(snapRuns, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read snapshot runs: %w", err)
	}
	return snapRuns, nil
}

// GetLatestSnapshotRun retrieves the most recent run of a snapshot, or nil
// when it has never run.
func (s *SQLiteStore) GetLatestSnapshotRun(snapshotID string) (*SnapshotRun, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	sr, err := scanSnapshotRun(s.db.QueryRow(
		`SELECT `+snapshotRunColumns+` FROM snapshot_runs
		 WHERE snapshot_id = ? ORDER BY started_at DESC LIMIT 1`,
		snapshotID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest snapshot run: %w", err)
	}
	return sr, nil
}

func scanSnapshotRun(sc scanner) (*SnapshotRun, error) {
	sr := &SnapshotRun{}
	var sourceRows, rowsInserted, rowsClosed, rowsTombstoned, executionMS sql.NullInt64
	var completedAt sql.NullTime
	var errMsg sql.NullString

	err := sc.Scan(&sr.ID, &sr.RunID, &sr.SnapshotID, &sr.Status,
		&sourceRows, &rowsInserted, &rowsClosed, &rowsTombstoned,
		&sr.StartedAt, &completedAt, &errMsg, &executionMS)
	if err != nil {
		return nil, err
	}

	sr.Stats = SnapshotRunStats{
		SourceRows:     sourceRows.Int64,
		RowsInserted:   rowsInserted.Int64,
		RowsClosed:     rowsClosed.Int64,
		RowsTombstoned: rowsTombstoned.Int64,
	}
	if completedAt.Valid {
		sr.CompletedAt = &completedAt.Time
	}
	if errMsg.Valid {
		sr.Error = errMsg.String
	}
	if executionMS.Valid {
		sr.ExecutionMS = executionMS.Int64
	}
	return sr, nil
}
