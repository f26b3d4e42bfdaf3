package state

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// --- Snapshot registry operations ---

// RegisterSnapshot registers a new snapshot or updates an existing one,
// matched by name.
func (s *SQLiteStore) RegisterSnapshot(snap *Snapshot) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	now := time.Now().UTC()

	existing, err := s.GetSnapshotByName(snap.Name)
	if err != nil {
		return fmt.Errorf("failed to check existing snapshot: %w", err)
	}

	if existing != nil {
		snap.ID = existing.ID
		snap.CreatedAt = existing.CreatedAt
		snap.UpdatedAt = now

		_, err := s.db.Exec(
			`UPDATE snapshots
			 SET path = ?, file_path = ?, target_table = ?, strategy = ?,
			     description = ?, content_hash = ?, updated_at = ?
			 WHERE id = ?`,
			snap.Path, nullableString(snap.FilePath), snap.TargetTable, snap.Strategy,
			nullableString(snap.Description), snap.ContentHash, snap.UpdatedAt, snap.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update snapshot: %w", err)
		}
		return nil
	}

	if snap.ID == "" {
		snap.ID = generateID()
	}
	snap.CreatedAt = now
	snap.UpdatedAt = now

	_, err = s.db.Exec(
		`INSERT INTO snapshots
		 (id, name, path, file_path, target_table, strategy, description, content_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.Name, snap.Path, nullableString(snap.FilePath), snap.TargetTable,
		snap.Strategy, nullableString(snap.Description), snap.ContentHash, snap.CreatedAt, snap.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to register snapshot: %w", err)
	}
	return nil
}

const snapshotColumns = `id, name, path, file_path, target_table, strategy, description, content_hash, created_at, updated_at`

// GetSnapshotByName retrieves a snapshot by name, or nil when not found.
func (s *SQLiteStore) GetSnapshotByName(name string) (*Snapshot, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	snap, err := scanSnapshot(s.db.QueryRow(
		`SELECT `+snapshotColumns+` FROM snapshots WHERE name = ?`, name,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return snap, nil
}

// GetSnapshotByFilePath retrieves a snapshot by its file system path, or
// nil when not found.
func (s *SQLiteStore) GetSnapshotByFilePath(filePath string) (*Snapshot, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	snap, err := scanSnapshot(s.db.QueryRow(
		`SELECT `+snapshotColumns+` FROM snapshots WHERE file_path = ?`, filePath,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot by file path: %w", err)
	}
	return snap, nil
}

// ListSnapshots retrieves all registered snapshots sorted by name.
func (s *SQLiteStore) ListSnapshots() ([]*Snapshot, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(`SELECT ` + snapshotColumns + ` FROM snapshots ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectSnapshots(rows)
}

// SearchSnapshots performs a full-text search over snapshot names, paths,
// target tables, and descriptions.
func (s *SQLiteStore) SearchSnapshots(query string) ([]*Snapshot, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(
		`SELECT s.id, s.name, s.path, s.file_path, s.target_table, s.strategy,
		        s.description, s.content_hash, s.created_at, s.updated_at
		 FROM snapshots_fts f
		 JOIN snapshots s ON s.rowid = f.rowid
		 WHERE snapshots_fts MATCH ?
		 ORDER BY rank`,
		ftsQuery(query),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectSnapshots(rows)
}

// DeleteSnapshotByFilePath removes a snapshot registration by file path.
func (s *SQLiteStore) DeleteSnapshotByFilePath(filePath string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	_, err := s.db.Exec(`DELETE FROM snapshots WHERE file_path = ?`, filePath)
	if err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// ftsQuery turns free text into a prefix-matching FTS5 query. Each term is
// quoted so user input cannot inject FTS syntax.
func ftsQuery(query string) string {
	terms := strings.Fields(query)
	for i, t := range terms {
		terms[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"*`
	}
	return strings.Join(terms, " ")
}

func scanSnapshot(sc scanner) (*Snapshot, error) {
	snap := &Snapshot{}
	var filePath, description sql.NullString

	err := sc.Scan(&snap.ID, &snap.Name, &snap.Path, &filePath, &snap.TargetTable,
		&snap.Strategy, &description, &snap.ContentHash, &snap.CreatedAt, &snap.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if filePath.Valid {
		snap.FilePath = filePath.String
	}
	if description.Valid {
		snap.Description = description.String
	}
	return snap, nil
}

func collectSnapshots(rows *sql.Rows) ([]*Snapshot, error) {
	var snaps []*Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read snapshots: %w", err)
	}
	return snaps, nil
}

// nullableString returns nil for empty strings so the column stores NULL.
func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
