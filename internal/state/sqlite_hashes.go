package state

import (
	"database/sql"
	"errors"
	"fmt"
)

// GetContentHash retrieves the content hash for a file path. Returns an
// empty string when the file is not tracked.
func (s *SQLiteStore) GetContentHash(filePath string) (string, error) {
	if s.db == nil {
		return "", fmt.Errorf("database not opened")
	}

	var hash string
	err := s.db.QueryRow(
		`SELECT content_hash FROM content_hashes WHERE file_path = ?`, filePath,
	).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get content hash: %w", err)
	}
	return hash, nil
}

// SetContentHash stores the content hash for a file path.
func (s *SQLiteStore) SetContentHash(filePath, hash, fileType string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	_, err := s.db.Exec(
		`INSERT INTO content_hashes (file_path, content_hash, file_type) VALUES (?, ?, ?)
		 ON CONFLICT (file_path) DO UPDATE SET content_hash = excluded.content_hash, file_type = excluded.file_type`,
		filePath, hash, fileType,
	)
	if err != nil {
		return fmt.Errorf("failed to set content hash: %w", err)
	}
	return nil
}

// DeleteContentHash removes the content hash for a file path.
func (s *SQLiteStore) DeleteContentHash(filePath string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	_, err := s.db.Exec(`DELETE FROM content_hashes WHERE file_path = ?`, filePath)
	if err != nil {
		return fmt.Errorf("failed to delete content hash: %w", err)
	}
	return nil
}
