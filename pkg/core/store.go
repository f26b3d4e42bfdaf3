package core

// Store defines the interface for state management operations.
type Store interface {
	Open(path string) error
	Close() error
	InitSchema() error

	// Run operations
	CreateRun(trigger string) (*Run, error)
	GetRun(id string) (*Run, error)
	GetLatestRun() (*Run, error)
	ListRuns(limit int) ([]*Run, error)
	CompleteRun(id string, status RunStatus, errMsg string) error

	// Snapshot registry operations
	RegisterSnapshot(snap *PersistedSnapshot) error
	GetSnapshotByName(name string) (*PersistedSnapshot, error)
	GetSnapshotByFilePath(filePath string) (*PersistedSnapshot, error)
	ListSnapshots() ([]*PersistedSnapshot, error)
	SearchSnapshots(query string) ([]*PersistedSnapshot, error)
	DeleteSnapshotByFilePath(filePath string) error

	// Snapshot run operations
	RecordSnapshotRun(snapRun *SnapshotRun) error
	UpdateSnapshotRun(id string, status SnapshotRunStatus, stats SnapshotRunStats, errMsg string) error
	GetSnapshotRunsForRun(runID string) ([]*SnapshotRun, error)
	GetLatestSnapshotRun(snapshotID string) (*SnapshotRun, error)

	// File hash tracking
	GetContentHash(filePath string) (string, error)
	SetContentHash(filePath, hash, fileType string) error
	DeleteContentHash(filePath string) error
}
