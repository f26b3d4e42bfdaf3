// Package engine orchestrates snapshot runs: it discovers definitions,
// resolves their dependency order, merges each source against its history
// table, and records the results in the state store.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/driftlake-labs/driftlake/internal/dag"
	"github.com/driftlake-labs/driftlake/internal/loader"
	"github.com/driftlake-labs/driftlake/internal/state"
	"github.com/driftlake-labs/driftlake/pkg/adapter"
)

// Engine drives snapshot execution against one warehouse.
type Engine struct {
	// Warehouse adapter (lazy initialized)
	db          adapter.Adapter
	dbConfig    adapter.Config
	dbConnected bool
	dbMu        sync.Mutex

	// Structured logger
	logger *slog.Logger

	store        state.Store
	snapshotsDir string
	seedsDir     string
	graph        *dag.Graph
	snapshots    map[string]*loader.Definition // keyed by snapshot name
}

// Config holds engine configuration.
type Config struct {
	// SnapshotsDir is the path to the snapshot definitions directory
	SnapshotsDir string
	// SeedsDir is the path to the seeds (raw data) directory
	SeedsDir string
	// StatePath is the path to the SQLite state database
	StatePath string
	// AdapterConfig contains the warehouse adapter configuration
	AdapterConfig *adapter.Config
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// New creates a new engine with lazy warehouse connection.
// The adapter is only connected when Run(), LoadSeeds(), or Watch() needs it.
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	logger.Debug("initializing engine", "snapshots_dir", cfg.SnapshotsDir)

	// Create state store (always needed)
	store := state.NewSQLiteStore(logger)
	if err := store.Open(cfg.StatePath); err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}

	if err := store.InitSchema(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize state schema: %w", err)
	}

	var dbConfig adapter.Config
	if cfg.AdapterConfig != nil {
		dbConfig = *cfg.AdapterConfig
	}
	if dbConfig.Type == "" {
		dbConfig.Type = "duckdb"
	}

	return &Engine{
		db:           nil, // Lazy
		dbConfig:     dbConfig,
		dbConnected:  false,
		logger:       logger,
		store:        store,
		snapshotsDir: cfg.SnapshotsDir,
		seedsDir:     cfg.SeedsDir,
		graph:        dag.NewGraph(),
		snapshots:    make(map[string]*loader.Definition),
	}, nil
}

// ensureDBConnected lazily connects to the warehouse.
func (e *Engine) ensureDBConnected(ctx context.Context) error {
	e.dbMu.Lock()
	defer e.dbMu.Unlock()

	if e.dbConnected {
		return nil
	}

	e.logger.Debug("connecting to warehouse", "adapter_type", e.dbConfig.Type)

	db, err := adapter.NewAdapter(e.dbConfig, e.logger)
	if err != nil {
		return fmt.Errorf("failed to create warehouse adapter: %w", err)
	}

	if err := db.Connect(ctx, e.dbConfig); err != nil {
		return fmt.Errorf("failed to connect to warehouse: %w", err)
	}

	e.db = db
	e.dbConnected = true

	e.logger.Debug("warehouse connected", "dialect", db.DialectName())

	return nil
}

// Close releases all resources.
func (e *Engine) Close() error {
	e.logger.Debug("closing engine")

	var errs []error
	if e.db != nil {
		if err := e.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing engine: %v", errs)
	}
	return nil
}

// --- Getters (public accessors) ---

// GetGraph returns the dependency graph.
func (e *Engine) GetGraph() *dag.Graph {
	return e.graph
}

// GetSnapshots returns all discovered snapshot definitions, keyed by name.
func (e *Engine) GetSnapshots() map[string]*loader.Definition {
	return e.snapshots
}

// GetSnapshot returns one discovered definition, or nil.
func (e *Engine) GetSnapshot(name string) *loader.Definition {
	return e.snapshots[name]
}

// GetStateStore returns the state store.
func (e *Engine) GetStateStore() state.Store {
	return e.store
}
