// Package engine orchestrates snapshot runs.
// discovery.go contains incremental discovery of snapshot definitions.
package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/driftlake-labs/driftlake/internal/loader"
	"github.com/driftlake-labs/driftlake/internal/state"
)

// DiscoveryOptions configures the discovery process.
type DiscoveryOptions struct {
	ForceFullRefresh bool   // Ignore content hashes, re-parse everything
	SnapshotsDir     string // Override default snapshots directory
}

// DiscoveryResult contains statistics about the discovery run.
type DiscoveryResult struct {
	SnapshotsTotal   int
	SnapshotsChanged int
	SnapshotsSkipped int
	SnapshotsDeleted int

	// Errors (non-fatal)
	Errors []DiscoveryError

	// Timing
	Duration time.Duration
}

// DiscoveryError represents a non-fatal error during discovery.
type DiscoveryError struct {
	Path    string
	Type    string // "parse", "save"
	Message string
}

// HasErrors returns true if any errors occurred.
func (r *DiscoveryResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Summary returns a human-readable summary.
func (r *DiscoveryResult) Summary() string {
	return fmt.Sprintf(
		"Snapshots: %d total (%d changed, %d skipped, %d deleted) | Duration: %s",
		r.SnapshotsTotal, r.SnapshotsChanged, r.SnapshotsSkipped, r.SnapshotsDeleted,
		r.Duration.Round(time.Millisecond),
	)
}

// Discover scans the snapshots directory, parses changed definitions, and
// rebuilds the dependency graph. It is the single source of truth for
// project state.
func (e *Engine) Discover(opts DiscoveryOptions) (*DiscoveryResult, error) {
	start := time.Now()
	result := &DiscoveryResult{}

	e.logger.Info("starting discovery")

	if err := e.discoverSnapshots(opts, result); err != nil {
		return result, fmt.Errorf("snapshot discovery failed: %w", err)
	}

	if err := e.buildGraph(); err != nil {
		return result, fmt.Errorf("graph construction failed: %w", err)
	}

	result.Duration = time.Since(start)

	e.logger.Info("discovery completed",
		"snapshots_total", result.SnapshotsTotal,
		"snapshots_changed", result.SnapshotsChanged,
		"snapshots_skipped", result.SnapshotsSkipped,
		"duration_ms", result.Duration.Milliseconds())

	return result, nil
}

// shouldParseFile checks if a file needs re-parsing based on content hash.
func (e *Engine) shouldParseFile(filePath string, forceRefresh bool) (needsParse bool, newHash string, content []byte) {
	content, err := os.ReadFile(filePath) //nolint:gosec // G304: filePath comes from walking the snapshots dir
	if err != nil {
		return true, "", nil // File error, try to parse anyway
	}
	newHash = computeHash(string(content))

	if forceRefresh {
		return true, newHash, content
	}

	existingHash, err := e.store.GetContentHash(filePath)
	if err != nil || existingHash == "" {
		return true, newHash, content // No existing record, must parse
	}

	return existingHash != newHash, newHash, content
}

// discoverSnapshots scans and indexes snapshot definition files incrementally.
func (e *Engine) discoverSnapshots(opts DiscoveryOptions, result *DiscoveryResult) error {
	snapshotsDir := e.snapshotsDir
	if opts.SnapshotsDir != "" {
		snapshotsDir = opts.SnapshotsDir
	}

	if snapshotsDir == "" {
		return nil
	}

	// Ensure snapshotsDir is absolute for consistent path resolution
	absDir, absErr := filepath.Abs(snapshotsDir)
	if absErr != nil {
		return fmt.Errorf("failed to resolve snapshots directory: %w", absErr)
	}

	if _, err := os.Stat(absDir); os.IsNotExist(err) {
		return fmt.Errorf("snapshots directory does not exist: %s", absDir)
	}

	e.logger.Debug("discovering snapshots", "snapshots_dir", absDir)

	// Clear in-memory state for fresh build
	e.snapshots = make(map[string]*loader.Definition)

	// Track which files we've seen (for deletion detection)
	seenFiles := make(map[string]bool)

	ldr := loader.NewLoader(absDir)

	err := filepath.Walk(absDir, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		name := info.Name()
		if strings.HasPrefix(name, ".") && path != absDir {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() || !strings.HasSuffix(name, ".sql") {
			return nil
		}

		absPath, _ := filepath.Abs(path)
		seenFiles[absPath] = true
		result.SnapshotsTotal++

		needsParse, newHash, content := e.shouldParseFile(absPath, opts.ForceFullRefresh)

		def, parseErr := ldr.ParseContent(absPath, string(content))
		if parseErr != nil {
			e.logger.Debug("snapshot parse error", "path", absPath, "error", parseErr.Error())
			result.Errors = append(result.Errors, DiscoveryError{
				Path: absPath, Type: "parse", Message: parseErr.Error(),
			})
			return nil // Continue with other files (graceful degradation)
		}

		if prior, dup := e.snapshots[def.Name]; dup {
			result.Errors = append(result.Errors, DiscoveryError{
				Path: absPath, Type: "parse",
				Message: fmt.Sprintf("duplicate snapshot name %q (also defined in %s)", def.Name, prior.FilePath),
			})
			return nil
		}
		e.snapshots[def.Name] = def

		if !needsParse {
			e.logger.Debug("snapshot unchanged", "path", absPath)
			result.SnapshotsSkipped++
			return nil
		}

		e.logger.Debug("parsed snapshot", "path", absPath, "snapshot", def.Name)

		if saveErr := e.saveSnapshotToStore(def, absPath, newHash); saveErr != nil {
			result.Errors = append(result.Errors, DiscoveryError{
				Path: absPath, Type: "save", Message: saveErr.Error(),
			})
			return nil //nolint:nilerr // Continue with other files
		}

		result.SnapshotsChanged++
		return nil
	})

	if err != nil {
		return err
	}

	// Remove registrations for files that no longer exist
	result.SnapshotsDeleted = e.cleanupDeletedSnapshots(seenFiles)

	return nil
}

// saveSnapshotToStore registers a parsed definition in the state store.
func (e *Engine) saveSnapshotToStore(def *loader.Definition, absPath, hash string) error {
	snap := &state.Snapshot{
		Name:        def.Name,
		Path:        def.Path,
		FilePath:    absPath,
		TargetTable: def.TargetTable.String(),
		Strategy:    string(def.Config.Strategy),
		Description: def.Description,
		ContentHash: hash,
	}

	if err := e.store.RegisterSnapshot(snap); err != nil {
		return err
	}

	return e.store.SetContentHash(absPath, hash, "snapshot")
}

// buildGraph constructs the dependency graph from in-memory definitions.
// An edge runs from a referenced snapshot to the one that refs it.
func (e *Engine) buildGraph() error {
	e.graph.Clear()

	for _, def := range e.snapshots {
		e.graph.AddNode(def.Name, def)
	}

	for _, def := range e.snapshots {
		for _, ref := range def.Refs {
			if ref == def.Name {
				continue // Self-references resolve to {{ this }} semantics
			}
			if _, exists := e.graph.GetNode(ref); !exists {
				return fmt.Errorf("snapshot %s references unknown snapshot %q", def.Name, ref)
			}
			if err := e.graph.AddEdge(ref, def.Name); err != nil {
				return fmt.Errorf("failed to add dependency %s -> %s: %w", ref, def.Name, err)
			}
		}
	}

	if hasCycle, cyclePath := e.graph.HasCycle(); hasCycle {
		return fmt.Errorf("circular dependency detected: %v", cyclePath)
	}

	return nil
}

// cleanupDeletedSnapshots removes registry entries for files that no longer
// exist on disk.
func (e *Engine) cleanupDeletedSnapshots(seenFiles map[string]bool) int {
	deleted := 0
	existing, err := e.store.ListSnapshots()
	if err != nil {
		return 0
	}

	for _, snap := range existing {
		if snap.FilePath == "" || seenFiles[snap.FilePath] {
			continue
		}
		_ = e.store.DeleteSnapshotByFilePath(snap.FilePath)
		_ = e.store.DeleteContentHash(snap.FilePath)
		deleted++
	}

	return deleted
}

// computeHash generates a SHA256 hash of content.
func computeHash(content string) string {
	h := sha256.Sum256([]byte(content))
	return hex.EncodeToString(h[:8]) // Use first 8 bytes for brevity
}
