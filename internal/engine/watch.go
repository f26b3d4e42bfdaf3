package engine

// watch.go - Re-running snapshots on filesystem changes

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/driftlake-labs/driftlake/pkg/core"
)

// watchDebounce batches rapid filesystem events (editor saves fire several)
// into one re-run.
const watchDebounce = 300 * time.Millisecond

// Watch runs the snapshots once, then re-runs them whenever a definition or
// seed file changes. It blocks until the context is cancelled. The onRun
// callback receives the outcome of every run, the initial one included.
func (e *Engine) Watch(ctx context.Context, opts RunOptions, onRun func(*core.Run, error)) error {
	if opts.Trigger == "" {
		opts.Trigger = "watch"
	}
	if onRun == nil {
		onRun = func(*core.Run, error) {}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watchDir(watcher, e.snapshotsDir); err != nil {
		return fmt.Errorf("failed to watch snapshots dir: %w", err)
	}
	if e.seedsDir != "" {
		if err := watchDir(watcher, e.seedsDir); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to watch seeds dir: %w", err)
		}
	}

	e.logger.Info("watching for changes", "snapshots_dir", e.snapshotsDir, "seeds_dir", e.seedsDir)

	// Initial run
	onRun(e.Run(ctx, opts))

	var (
		debounce     *time.Timer
		debounceCh   <-chan time.Time
		seedsChanged bool
	)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			switch filepath.Ext(event.Name) {
			case ".sql":
			case ".csv":
				seedsChanged = true
			default:
				continue
			}

			if debounce == nil {
				debounce = time.NewTimer(watchDebounce)
				debounceCh = debounce.C
			} else {
				debounce.Stop()
				debounce.Reset(watchDebounce)
			}

		case <-debounceCh:
			e.logger.Info("change detected, re-running")

			if seedsChanged {
				if err := e.LoadSeeds(ctx); err != nil {
					e.logger.Error("seed reload failed", "error", err)
				}
				seedsChanged = false
			}
			if _, err := e.Discover(DiscoveryOptions{}); err != nil {
				onRun(nil, err)
				continue
			}
			onRun(e.Run(ctx, opts))

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			e.logger.Warn("watcher error", "error", err)
		}
	}
}

// watchDir recursively adds a directory tree to the watcher, skipping
// hidden directories.
func watchDir(watcher *fsnotify.Watcher, dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			name := info.Name()
			if len(name) > 0 && name[0] == '.' && path != dir {
				return filepath.SkipDir
			}
			return watcher.Add(path)
		}
		return nil
	})
}
