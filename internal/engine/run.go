package engine

// run.go - Execution orchestration for snapshot runs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/driftlake-labs/driftlake/internal/dag"
	"github.com/driftlake-labs/driftlake/internal/loader"
	"github.com/driftlake-labs/driftlake/internal/state"
	"github.com/driftlake-labs/driftlake/pkg/core"
)

// RunOptions selects and shapes one engine run.
type RunOptions struct {
	// Select names the snapshots to run. Empty means all discovered
	// snapshots.
	Select []string

	// IncludeDownstream also runs everything that depends on the selection.
	IncludeDownstream bool

	// Jobs caps how many snapshots execute concurrently within one
	// dependency level. Values below 2 mean serial execution.
	Jobs int

	// Trigger records what initiated the run. Defaults to "manual".
	Trigger string
}

// preparedSnapshot holds a definition ready for execution after its source
// query rendered successfully.
type preparedSnapshot struct {
	def       *loader.Definition
	persisted *state.Snapshot
	snapRun   *core.SnapshotRun
	sql       string
}

// Run executes snapshots in dependency order using a two-phase approach:
// Phase 1: Render and validate all source queries (fail fast if any fail)
// Phase 2: Execute level by level, snapshots within a level in parallel
func (e *Engine) Run(ctx context.Context, opts RunOptions) (*core.Run, error) {
	trigger := opts.Trigger
	if trigger == "" {
		trigger = "manual"
	}

	e.logger.Info("starting run", "trigger", trigger, "select", opts.Select)

	// Ensure the warehouse is connected before execution
	if err := e.ensureDBConnected(ctx); err != nil {
		return nil, err
	}

	graph, err := e.selectGraph(opts)
	if err != nil {
		return nil, err
	}

	// Create a new run
	run, err := e.store.CreateRun(trigger)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	e.logger.Debug("created run", "run_id", run.ID)

	sorted, err := graph.TopologicalSort()
	if err != nil {
		_ = e.store.CompleteRun(run.ID, core.RunStatusFailed, fmt.Sprintf("dependency sort failed: %v", err))
		return run, err
	}

	e.logger.Debug("rendering snapshots", "count", len(sorted))

	// Phase 1: Render all source queries
	prepared, renderErrors := e.validateAndPrepare(run.ID, sorted)

	if len(renderErrors) > 0 {
		// Mark prepared snapshots as skipped
		for _, p := range prepared {
			_ = e.store.UpdateSnapshotRun(p.snapRun.ID, core.SnapshotRunStatusSkipped,
				core.SnapshotRunStats{}, "run aborted: other snapshots failed to render")
		}

		errMsg := fmt.Sprintf("%d snapshot(s) failed to render", len(renderErrors))
		_ = e.store.CompleteRun(run.ID, core.RunStatusFailed, errMsg)

		e.logger.Error("run failed during validation", "run_id", run.ID, "render_errors", len(renderErrors))
		run, _ = e.store.GetRun(run.ID)
		return run, errors.Join(renderErrors...)
	}

	e.logger.Debug("executing snapshots", "count", len(prepared))

	// Phase 2: Execute by dependency level
	runErr := e.executeSnapshots(ctx, graph, prepared, opts.Jobs)

	// Complete run
	if runErr != nil {
		e.logger.Info("run failed", "run_id", run.ID, "error", runErr.Error())
		_ = e.store.CompleteRun(run.ID, core.RunStatusFailed, runErr.Error())
	} else {
		e.logger.Info("run completed", "run_id", run.ID)
		_ = e.store.CompleteRun(run.ID, core.RunStatusCompleted, "")
	}

	run, _ = e.store.GetRun(run.ID)
	return run, runErr
}

// selectGraph restricts the dependency graph to the selected snapshots,
// or returns the full graph when nothing is selected.
func (e *Engine) selectGraph(opts RunOptions) (*dag.Graph, error) {
	if len(opts.Select) == 0 {
		return e.graph, nil
	}

	for _, name := range opts.Select {
		if _, ok := e.snapshots[name]; !ok {
			return nil, fmt.Errorf("unknown snapshot %q", name)
		}
	}

	affected := opts.Select
	if opts.IncludeDownstream {
		affected = e.graph.GetAffectedNodes(opts.Select)
	}
	return e.graph.Subgraph(affected), nil
}

// validateAndPrepare renders every selected snapshot's source query and
// records a pending SnapshotRun for it. Returns the prepared snapshots and
// any render errors encountered.
func (e *Engine) validateAndPrepare(runID string, sorted []*dag.Node) ([]*preparedSnapshot, []error) {
	var prepared []*preparedSnapshot
	var renderErrors []error

	for _, node := range sorted {
		def := node.Data.(*loader.Definition)

		persisted, err := e.store.GetSnapshotByName(def.Name)
		if err != nil || persisted == nil {
			// Snapshot not registered, record as failed
			errMsg := fmt.Sprintf("snapshot not found in store: %v", err)
			snapRun := &core.SnapshotRun{
				RunID:      runID,
				SnapshotID: def.Name, // Use name as fallback ID
				Status:     core.SnapshotRunStatusFailed,
				Error:      errMsg,
			}
			_ = e.store.RecordSnapshotRun(snapRun)
			renderErrors = append(renderErrors, fmt.Errorf("%s: not found in store", def.Name))
			continue
		}

		// Create pending SnapshotRun
		snapRun := &core.SnapshotRun{
			RunID:      runID,
			SnapshotID: persisted.ID,
			Status:     core.SnapshotRunStatusPending,
		}
		if err := e.store.RecordSnapshotRun(snapRun); err != nil {
			renderErrors = append(renderErrors, fmt.Errorf("%s: failed to record snapshot run: %w", def.Name, err))
			continue
		}

		sql, err := e.renderSource(def)
		if err != nil {
			_ = e.store.UpdateSnapshotRun(snapRun.ID, core.SnapshotRunStatusFailed, core.SnapshotRunStats{}, err.Error())
			renderErrors = append(renderErrors, err)
			continue
		}

		e.logger.Debug("snapshot source rendered", "snapshot", def.Name)

		prepared = append(prepared, &preparedSnapshot{
			def:       def,
			persisted: persisted,
			snapRun:   snapRun,
			sql:       sql,
		})
	}

	return prepared, renderErrors
}

// renderSource resolves ref() and this expressions in a definition's SQL.
func (e *Engine) renderSource(def *loader.Definition) (string, error) {
	resolve := func(name string) (string, error) {
		dep, ok := e.snapshots[name]
		if !ok {
			return "", fmt.Errorf("%s: ref to unknown snapshot %q", def.Name, name)
		}
		return qualifyTable(e.db, dep.TargetTable), nil
	}
	sql, err := loader.RenderSQL(def.SQL, resolve, qualifyTable(e.db, def.TargetTable))
	if err != nil {
		return "", fmt.Errorf("%s: %w", def.Name, err)
	}
	return sql, nil
}

// executeSnapshots runs the prepared snapshots level by level. Snapshots in
// one level share no dependencies and run concurrently, capped at jobs.
// A failure finishes its level, then skips everything after it.
func (e *Engine) executeSnapshots(ctx context.Context, graph *dag.Graph, prepared []*preparedSnapshot, jobs int) error {
	byName := make(map[string]*preparedSnapshot, len(prepared))
	for _, p := range prepared {
		byName[p.def.Name] = p
	}

	levels, err := graph.GetExecutionLevels()
	if err != nil {
		return err
	}

	if jobs < 1 {
		jobs = 1
	}

	executed := make(map[string]bool, len(prepared))
	for _, level := range levels {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(jobs)

		for _, name := range level {
			p, ok := byName[name]
			if !ok {
				continue
			}
			executed[name] = true

			g.Go(func() error {
				return e.executeOne(gctx, p)
			})
		}

		if err := g.Wait(); err != nil {
			// Mark everything not yet executed as skipped
			for _, p := range prepared {
				if executed[p.def.Name] {
					continue
				}
				_ = e.store.UpdateSnapshotRun(p.snapRun.ID, core.SnapshotRunStatusSkipped,
					core.SnapshotRunStats{}, "skipped: upstream snapshot failed")
			}
			return err
		}
	}

	return nil
}

// executeOne merges one snapshot and records the outcome.
func (e *Engine) executeOne(ctx context.Context, p *preparedSnapshot) error {
	_ = e.store.UpdateSnapshotRun(p.snapRun.ID, core.SnapshotRunStatusRunning, core.SnapshotRunStats{}, "")

	start := time.Now()
	stats, err := e.mergeSnapshot(ctx, p.def, p.sql)
	executionMS := time.Since(start).Milliseconds()

	if err != nil {
		e.logger.Debug("snapshot execution failed", "snapshot", p.def.Name, "error", err)
		_ = e.store.UpdateSnapshotRun(p.snapRun.ID, core.SnapshotRunStatusFailed, core.SnapshotRunStats{}, err.Error())
		return fmt.Errorf("%s: %w", p.def.Name, err)
	}

	e.logger.Debug("snapshot executed",
		"snapshot", p.def.Name,
		"source_rows", stats.SourceRows,
		"rows_inserted", stats.RowsInserted,
		"rows_closed", stats.RowsClosed,
		"exec_ms", executionMS)
	_ = e.store.UpdateSnapshotRun(p.snapRun.ID, core.SnapshotRunStatusSuccess, stats, "")
	return nil
}
