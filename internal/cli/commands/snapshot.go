package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/driftlake-labs/driftlake/internal/cli/output"
	"github.com/driftlake-labs/driftlake/internal/engine"
	"github.com/driftlake-labs/driftlake/internal/state"
	"github.com/driftlake-labs/driftlake/pkg/core"
)

// SnapshotOptions holds options for the snapshot command.
type SnapshotOptions struct {
	Select      string
	Downstream  bool
	Jobs        int
	Watch       bool
	JSONOutput  bool
	FullRefresh bool
}

// NewSnapshotCommand creates the snapshot command.
func NewSnapshotCommand() *cobra.Command {
	opts := &SnapshotOptions{}

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Run all snapshots or specific snapshots",
		Long: `Execute snapshot definitions in dependency order.

Each definition's source query runs against the warehouse and the result
is merged into its history table: changed rows get a new version, rows
that disappeared are handled per the hard-delete policy, and unchanged
rows are left alone.

By default, runs all discovered snapshots. Use --select to run specific
snapshots. Use --downstream to also run snapshots that depend on the
selection.`,
		Example: `  # Run all snapshots
  driftlake snapshot

  # Run specific snapshots
  driftlake snapshot --select orders,customers

  # Run a snapshot and its downstream dependents
  driftlake snapshot --select orders --downstream

  # Re-run on every definition or seed change
  driftlake snapshot --watch

  # Run with JSON output for CI/CD integration
  driftlake snapshot --json`,
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSnapshot(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Select, "select", "s", "", "Comma-separated list of snapshots to run")
	cmd.Flags().BoolVar(&opts.Downstream, "downstream", false, "Include downstream dependents when using --select")
	cmd.Flags().IntVarP(&opts.Jobs, "jobs", "j", 1, "Snapshots to execute concurrently within a dependency level")
	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "Watch for file changes and re-run")
	cmd.Flags().BoolVar(&opts.JSONOutput, "json", false, "Output as JSON lines for progress tracking")
	cmd.Flags().BoolVar(&opts.FullRefresh, "full-refresh", false, "Re-parse all definitions, ignoring content hashes")

	return cmd
}

func parseSelect(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	selected := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			selected = append(selected, p)
		}
	}
	return selected
}

func runSnapshot(cmd *cobra.Command, opts *SnapshotOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	eng := cmdCtx.Engine
	r := cmdCtx.Renderer

	result, err := eng.Discover(engine.DiscoveryOptions{ForceFullRefresh: opts.FullRefresh})
	if err != nil {
		return fmt.Errorf("failed to discover snapshots: %w", err)
	}
	if result.HasErrors() && !opts.JSONOutput {
		for _, derr := range result.Errors {
			r.Error(fmt.Sprintf("%s: %s", derr.Path, derr.Message))
		}
	}

	runOpts := engine.RunOptions{
		Select:            parseSelect(opts.Select),
		IncludeDownstream: opts.Downstream,
		Jobs:              opts.Jobs,
	}

	if opts.Watch {
		return watchSnapshots(cmd, cmdCtx, runOpts, opts)
	}

	ctx := cmd.Context()
	if opts.JSONOutput {
		return runWithJSON(ctx, eng, runOpts)
	}
	return runWithText(ctx, cmdCtx, runOpts)
}

// watchSnapshots runs once, then re-runs on every definition or seed
// change until interrupted.
func watchSnapshots(cmd *cobra.Command, cmdCtx *CommandContext, runOpts engine.RunOptions, opts *SnapshotOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := cmdCtx.Renderer
	if !opts.JSONOutput {
		r.Muted("Watching for changes (Ctrl-C to stop)...")
	}

	onRun := func(run *core.Run, err error) {
		if opts.JSONOutput {
			reportRunJSON(cmdCtx.Engine, run, err, time.Now())
			return
		}
		reportRun(cmdCtx, run, err)
	}

	return cmdCtx.Engine.Watch(ctx, runOpts, onRun)
}

// runWithText executes snapshots with human-readable output.
func runWithText(ctx context.Context, cmdCtx *CommandContext, runOpts engine.RunOptions) error {
	eng := cmdCtx.Engine
	r := cmdCtx.Renderer
	startTime := time.Now()

	snapshots := eng.GetSnapshots()
	r.Printf("Found %d snapshots\n", len(snapshots))

	if len(runOpts.Select) > 0 {
		downstreamStr := ""
		if runOpts.IncludeDownstream {
			downstreamStr = " (+ downstream)"
		}
		r.Printf("Running %d selected snapshots%s...\n", len(runOpts.Select), downstreamStr)
	} else {
		r.Println("Running all snapshots...")
	}

	run, runErr := eng.Run(ctx, runOpts)
	reportRun(cmdCtx, run, runErr)

	elapsed := time.Since(startTime)
	r.Printf("Completed in %s\n", elapsed.Round(time.Millisecond))

	return runErr
}

// reportRun prints the outcome of one run, including per-snapshot
// status lines from the state store.
func reportRun(cmdCtx *CommandContext, run *core.Run, runErr error) {
	r := cmdCtx.Renderer
	if run == nil {
		if runErr != nil {
			r.Error(runErr.Error())
		}
		return
	}

	r.Printf("Run %s: %s\n", run.ID, run.Status)
	if run.Error != "" {
		r.Error(run.Error)
	}

	store := cmdCtx.Engine.GetStateStore()
	names := snapshotNamesByID(store)
	snapRuns, err := store.GetSnapshotRunsForRun(run.ID)
	if err != nil {
		return
	}
	for _, sr := range snapRuns {
		name := names[sr.SnapshotID]
		if name == "" {
			name = sr.SnapshotID
		}
		detail := ""
		switch sr.Status {
		case state.SnapshotRunStatusSuccess:
			detail = fmt.Sprintf("%d inserted, %d closed (%dms)",
				sr.Stats.RowsInserted, sr.Stats.RowsClosed, sr.ExecutionMS)
			r.StatusLine(name, "success", detail)
		case state.SnapshotRunStatusFailed:
			r.StatusLine(name, "failed", sr.Error)
		case state.SnapshotRunStatusSkipped:
			r.StatusLine(name, "skipped", sr.Error)
		default:
			r.StatusLine(name, string(sr.Status), "")
		}
	}
}

// runWithJSON executes snapshots with JSON lines output.
func runWithJSON(ctx context.Context, eng *engine.Engine, runOpts engine.RunOptions) error {
	startTime := time.Now()
	run, runErr := eng.Run(ctx, runOpts)
	reportRunJSON(eng, run, runErr, startTime)
	return runErr
}

// reportRunJSON emits the run_start/snapshot_complete/run_complete
// event stream for a finished run.
func reportRunJSON(eng *engine.Engine, run *core.Run, runErr error, startTime time.Time) {
	if run == nil {
		emitRunEvent(output.RunEvent{
			Event:  "run_complete",
			Status: "failed",
			Error:  errString(runErr),
		})
		return
	}

	// Selection in execution order, for the run_start event
	var selected []string
	if sorted, err := eng.GetGraph().TopologicalSort(); err == nil {
		for _, node := range sorted {
			selected = append(selected, node.ID)
		}
	}
	emitRunEvent(output.RunEvent{
		Event:     "run_start",
		RunID:     run.ID,
		Snapshots: selected,
	})

	store := eng.GetStateStore()
	names := snapshotNamesByID(store)
	files := snapshotFilesByID(store)

	var successful, failed, skipped int
	if snapRuns, err := store.GetSnapshotRunsForRun(run.ID); err == nil {
		for _, sr := range snapRuns {
			name := names[sr.SnapshotID]
			if name == "" {
				name = sr.SnapshotID
			}

			emitRunEvent(output.RunEvent{
				Event:    "snapshot_start",
				RunID:    run.ID,
				Snapshot: name,
			})

			switch sr.Status {
			case state.SnapshotRunStatusSuccess:
				successful++
			case state.SnapshotRunStatusFailed:
				failed++
			case state.SnapshotRunStatusSkipped:
				skipped++
			}

			event := output.RunEvent{
				Event:        "snapshot_complete",
				RunID:        run.ID,
				Snapshot:     name,
				Status:       string(sr.Status),
				SourceRows:   sr.Stats.SourceRows,
				RowsInserted: sr.Stats.RowsInserted,
				RowsClosed:   sr.Stats.RowsClosed,
				ExecutionMS:  sr.ExecutionMS,
			}
			if sr.Error != "" {
				event.Error = sr.Error
				event.File = files[sr.SnapshotID]
			}
			emitRunEvent(event)
		}
	}

	runStatus := "completed"
	if runErr != nil || run.Status == state.RunStatusFailed {
		runStatus = "failed"
	}

	emitRunEvent(output.RunEvent{
		Event:          "run_complete",
		RunID:          run.ID,
		Status:         runStatus,
		TotalSnapshots: successful + failed + skipped,
		Successful:     successful,
		Failed:         failed,
		Skipped:        skipped,
		TotalMS:        time.Since(startTime).Milliseconds(),
	})
}

// emitRunEvent outputs a run event as a JSON line.
func emitRunEvent(event output.RunEvent) {
	event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	data, _ := json.Marshal(event)
	fmt.Println(string(data))
}

// snapshotNamesByID maps persisted snapshot IDs to names.
func snapshotNamesByID(store state.Store) map[string]string {
	names := make(map[string]string)
	if snaps, err := store.ListSnapshots(); err == nil {
		for _, s := range snaps {
			names[s.ID] = s.Name
		}
	}
	return names
}

// snapshotFilesByID maps persisted snapshot IDs to definition files.
func snapshotFilesByID(store state.Store) map[string]string {
	files := make(map[string]string)
	if snaps, err := store.ListSnapshots(); err == nil {
		for _, s := range snaps {
			files[s.ID] = s.FilePath
		}
	}
	return files
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
