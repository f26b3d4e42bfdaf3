package commands

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/driftlake-labs/driftlake/internal/cli/output"
	"github.com/driftlake-labs/driftlake/internal/state"
)

// NewRunsCommand creates the runs command.
func NewRunsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show run history",
		Long: `Show recorded snapshot runs, most recent first.

Use 'runs show <id>' to inspect the per-snapshot results of one run.`,
		Example: `  # Show the last 10 runs
  driftlake runs

  # Show the last 50 runs as JSON
  driftlake runs --limit 50 --output json

  # Inspect one run
  driftlake runs show 4f7c2a`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRuns(cmd, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of runs to show")

	cmd.AddCommand(newRunsShowCommand())

	return cmd
}

func runRuns(cmd *cobra.Command, limit int) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	r := cmdCtx.Renderer
	store := cmdCtx.Engine.GetStateStore()

	runs, err := store.ListRuns(limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if r.EffectiveMode() == output.ModeJSON {
		infos := make([]output.RunInfo, 0, len(runs))
		for _, run := range runs {
			infos = append(infos, runInfo(run, nil, nil))
		}
		return r.JSON(output.RunsOutput{Runs: infos})
	}

	if len(runs) == 0 {
		r.Muted("No runs recorded yet. Run 'driftlake snapshot' first.")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(r.Writer())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Trigger", "Status", "Started", "Duration", "Error"})

	for _, run := range runs {
		t.AppendRow(table.Row{
			run.ID,
			run.Trigger,
			string(run.Status),
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			runDuration(run),
			truncate(run.Error, 60),
		})
	}

	t.Render()
	return nil
}

// newRunsShowCommand creates the runs show subcommand.
func newRunsShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show per-snapshot results of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunsShow(cmd, args[0])
		},
	}
}

func runRunsShow(cmd *cobra.Command, runID string) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	r := cmdCtx.Renderer
	store := cmdCtx.Engine.GetStateStore()

	run, err := store.GetRun(runID)
	if err != nil {
		return fmt.Errorf("failed to load run: %w", err)
	}
	if run == nil {
		return fmt.Errorf("run %q not found", runID)
	}

	snapRuns, err := store.GetSnapshotRunsForRun(run.ID)
	if err != nil {
		return fmt.Errorf("failed to load snapshot runs: %w", err)
	}
	names := snapshotNamesByID(store)

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(runInfo(run, snapRuns, names))
	}

	r.Header(1, fmt.Sprintf("Run %s", run.ID))
	r.Println(output.FormatKeyValue("Trigger", run.Trigger))
	r.Println(output.FormatKeyValue("Status", string(run.Status)))
	r.Println(output.FormatKeyValue("Started", run.StartedAt.Local().Format(time.RFC3339)))
	if run.CompletedAt != nil {
		r.Println(output.FormatKeyValue("Duration", runDuration(run)))
	}
	if run.Error != "" {
		r.Println(output.FormatKeyValue("Error", run.Error))
	}
	r.Println("")

	t := table.NewWriter()
	t.SetOutputMirror(r.Writer())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Snapshot", "Status", "Source", "Inserted", "Closed", "MS", "Error"})

	for _, sr := range snapRuns {
		name := names[sr.SnapshotID]
		if name == "" {
			name = sr.SnapshotID
		}
		t.AppendRow(table.Row{
			name,
			string(sr.Status),
			sr.Stats.SourceRows,
			sr.Stats.RowsInserted,
			sr.Stats.RowsClosed,
			sr.ExecutionMS,
			truncate(sr.Error, 60),
		})
	}

	t.Render()
	return nil
}

// runInfo converts a run (and optionally its snapshot runs) to the
// JSON payload form.
func runInfo(run *state.Run, snapRuns []*state.SnapshotRun, names map[string]string) output.RunInfo {
	info := output.RunInfo{
		ID:        run.ID,
		Trigger:   run.Trigger,
		Status:    string(run.Status),
		StartedAt: run.StartedAt.UTC().Format(time.RFC3339),
		Error:     run.Error,
	}
	if run.CompletedAt != nil {
		info.CompletedAt = run.CompletedAt.UTC().Format(time.RFC3339)
	}

	for _, sr := range snapRuns {
		name := names[sr.SnapshotID]
		if name == "" {
			name = sr.SnapshotID
		}
		info.Snapshots = append(info.Snapshots, output.SnapshotRunInfo{
			Snapshot:     name,
			Status:       string(sr.Status),
			SourceRows:   sr.Stats.SourceRows,
			RowsInserted: sr.Stats.RowsInserted,
			RowsClosed:   sr.Stats.RowsClosed,
			ExecutionMS:  sr.ExecutionMS,
			Error:        sr.Error,
		})
	}

	return info
}

func runDuration(run *state.Run) string {
	if run.CompletedAt == nil {
		return "-"
	}
	return run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
