package commands

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/driftlake-labs/driftlake/internal/cli/output"
	"github.com/driftlake-labs/driftlake/internal/engine"
	"github.com/driftlake-labs/driftlake/internal/state"
)

// NewListCommand creates the list command.
func NewListCommand() *cobra.Command {
	var search string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all snapshots and their dependencies",
		Long: `List all discovered snapshots with their strategy, dependencies, and
last run status.

Output adapts to environment:
  - Terminal: Styled, colored output
  - Piped/Scripted: Markdown format (agent-friendly)

Use --output to override: auto, text, markdown, json`,
		Example: `  # List all snapshots (auto-detect output format)
  driftlake list

  # List snapshots as JSON
  driftlake list --output json

  # Full-text search over names, descriptions, and SQL
  driftlake list --search revenue`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd, search)
		},
	}

	cmd.Flags().StringVar(&search, "search", "", "Full-text search over registered snapshots")

	return cmd
}

func runList(cmd *cobra.Command, search string) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	eng := cmdCtx.Engine
	r := cmdCtx.Renderer

	if _, err := eng.Discover(engine.DiscoveryOptions{}); err != nil {
		return fmt.Errorf("failed to discover snapshots: %w", err)
	}

	if search != "" {
		return listSearch(eng, r, search)
	}

	switch r.EffectiveMode() {
	case output.ModeJSON:
		return listJSON(eng, r)
	case output.ModeMarkdown:
		return listMarkdown(eng, r)
	default:
		return listText(eng, r)
	}
}

// listSearch runs a full-text query against the snapshot registry.
func listSearch(eng *engine.Engine, r *output.Renderer, term string) error {
	matches, err := eng.GetStateStore().SearchSnapshots(term)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if r.EffectiveMode() == output.ModeJSON {
		infos := make([]output.SnapshotInfo, 0, len(matches))
		for _, s := range matches {
			infos = append(infos, snapshotInfoFromPersisted(s))
		}
		return r.JSON(output.ListOutput{
			Snapshots: infos,
			Summary:   output.ListSummary{TotalSnapshots: len(infos)},
		})
	}

	r.Header(1, fmt.Sprintf("Snapshots matching %q (%d)", term, len(matches)))
	for _, s := range matches {
		detail := s.Path
		if s.Description != "" {
			detail += "  " + s.Description
		}
		r.StatusLine(s.Name, "", detail)
	}
	return nil
}

func snapshotInfoFromPersisted(s *state.Snapshot) output.SnapshotInfo {
	return output.SnapshotInfo{
		Name:        s.Name,
		Path:        s.Path,
		FilePath:    s.FilePath,
		TargetTable: s.TargetTable,
		Strategy:    s.Strategy,
		Description: s.Description,
		ContentHash: s.ContentHash,
	}
}

// listText outputs snapshots in styled text format.
func listText(eng *engine.Engine, r *output.Renderer) error {
	snapshots := eng.GetSnapshots()
	graph := eng.GetGraph()

	r.Header(1, fmt.Sprintf("Snapshots (%d total)", len(snapshots)))

	sorted, err := graph.TopologicalSort()
	if err != nil {
		return fmt.Errorf("failed to sort snapshots: %w", err)
	}

	for i, node := range sorted {
		def := snapshots[node.ID]
		if def == nil {
			continue
		}

		deps := graph.GetParents(node.ID)
		depStr := ""
		if len(deps) > 0 {
			depStr = " <- " + strings.Join(deps, ", ")
		}
		r.Printf("  %2d. %-35s [%s]%s\n", i+1, def.Name, def.Config.Strategy, depStr)
	}

	return nil
}

// listMarkdown outputs snapshots in markdown format.
func listMarkdown(eng *engine.Engine, r *output.Renderer) error {
	snapshots := eng.GetSnapshots()
	graph := eng.GetGraph()
	store := eng.GetStateStore()

	r.Println(output.FormatHeader(1, fmt.Sprintf("Snapshots (%d total)", len(snapshots))))
	r.Println("")

	sorted, err := graph.TopologicalSort()
	if err != nil {
		return fmt.Errorf("failed to sort snapshots: %w", err)
	}

	for _, node := range sorted {
		def := snapshots[node.ID]
		if def == nil {
			continue
		}

		r.Println(output.FormatHeader(2, def.Name))

		r.Println(output.FormatKeyValue("Strategy", string(def.Config.Strategy)))
		r.Println(output.FormatKeyValue("Target Table", def.TargetTable.String()))
		r.Println(output.FormatKeyValue("File", def.FilePath))
		if def.Description != "" {
			r.Println(output.FormatKeyValue("Description", def.Description))
		}

		deps := graph.GetParents(node.ID)
		if len(deps) > 0 {
			r.Println(output.FormatKeyValue("Dependencies", strings.Join(deps, ", ")))
		}

		dependents := graph.GetChildren(node.ID)
		if len(dependents) > 0 {
			r.Println(output.FormatKeyValue("Dependents", strings.Join(dependents, ", ")))
		}

		if store != nil {
			if persisted, err := store.GetSnapshotByName(def.Name); err == nil && persisted != nil {
				if lastRun, err := store.GetLatestSnapshotRun(persisted.ID); err == nil && lastRun != nil {
					r.Println(output.FormatKeyValue("Last Run", string(lastRun.Status)))
					if lastRun.Stats.RowsInserted > 0 {
						r.Println(output.FormatKeyValue("Rows Inserted", fmt.Sprintf("%d", lastRun.Stats.RowsInserted)))
					}
				}
			}
		}

		r.Println("")
	}

	return nil
}

// listJSON outputs snapshots in JSON format.
func listJSON(eng *engine.Engine, r *output.Renderer) error {
	snapshots := eng.GetSnapshots()
	graph := eng.GetGraph()
	store := eng.GetStateStore()

	listOutput := output.ListOutput{
		Snapshots: make([]output.SnapshotInfo, 0, len(snapshots)),
		Summary: output.ListSummary{
			TotalSnapshots: len(snapshots),
			ByStatus:       make(map[string]int),
		},
	}

	sorted, err := graph.TopologicalSort()
	if err != nil {
		return fmt.Errorf("failed to sort snapshots: %w", err)
	}

	for _, node := range sorted {
		def := snapshots[node.ID]
		if def == nil {
			continue
		}

		absPath, _ := filepath.Abs(def.FilePath)
		info := output.SnapshotInfo{
			Name:         def.Name,
			Path:         def.Path,
			FilePath:     absPath,
			TargetTable:  def.TargetTable.String(),
			Strategy:     string(def.Config.Strategy),
			Description:  def.Description,
			Dependencies: graph.GetParents(node.ID),
			Dependents:   graph.GetChildren(node.ID),
		}

		if store != nil {
			if persisted, err := store.GetSnapshotByName(def.Name); err == nil && persisted != nil {
				info.ContentHash = persisted.ContentHash

				if lastRun, err := store.GetLatestSnapshotRun(persisted.ID); err == nil && lastRun != nil {
					var errPtr *string
					if lastRun.Error != "" {
						errPtr = &lastRun.Error
					}
					completedAt := ""
					if lastRun.CompletedAt != nil {
						completedAt = lastRun.CompletedAt.Format(time.RFC3339)
					}
					info.LastRun = &output.LastRunInfo{
						Status:       string(lastRun.Status),
						SourceRows:   lastRun.Stats.SourceRows,
						RowsInserted: lastRun.Stats.RowsInserted,
						RowsClosed:   lastRun.Stats.RowsClosed,
						ExecutionMS:  lastRun.ExecutionMS,
						CompletedAt:  completedAt,
						Error:        errPtr,
					}
					listOutput.Summary.ByStatus[string(lastRun.Status)]++
				} else {
					listOutput.Summary.ByStatus["never_run"]++
				}
			}
		}

		listOutput.Snapshots = append(listOutput.Snapshots, info)
	}

	return r.JSON(listOutput)
}
