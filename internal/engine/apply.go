package engine

// apply.go - Reading relations and applying merge plans to the warehouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/driftlake-labs/driftlake/internal/loader"
	"github.com/driftlake-labs/driftlake/pkg/core"
	"github.com/driftlake-labs/driftlake/pkg/snapshot"
)

// mergeSnapshot runs one snapshot end to end: read the source and history
// relations, compute the merge plan, and apply it in one transaction.
func (e *Engine) mergeSnapshot(ctx context.Context, def *loader.Definition, sql string) (core.SnapshotRunStats, error) {
	source, err := e.queryRelation(ctx, sql)
	if err != nil {
		return core.SnapshotRunStats{}, fmt.Errorf("source query failed: %w", err)
	}

	current, err := e.readTable(ctx, def.TargetTable)
	if err != nil {
		return core.SnapshotRunStats{}, fmt.Errorf("failed to read snapshot table: %w", err)
	}

	runAt := time.Now().UTC()
	plan, err := snapshot.Merge(def.Config, source, current, runAt, e.db.Folding())
	if err != nil {
		return core.SnapshotRunStats{}, err
	}

	sentinel := core.NullValue()
	if def.Config.ValidToCurrent != "" {
		// Validated by Merge already; a parse failure here cannot happen.
		sentinel, err = core.ParseTimestamp(def.Config.ValidToCurrent)
		if err != nil {
			return core.SnapshotRunStats{}, err
		}
	}

	renderer := &planRenderer{
		db:         e.db,
		table:      def.TargetTable,
		validToCol: lookupColumn(current.Columns, snapshot.ColValidTo),
		sentinel:   sentinel,
	}
	stmts, err := renderer.renderPlan(plan, columnKinds(source))
	if err != nil {
		return core.SnapshotRunStats{}, err
	}
	if len(stmts) == 0 {
		return plan.Stats, nil
	}

	if err := e.db.ExecInTx(ctx, stmts); err != nil {
		return core.SnapshotRunStats{}, err
	}
	return plan.Stats, nil
}

// queryRelation executes a query and materializes the full result set.
func (e *Engine) queryRelation(ctx context.Context, query string) (snapshot.Relation, error) {
	rows, err := e.db.Query(ctx, query)
	if err != nil {
		return snapshot.Relation{}, err
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return snapshot.Relation{}, fmt.Errorf("failed to read result columns: %w", err)
	}

	rel := snapshot.Relation{Columns: columns}
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return snapshot.Relation{}, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(core.Row, len(columns))
		for i, col := range columns {
			row[col] = core.FromAny(values[i])
		}
		rel.Rows = append(rel.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return snapshot.Relation{}, fmt.Errorf("error iterating rows: %w", err)
	}
	return rel, nil
}

// readTable reads a full table, or returns a zero Relation when the table
// does not exist yet.
func (e *Engine) readTable(ctx context.Context, table core.TableRef) (snapshot.Relation, error) {
	exists, err := e.db.TableExists(ctx, table)
	if err != nil {
		return snapshot.Relation{}, err
	}
	if !exists {
		return snapshot.Relation{}, nil
	}
	return e.queryRelation(ctx, "SELECT * FROM "+qualifyTable(e.db, table))
}

// qualifyTable renders a quoted, optionally schema-qualified table name.
func qualifyTable(db core.Adapter, ref core.TableRef) string {
	if ref.Schema == "" {
		return db.QuoteIdent(ref.Name)
	}
	return db.QuoteIdent(ref.Schema) + "." + db.QuoteIdent(ref.Name)
}

// lookupColumn finds a physical column by name, preferring an exact match
// and falling back to a case-insensitive one.
func lookupColumn(columns []string, name string) string {
	for _, col := range columns {
		if col == name {
			return col
		}
	}
	for _, col := range columns {
		if strings.EqualFold(col, name) {
			return col
		}
	}
	return name
}
