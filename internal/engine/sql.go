package engine

// sql.go - Rendering merge plans into dialect SQL

import (
	"fmt"
	"strings"

	"github.com/driftlake-labs/driftlake/pkg/core"
	"github.com/driftlake-labs/driftlake/pkg/snapshot"
)

// planRenderer turns one merge plan into the ordered SQL statements that
// apply it. All identifier quoting, literal rendering, and type mapping go
// through the adapter so the output is valid for the connected dialect.
type planRenderer struct {
	db    core.Adapter
	table core.TableRef

	// validToCol is the physical dbt_valid_to column on the target table.
	// Folding dialects may store it in their own case.
	validToCol string

	// sentinel is the open-row representation of dbt_valid_to. NULL unless
	// dbt_valid_to_current is configured.
	sentinel core.Value
}

// renderPlan produces the statements for one plan, in execution order:
// DDL first, then the row operations exactly as the plan ordered them.
func (r *planRenderer) renderPlan(plan *snapshot.Plan, kinds map[string]core.Kind) ([]string, error) {
	stmts := make([]string, 0, len(plan.Ops)+2)

	if plan.CreateTable {
		stmts = append(stmts, r.createTable(plan.Columns, kinds))
	}
	if plan.AddDeletedColumn {
		stmts = append(stmts, fmt.Sprintf(
			"ALTER TABLE %s ADD COLUMN %s %s",
			r.qualifiedTable(), r.db.QuoteIdent(snapshot.ColIsDeleted), r.db.SQLType(core.KindText),
		))
	}

	for _, op := range plan.Ops {
		switch o := op.(type) {
		case snapshot.Insert:
			stmts = append(stmts, r.insert(plan.Columns, o.Row))
		case snapshot.CloseOut:
			stmts = append(stmts, r.closeOut(o))
		default:
			return nil, fmt.Errorf("unknown plan operation %T", op)
		}
	}

	return stmts, nil
}

// createTable renders the history table DDL from the insert columns and
// their inferred kinds.
func (r *planRenderer) createTable(columns []string, kinds map[string]core.Kind) string {
	defs := make([]string, len(columns))
	for i, col := range columns {
		defs[i] = r.db.QuoteIdent(col) + " " + r.db.SQLType(columnKind(kinds, col))
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", r.qualifiedTable(), strings.Join(defs, ", "))
}

// insert renders one history row. Columns absent from the row insert NULL.
func (r *planRenderer) insert(columns []string, row core.Row) string {
	names := make([]string, len(columns))
	values := make([]string, len(columns))
	for i, col := range columns {
		names[i] = r.db.QuoteIdent(col)
		values[i] = r.db.Literal(row[col])
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		r.qualifiedTable(), strings.Join(names, ", "), strings.Join(values, ", "),
	)
}

// closeOut renders the UPDATE that stamps dbt_valid_to onto the open row of
// one identity. The predicate matches the key columns and the open-row
// representation, so closed history rows are never touched.
func (r *planRenderer) closeOut(op snapshot.CloseOut) string {
	conds := make([]string, 0, len(op.Key)+1)
	for _, col := range op.Key.Columns() {
		v := op.Key[col]
		if v.IsNull() {
			conds = append(conds, r.db.QuoteIdent(col)+" IS NULL")
			continue
		}
		conds = append(conds, r.db.QuoteIdent(col)+" = "+r.db.Literal(v))
	}
	conds = append(conds, r.openPredicate())

	return fmt.Sprintf(
		"UPDATE %s SET %s = %s WHERE %s",
		r.qualifiedTable(), r.db.QuoteIdent(r.validToCol), r.db.Literal(op.ValidTo),
		strings.Join(conds, " AND "),
	)
}

// openPredicate matches the dbt_valid_to representation of an open row:
// NULL always, plus the sentinel instant when one is configured.
func (r *planRenderer) openPredicate() string {
	col := r.db.QuoteIdent(r.validToCol)
	if r.sentinel.IsNull() {
		return col + " IS NULL"
	}
	return fmt.Sprintf("(%s = %s OR %s IS NULL)", col, r.db.Literal(r.sentinel), col)
}

func (r *planRenderer) qualifiedTable() string {
	return qualifyTable(r.db, r.table)
}

// columnKinds infers a column type per relation column from the first
// non-null value it carries. The metadata columns have fixed kinds.
func columnKinds(rel snapshot.Relation) map[string]core.Kind {
	kinds := make(map[string]core.Kind, len(rel.Columns)+5)
	for _, col := range rel.Columns {
		kinds[col] = core.KindText
		for _, row := range rel.Rows {
			if v, ok := row[col]; ok && !v.IsNull() {
				kinds[col] = v.Kind()
				break
			}
		}
	}
	kinds[snapshot.ColScdID] = core.KindText
	kinds[snapshot.ColUpdatedAt] = core.KindTimestamp
	kinds[snapshot.ColValidFrom] = core.KindTimestamp
	kinds[snapshot.ColValidTo] = core.KindTimestamp
	kinds[snapshot.ColIsDeleted] = core.KindText
	return kinds
}

// columnKind looks up a column's kind, tolerating case drift the same way
// the merge does, and defaults to text.
func columnKind(kinds map[string]core.Kind, col string) core.Kind {
	if k, ok := kinds[col]; ok {
		return k
	}
	for name, k := range kinds {
		if strings.EqualFold(name, col) {
			return k
		}
	}
	return core.KindText
}
