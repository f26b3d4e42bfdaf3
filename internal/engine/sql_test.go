package engine

import (
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"

	"github.com/driftlake-labs/driftlake/pkg/adapters/duckdb"
	"github.com/driftlake-labs/driftlake/pkg/core"
	"github.com/driftlake-labs/driftlake/pkg/snapshot"
)

func ts(s string) core.Value {
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		panic(err)
	}
	return core.TimestampValue(t)
}

// assertStatements golden-compares the rendered statements, one per line.
func assertStatements(t *testing.T, name string, stmts []string) {
	t.Helper()
	g := goldie.New(t)
	g.Assert(t, name, []byte(strings.Join(stmts, "\n")+"\n"))
}

func TestRenderPlan_FirstRun(t *testing.T) {
	r := &planRenderer{
		db:         duckdb.New(nil),
		table:      core.TableRef{Name: "orders"},
		validToCol: snapshot.ColValidTo,
		sentinel:   core.NullValue(),
	}

	source := snapshot.Relation{
		Columns: []string{"id", "name", "updated_at"},
		Rows: []core.Row{{
			"id":         core.IntValue(1),
			"name":       core.TextValue("widget"),
			"updated_at": ts("2024-01-01 00:00:00"),
		}},
	}

	plan := &snapshot.Plan{
		Snapshot:    "orders",
		CreateTable: true,
		Columns: []string{
			"id", "name", "updated_at",
			snapshot.ColScdID, snapshot.ColUpdatedAt, snapshot.ColValidFrom, snapshot.ColValidTo,
		},
		Ops: []snapshot.Op{
			snapshot.Insert{Row: core.Row{
				"id":                 core.IntValue(1),
				"name":               core.TextValue("widget"),
				"updated_at":         ts("2024-01-01 00:00:00"),
				snapshot.ColScdID:    core.TextValue("v1"),
				snapshot.ColUpdatedAt: ts("2024-01-01 00:00:00"),
				snapshot.ColValidFrom: ts("2024-01-01 00:00:00"),
				snapshot.ColValidTo:   core.NullValue(),
			}},
		},
	}

	stmts, err := r.renderPlan(plan, columnKinds(source))
	if err != nil {
		t.Fatalf("renderPlan failed: %v", err)
	}
	if len(stmts) != 2 {
		t.Fatalf("got %d statements, want 2", len(stmts))
	}
	assertStatements(t, "first_run", stmts)
}

func TestRenderPlan_Supersession(t *testing.T) {
	r := &planRenderer{
		db:         duckdb.New(nil),
		table:      core.TableRef{Schema: "main", Name: "orders"},
		validToCol: snapshot.ColValidTo,
		sentinel:   core.NullValue(),
	}

	source := snapshot.Relation{
		Columns: []string{"id", "name", "updated_at"},
		Rows: []core.Row{{
			"id":         core.IntValue(1),
			"name":       core.TextValue("widget xl"),
			"updated_at": ts("2024-02-01 00:00:00"),
		}},
	}

	plan := &snapshot.Plan{
		Snapshot: "orders",
		Columns: []string{
			"id", "name", "updated_at",
			snapshot.ColScdID, snapshot.ColUpdatedAt, snapshot.ColValidFrom, snapshot.ColValidTo,
		},
		Ops: []snapshot.Op{
			snapshot.CloseOut{
				Key:     core.Row{"id": core.IntValue(1)},
				ValidTo: ts("2024-02-01 00:00:00"),
			},
			snapshot.Insert{Row: core.Row{
				"id":                 core.IntValue(1),
				"name":               core.TextValue("widget xl"),
				"updated_at":         ts("2024-02-01 00:00:00"),
				snapshot.ColScdID:    core.TextValue("v2"),
				snapshot.ColUpdatedAt: ts("2024-02-01 00:00:00"),
				snapshot.ColValidFrom: ts("2024-02-01 00:00:00"),
				snapshot.ColValidTo:   core.NullValue(),
			}},
		},
	}

	stmts, err := r.renderPlan(plan, columnKinds(source))
	if err != nil {
		t.Fatalf("renderPlan failed: %v", err)
	}
	assertStatements(t, "supersession", stmts)
}

func TestRenderPlan_SentinelTombstone(t *testing.T) {
	r := &planRenderer{
		db:         duckdb.New(nil),
		table:      core.TableRef{Name: "orders"},
		validToCol: snapshot.ColValidTo,
		sentinel:   ts("9999-12-31 00:00:00"),
	}

	source := snapshot.Relation{
		Columns: []string{"id", "name", "updated_at"},
	}

	plan := &snapshot.Plan{
		Snapshot:         "orders",
		AddDeletedColumn: true,
		Columns: []string{
			"id", "name", "updated_at",
			snapshot.ColScdID, snapshot.ColUpdatedAt, snapshot.ColValidFrom, snapshot.ColValidTo,
			snapshot.ColIsDeleted,
		},
		Ops: []snapshot.Op{
			snapshot.CloseOut{
				Key:     core.Row{"id": core.IntValue(2)},
				ValidTo: ts("2024-03-01 00:00:00"),
			},
			snapshot.Insert{Row: core.Row{
				"id":                 core.IntValue(2),
				"name":               core.TextValue("gadget"),
				"updated_at":         core.NullValue(),
				snapshot.ColScdID:    core.TextValue("v3"),
				snapshot.ColUpdatedAt: ts("2024-03-01 00:00:00"),
				snapshot.ColValidFrom: ts("2024-03-01 00:00:00"),
				snapshot.ColValidTo:   ts("9999-12-31 00:00:00"),
				snapshot.ColIsDeleted: core.TextValue(snapshot.DeletedTrue),
			}},
		},
	}

	stmts, err := r.renderPlan(plan, columnKinds(source))
	if err != nil {
		t.Fatalf("renderPlan failed: %v", err)
	}
	assertStatements(t, "sentinel_tombstone", stmts)
}

func TestRenderPlan_CompositeKeyCloseOut(t *testing.T) {
	r := &planRenderer{
		db:         duckdb.New(nil),
		table:      core.TableRef{Name: "inventory"},
		validToCol: snapshot.ColValidTo,
		sentinel:   core.NullValue(),
	}

	plan := &snapshot.Plan{
		Snapshot: "inventory",
		Ops: []snapshot.Op{
			snapshot.CloseOut{
				Key: core.Row{
					"warehouse": core.TextValue("east"),
					"sku":       core.TextValue("A-1"),
				},
				ValidTo: ts("2024-04-01 00:00:00"),
			},
		},
	}

	stmts, err := r.renderPlan(plan, map[string]core.Kind{})
	if err != nil {
		t.Fatalf("renderPlan failed: %v", err)
	}
	want := `UPDATE "inventory" SET "dbt_valid_to" = TIMESTAMP '2024-04-01 00:00:00.000000' ` +
		`WHERE "sku" = 'A-1' AND "warehouse" = 'east' AND "dbt_valid_to" IS NULL`
	if stmts[0] != want {
		t.Errorf("closeOut =\n  %s\nwant\n  %s", stmts[0], want)
	}
}

func TestColumnKinds(t *testing.T) {
	rel := snapshot.Relation{
		Columns: []string{"id", "price", "note", "created"},
		Rows: []core.Row{
			{
				"id":      core.IntValue(1),
				"price":   core.NullValue(),
				"note":    core.NullValue(),
				"created": ts("2024-01-01 00:00:00"),
			},
			{
				"id":      core.IntValue(2),
				"price":   core.FloatValue(9.5),
				"note":    core.NullValue(),
				"created": ts("2024-01-02 00:00:00"),
			},
		},
	}

	kinds := columnKinds(rel)
	if kinds["id"] != core.KindInt {
		t.Errorf("id kind = %v, want int", kinds["id"])
	}
	// First non-null value wins, scanning all rows
	if kinds["price"] != core.KindFloat {
		t.Errorf("price kind = %v, want float", kinds["price"])
	}
	// All-null columns default to text
	if kinds["note"] != core.KindText {
		t.Errorf("note kind = %v, want text", kinds["note"])
	}
	if kinds["created"] != core.KindTimestamp {
		t.Errorf("created kind = %v, want timestamp", kinds["created"])
	}
	// Metadata columns have fixed kinds
	if kinds[snapshot.ColValidTo] != core.KindTimestamp {
		t.Errorf("%s kind = %v, want timestamp", snapshot.ColValidTo, kinds[snapshot.ColValidTo])
	}
}
