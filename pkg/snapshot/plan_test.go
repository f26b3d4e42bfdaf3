package snapshot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftlake-labs/driftlake/pkg/core"
)

// The fixtures follow one shape throughout: a people relation with columns
// id, first_name, some_date tracked by a timestamp snapshot on id, plus
// variants for composite keys and quoted identifiers.

var (
	day0 = time.Date(2019, 12, 31, 0, 0, 0, 0, time.UTC)
	day1 = time.Date(2020, 1, 15, 0, 0, 0, 0, time.UTC)
	run1 = time.Date(2020, 6, 1, 12, 0, 0, 0, time.UTC)
	run2 = time.Date(2020, 6, 2, 12, 0, 0, 0, time.UTC)
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	v, err := core.ParseTimestamp(s)
	require.NoError(t, err)
	return v.Time()
}

func person(id int64, name string, updated time.Time) core.Row {
	return core.Row{
		"id":         core.IntValue(id),
		"first_name": core.TextValue(name),
		"some_date":  core.TimestampValue(updated),
	}
}

func peopleSource(rows ...core.Row) Relation {
	return Relation{Columns: []string{"id", "first_name", "some_date"}, Rows: rows}
}

func fivePeople() Relation {
	return peopleSource(
		person(1, "Easton", day0),
		person(2, "Lillian", day0),
		person(3, "Jeremiah", day0),
		person(4, "Nolan", day0),
		person(5, "Hannah", day0),
	)
}

func timestampConfig() Config {
	return Config{
		Name:      "people",
		UniqueKey: []string{"id"},
		Strategy:  StrategyTimestamp,
		UpdatedAt: "some_date",
	}
}

// applyPlan executes a plan against an in-memory relation with exactly the
// semantics the warehouse layer promises: close-outs stamp the single open
// row matching the key, inserts append. It fails the test if a close-out
// matches zero or several open rows.
func applyPlan(t *testing.T, cfg Config, current Relation, plan *Plan) Relation {
	t.Helper()

	sentinel, err := cfg.sentinel()
	require.NoError(t, err)

	out := Relation{
		Columns: append([]string{}, current.Columns...),
		Rows:    append([]core.Row{}, current.Rows...),
	}
	if plan.CreateTable {
		out.Columns = append([]string{}, plan.Columns...)
	}
	if plan.AddDeletedColumn {
		out.Columns = append(out.Columns, ColIsDeleted)
	}

	for _, op := range plan.Ops {
		switch o := op.(type) {
		case CloseOut:
			matched := false
			for i, row := range out.Rows {
				if !isOpen(row[ColValidTo], sentinel) {
					continue
				}
				hit := true
				for col, want := range o.Key {
					eq, err := core.Equal(row[col], want)
					require.NoError(t, err)
					if !eq {
						hit = false
						break
					}
				}
				if hit {
					require.False(t, matched, "close-out matched more than one open row")
					closed := row.Clone()
					closed[ColValidTo] = o.ValidTo
					out.Rows[i] = closed
					matched = true
				}
			}
			require.True(t, matched, "close-out matched no open row")
		case Insert:
			out.Rows = append(out.Rows, o.Row.Clone())
		}
	}
	return out
}

func openRows(t *testing.T, cfg Config, rel Relation) []core.Row {
	t.Helper()
	sentinel, err := cfg.sentinel()
	require.NoError(t, err)
	var out []core.Row
	for _, row := range rel.Rows {
		if isOpen(row[ColValidTo], sentinel) {
			out = append(out, row)
		}
	}
	return out
}

func rowsWhere(t *testing.T, rel Relation, col string, want core.Value) []core.Row {
	t.Helper()
	var out []core.Row
	for _, row := range rel.Rows {
		eq, err := core.Equal(row[col], want)
		require.NoError(t, err)
		if eq {
			out = append(out, row)
		}
	}
	return out
}

func TestMergeInitial(t *testing.T) {
	cfg := timestampConfig()

	plan, err := Merge(cfg, fivePeople(), Relation{}, run1, core.FoldPreserve)
	require.NoError(t, err)

	assert.True(t, plan.CreateTable)
	assert.Equal(t, []string{"id", "first_name", "some_date", ColScdID, ColUpdatedAt, ColValidFrom, ColValidTo}, plan.Columns)
	assert.Len(t, plan.Ops, 5)
	assert.Equal(t, int64(5), plan.Stats.SourceRows)
	assert.Equal(t, int64(5), plan.Stats.RowsInserted)
	assert.Equal(t, int64(0), plan.Stats.RowsClosed)

	table := applyPlan(t, cfg, Relation{}, plan)
	assert.Len(t, openRows(t, cfg, table), 5)

	for _, row := range table.Rows {
		// timestamp strategy opens rows at the source's own instant
		assert.Equal(t, core.TimestampValue(day0), row[ColValidFrom])
		assert.Equal(t, core.TimestampValue(day0), row[ColUpdatedAt])
		assert.True(t, row[ColValidTo].IsNull())
		assert.Len(t, row[ColScdID].Text(), 32)
	}
}

func TestMergeIdempotent(t *testing.T) {
	cfg := timestampConfig()

	plan, err := Merge(cfg, fivePeople(), Relation{}, run1, core.FoldPreserve)
	require.NoError(t, err)
	table := applyPlan(t, cfg, Relation{}, plan)

	again, err := Merge(cfg, fivePeople(), table, run2, core.FoldPreserve)
	require.NoError(t, err)
	assert.Empty(t, again.Ops, "re-running an unchanged source must be a no-op")
	assert.False(t, again.CreateTable)
	assert.Equal(t, int64(5), again.Stats.SourceRows)
	assert.Equal(t, int64(0), again.Stats.RowsInserted)
	assert.Equal(t, int64(0), again.Stats.RowsClosed)
}

func TestMergeTimestampUpdate(t *testing.T) {
	cfg := timestampConfig()

	plan, err := Merge(cfg, fivePeople(), Relation{}, run1, core.FoldPreserve)
	require.NoError(t, err)
	table := applyPlan(t, cfg, Relation{}, plan)

	// Easton gets a new name and a bumped updated_at
	source := peopleSource(
		person(1, "Easton Updated", day1),
		person(2, "Lillian", day0),
		person(3, "Jeremiah", day0),
		person(4, "Nolan", day0),
		person(5, "Hannah", day0),
	)

	plan, err = Merge(cfg, source, table, run2, core.FoldPreserve)
	require.NoError(t, err)
	require.Len(t, plan.Ops, 2)

	closeOp, ok := plan.Ops[0].(CloseOut)
	require.True(t, ok, "the close-out must precede the insert")
	assert.Equal(t, core.TimestampValue(day1), closeOp.ValidTo, "superseded row closes at the new row's valid_from")

	insertOp, ok := plan.Ops[1].(Insert)
	require.True(t, ok)
	assert.Equal(t, core.TextValue("Easton Updated"), insertOp.Row["first_name"])
	assert.Equal(t, core.TimestampValue(day1), insertOp.Row[ColValidFrom])

	table = applyPlan(t, cfg, table, plan)
	assert.Len(t, table.Rows, 6)
	assert.Len(t, openRows(t, cfg, table), 5)

	// history for id=1: the old version is closed, the new one is open
	versions := rowsWhere(t, table, "id", core.IntValue(1))
	require.Len(t, versions, 2)
	for _, v := range versions {
		if v[ColValidTo].IsNull() {
			assert.Equal(t, core.TextValue("Easton Updated"), v["first_name"])
		} else {
			assert.Equal(t, core.TextValue("Easton"), v["first_name"])
			assert.Equal(t, core.TimestampValue(day1), v[ColValidTo])
		}
	}
}

func TestMergeTimestampRequiresStrictlyNewer(t *testing.T) {
	cfg := timestampConfig()

	plan, err := Merge(cfg, fivePeople(), Relation{}, run1, core.FoldPreserve)
	require.NoError(t, err)
	table := applyPlan(t, cfg, Relation{}, plan)

	tests := []struct {
		name string
		when time.Time
	}{
		{name: "equal updated_at is not a change", when: day0},
		{name: "older updated_at is not a change", when: day0.Add(-24 * time.Hour)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := peopleSource(
				person(1, "Different Name", tt.when),
				person(2, "Lillian", day0),
				person(3, "Jeremiah", day0),
				person(4, "Nolan", day0),
				person(5, "Hannah", day0),
			)
			plan, err := Merge(cfg, source, table, run2, core.FoldPreserve)
			require.NoError(t, err)
			assert.Empty(t, plan.Ops)
		})
	}
}

func TestMergeNewIdentity(t *testing.T) {
	cfg := timestampConfig()

	plan, err := Merge(cfg, fivePeople(), Relation{}, run1, core.FoldPreserve)
	require.NoError(t, err)
	table := applyPlan(t, cfg, Relation{}, plan)

	source := fivePeople()
	source.Rows = append(source.Rows, person(6, "Quinn", day1))

	plan, err = Merge(cfg, source, table, run2, core.FoldPreserve)
	require.NoError(t, err)
	require.Len(t, plan.Ops, 1)
	insertOp, ok := plan.Ops[0].(Insert)
	require.True(t, ok)
	assert.Equal(t, core.IntValue(6), insertOp.Row["id"])
	assert.Equal(t, int64(0), plan.Stats.RowsClosed)
}

func TestMergeCheckStrategy(t *testing.T) {
	cfg := Config{
		Name:      "people",
		UniqueKey: []string{"id"},
		Strategy:  StrategyCheck,
		CheckCols: []string{"first_name"},
	}

	plan, err := Merge(cfg, fivePeople(), Relation{}, run1, core.FoldPreserve)
	require.NoError(t, err)
	table := applyPlan(t, cfg, Relation{}, plan)

	// the check strategy has no per-row instant: rows open at the run time
	for _, row := range table.Rows {
		assert.Equal(t, core.TimestampValue(run1), row[ColValidFrom])
		assert.Equal(t, core.TimestampValue(run1), row[ColUpdatedAt])
	}

	t.Run("tracked column change versions the row", func(t *testing.T) {
		source := peopleSource(
			person(1, "Easton Renamed", day0),
			person(2, "Lillian", day0),
			person(3, "Jeremiah", day0),
			person(4, "Nolan", day0),
			person(5, "Hannah", day0),
		)
		plan, err := Merge(cfg, source, table, run2, core.FoldPreserve)
		require.NoError(t, err)
		require.Len(t, plan.Ops, 2)

		closeOp := plan.Ops[0].(CloseOut)
		assert.Equal(t, core.TimestampValue(run2), closeOp.ValidTo)
		insertOp := plan.Ops[1].(Insert)
		assert.Equal(t, core.TimestampValue(run2), insertOp.Row[ColValidFrom])
	})

	t.Run("untracked column change is invisible", func(t *testing.T) {
		source := peopleSource(
			person(1, "Easton", day1), // some_date moved, first_name did not
			person(2, "Lillian", day0),
			person(3, "Jeremiah", day0),
			person(4, "Nolan", day0),
			person(5, "Hannah", day0),
		)
		plan, err := Merge(cfg, source, table, run2, core.FoldPreserve)
		require.NoError(t, err)
		assert.Empty(t, plan.Ops)
	})

	t.Run("null to value counts as a change", func(t *testing.T) {
		src := fivePeople()
		src.Rows[0] = core.Row{
			"id":         core.IntValue(1),
			"first_name": core.NullValue(),
			"some_date":  core.TimestampValue(day0),
		}
		plan, err := Merge(cfg, src, table, run2, core.FoldPreserve)
		require.NoError(t, err)
		assert.Len(t, plan.Ops, 2)
	})
}

func TestMergeCheckAll(t *testing.T) {
	cfg := Config{
		Name:      "people",
		UniqueKey: []string{"id"},
		Strategy:  StrategyCheck,
		CheckAll:  true,
	}

	plan, err := Merge(cfg, fivePeople(), Relation{}, run1, core.FoldPreserve)
	require.NoError(t, err)
	table := applyPlan(t, cfg, Relation{}, plan)

	// metadata columns differ between runs but must not register as change
	plan, err = Merge(cfg, fivePeople(), table, run2, core.FoldPreserve)
	require.NoError(t, err)
	assert.Empty(t, plan.Ops)

	// any source column counts
	source := peopleSource(
		person(1, "Easton", day1),
		person(2, "Lillian", day0),
		person(3, "Jeremiah", day0),
		person(4, "Nolan", day0),
		person(5, "Hannah", day0),
	)
	plan, err = Merge(cfg, source, table, run2, core.FoldPreserve)
	require.NoError(t, err)
	assert.Len(t, plan.Ops, 2)
}

func TestMergeHardDeleteIgnore(t *testing.T) {
	cfg := timestampConfig() // ignore is the default policy

	plan, err := Merge(cfg, fivePeople(), Relation{}, run1, core.FoldPreserve)
	require.NoError(t, err)
	table := applyPlan(t, cfg, Relation{}, plan)

	source := peopleSource(
		person(2, "Lillian", day0),
		person(3, "Jeremiah", day0),
		person(4, "Nolan", day0),
		person(5, "Hannah", day0),
	)
	plan, err = Merge(cfg, source, table, run2, core.FoldPreserve)
	require.NoError(t, err)
	assert.Empty(t, plan.Ops, "a vanished record is left open under ignore")

	table = applyPlan(t, cfg, table, plan)
	assert.Len(t, openRows(t, cfg, table), 5)
}

func TestMergeHardDeleteInvalidate(t *testing.T) {
	cfg := timestampConfig()
	cfg.HardDeletes = HardDeleteInvalidate

	plan, err := Merge(cfg, fivePeople(), Relation{}, run1, core.FoldPreserve)
	require.NoError(t, err)
	table := applyPlan(t, cfg, Relation{}, plan)

	source := peopleSource(
		person(2, "Lillian", day0),
		person(3, "Jeremiah", day0),
		person(4, "Nolan", day0),
		person(5, "Hannah", day0),
	)
	plan, err = Merge(cfg, source, table, run2, core.FoldPreserve)
	require.NoError(t, err)
	require.Len(t, plan.Ops, 1)

	closeOp, ok := plan.Ops[0].(CloseOut)
	require.True(t, ok)
	assert.Equal(t, core.TimestampValue(run2), closeOp.ValidTo, "invalidated rows close at the run timestamp")
	assert.Equal(t, int64(1), plan.Stats.RowsClosed)
	assert.Equal(t, int64(0), plan.Stats.RowsInserted)

	table = applyPlan(t, cfg, table, plan)
	assert.Len(t, table.Rows, 5, "invalidate adds no rows")
	assert.Len(t, openRows(t, cfg, table), 4)

	// the closed record stays closed on the next run
	plan, err = Merge(cfg, source, table, run2.Add(time.Hour), core.FoldPreserve)
	require.NoError(t, err)
	assert.Empty(t, plan.Ops)
}

func TestMergeHardDeleteNewRecord(t *testing.T) {
	cfg := timestampConfig()
	cfg.HardDeletes = HardDeleteNewRecord

	plan, err := Merge(cfg, fivePeople(), Relation{}, run1, core.FoldPreserve)
	require.NoError(t, err)
	require.Contains(t, plan.Columns, ColIsDeleted)
	table := applyPlan(t, cfg, Relation{}, plan)

	// every live row carries the False marker
	assert.Len(t, rowsWhere(t, table, ColIsDeleted, core.TextValue(DeletedFalse)), 5)

	// Easton disappears
	source := peopleSource(
		person(2, "Lillian", day0),
		person(3, "Jeremiah", day0),
		person(4, "Nolan", day0),
		person(5, "Hannah", day0),
	)
	plan, err = Merge(cfg, source, table, run2, core.FoldPreserve)
	require.NoError(t, err)
	require.Len(t, plan.Ops, 2)
	assert.Equal(t, int64(1), plan.Stats.RowsClosed)
	assert.Equal(t, int64(1), plan.Stats.RowsInserted)
	assert.Equal(t, int64(1), plan.Stats.RowsTombstoned)

	table = applyPlan(t, cfg, table, plan)
	assert.Len(t, table.Rows, 6)

	tombstones := rowsWhere(t, table, ColIsDeleted, core.TextValue(DeletedTrue))
	require.Len(t, tombstones, 1)
	tomb := tombstones[0]
	// the marker carries the record's final values
	assert.Equal(t, core.IntValue(1), tomb["id"])
	assert.Equal(t, core.TextValue("Easton"), tomb["first_name"])
	assert.Equal(t, core.TimestampValue(day0), tomb["some_date"])
	// opened at the run timestamp, still open
	assert.Equal(t, core.TimestampValue(run2), tomb[ColValidFrom])
	assert.Equal(t, core.TimestampValue(run2), tomb[ColUpdatedAt])
	assert.True(t, tomb[ColValidTo].IsNull())

	// the superseded row is closed and still marked False
	closed := 0
	for _, row := range rowsWhere(t, table, "id", core.IntValue(1)) {
		if !row[ColValidTo].IsNull() {
			closed++
			assert.Equal(t, core.TextValue(DeletedFalse), row[ColIsDeleted])
		}
	}
	assert.Equal(t, 1, closed)

	// still gone on the next run: nothing further happens
	plan, err = Merge(cfg, source, table, run2.Add(time.Hour), core.FoldPreserve)
	require.NoError(t, err)
	assert.Empty(t, plan.Ops, "an already tombstoned record must not tombstone again")
}

func TestMergeResurrection(t *testing.T) {
	cfg := timestampConfig()
	cfg.HardDeletes = HardDeleteNewRecord

	plan, err := Merge(cfg, fivePeople(), Relation{}, run1, core.FoldPreserve)
	require.NoError(t, err)
	table := applyPlan(t, cfg, Relation{}, plan)

	// Lillian disappears
	source := peopleSource(
		person(1, "Easton", day0),
		person(3, "Jeremiah", day0),
		person(4, "Nolan", day0),
		person(5, "Hannah", day0),
	)
	plan, err = Merge(cfg, source, table, run2, core.FoldPreserve)
	require.NoError(t, err)
	table = applyPlan(t, cfg, table, plan)

	// and comes back with a newer updated_at
	source.Rows = append(source.Rows, person(2, "Lillian", day1))
	plan, err = Merge(cfg, source, table, run2.Add(time.Hour), core.FoldPreserve)
	require.NoError(t, err)
	require.Len(t, plan.Ops, 2)

	closeOp, ok := plan.Ops[0].(CloseOut)
	require.True(t, ok)
	assert.Equal(t, core.TimestampValue(day1), closeOp.ValidTo, "the tombstone is superseded at the new row's valid_from")

	table = applyPlan(t, cfg, table, plan)

	versions := rowsWhere(t, table, "id", core.IntValue(2))
	assert.Len(t, versions, 3, "original, tombstone, and resurrected row")

	// exactly one open row remains for the identity and it is live
	var open []core.Row
	for _, row := range versions {
		if row[ColValidTo].IsNull() {
			open = append(open, row)
		}
	}
	require.Len(t, open, 1)
	assert.Equal(t, core.TextValue(DeletedFalse), open[0][ColIsDeleted])
	assert.Equal(t, core.TimestampValue(day1), open[0][ColValidFrom])
}

func TestMergeResurrectionIgnoresTimestampGuard(t *testing.T) {
	// a tombstoned record returning with an updated_at older than the
	// tombstone's bookkeeping must still resurrect
	cfg := timestampConfig()
	cfg.HardDeletes = HardDeleteNewRecord

	plan, err := Merge(cfg, fivePeople(), Relation{}, run1, core.FoldPreserve)
	require.NoError(t, err)
	table := applyPlan(t, cfg, Relation{}, plan)

	source := peopleSource(
		person(1, "Easton", day0),
		person(3, "Jeremiah", day0),
		person(4, "Nolan", day0),
		person(5, "Hannah", day0),
	)
	plan, err = Merge(cfg, source, table, run2, core.FoldPreserve)
	require.NoError(t, err)
	table = applyPlan(t, cfg, table, plan)

	// same old updated_at as before the delete
	source.Rows = append(source.Rows, person(2, "Lillian", day0))
	plan, err = Merge(cfg, source, table, run2.Add(time.Hour), core.FoldPreserve)
	require.NoError(t, err)
	assert.Len(t, plan.Ops, 2, "presence beats the timestamp comparison for tombstoned records")
}

func TestMergeReappearAfterInvalidate(t *testing.T) {
	cfg := timestampConfig()
	cfg.HardDeletes = HardDeleteInvalidate

	plan, err := Merge(cfg, fivePeople(), Relation{}, run1, core.FoldPreserve)
	require.NoError(t, err)
	table := applyPlan(t, cfg, Relation{}, plan)

	source := peopleSource(
		person(2, "Lillian", day0),
		person(3, "Jeremiah", day0),
		person(4, "Nolan", day0),
		person(5, "Hannah", day0),
	)
	plan, err = Merge(cfg, source, table, run2, core.FoldPreserve)
	require.NoError(t, err)
	table = applyPlan(t, cfg, table, plan)

	// id=1 returns; with no open row it is treated as a new identity
	source.Rows = append(source.Rows, person(1, "Easton", day1))
	plan, err = Merge(cfg, source, table, run2.Add(time.Hour), core.FoldPreserve)
	require.NoError(t, err)
	require.Len(t, plan.Ops, 1)
	_, ok := plan.Ops[0].(Insert)
	assert.True(t, ok)

	table = applyPlan(t, cfg, table, plan)
	assert.Len(t, rowsWhere(t, table, "id", core.IntValue(1)), 2)
	assert.Len(t, openRows(t, cfg, table), 5)
}

func TestMergeSentinel(t *testing.T) {
	cfg := timestampConfig()
	cfg.HardDeletes = HardDeleteNewRecord
	cfg.ValidToCurrent = "9999-12-31 23:59:59"
	sentinel := core.TimestampValue(mustTime(t, "9999-12-31 23:59:59"))

	plan, err := Merge(cfg, fivePeople(), Relation{}, run1, core.FoldPreserve)
	require.NoError(t, err)
	table := applyPlan(t, cfg, Relation{}, plan)

	// open rows carry the sentinel, never NULL
	for _, row := range table.Rows {
		assert.Equal(t, sentinel, row[ColValidTo])
	}

	// update: the superseded row closes at a real bound, not the sentinel
	source := peopleSource(
		person(1, "Easton Updated", day1),
		person(2, "Lillian", day0),
		person(3, "Jeremiah", day0),
		person(4, "Nolan", day0),
		person(5, "Hannah", day0),
	)
	plan, err = Merge(cfg, source, table, run2, core.FoldPreserve)
	require.NoError(t, err)
	table = applyPlan(t, cfg, table, plan)

	for _, row := range rowsWhere(t, table, "id", core.IntValue(1)) {
		if row["first_name"].Text() == "Easton" {
			assert.Equal(t, core.TimestampValue(day1), row[ColValidTo])
		} else {
			assert.Equal(t, sentinel, row[ColValidTo])
		}
	}

	// delete: the marker is open via the sentinel, the closed row is not
	source = peopleSource(
		person(1, "Easton Updated", day1),
		person(3, "Jeremiah", day0),
		person(4, "Nolan", day0),
		person(5, "Hannah", day0),
	)
	plan, err = Merge(cfg, source, table, run2.Add(time.Hour), core.FoldPreserve)
	require.NoError(t, err)
	table = applyPlan(t, cfg, table, plan)

	tombstones := rowsWhere(t, table, ColIsDeleted, core.TextValue(DeletedTrue))
	require.Len(t, tombstones, 1)
	assert.Equal(t, sentinel, tombstones[0][ColValidTo])

	// no NULL bounds anywhere in this configuration
	for _, row := range table.Rows {
		assert.False(t, row[ColValidTo].IsNull())
	}
	assert.Len(t, openRows(t, cfg, table), 5)

	// idempotence holds under the sentinel representation too
	plan, err = Merge(cfg, source, table, run2.Add(2*time.Hour), core.FoldPreserve)
	require.NoError(t, err)
	assert.Empty(t, plan.Ops)
}

func TestMergeCompositeKey(t *testing.T) {
	cfg := Config{
		Name:      "sales",
		UniqueKey: []string{"region", "product_id"},
		Strategy:  StrategyTimestamp,
		UpdatedAt: "some_date",
	}

	sale := func(region, product string, sales int64, updated time.Time) core.Row {
		return core.Row{
			"region":     core.TextValue(region),
			"product_id": core.TextValue(product),
			"sales":      core.IntValue(sales),
			"some_date":  core.TimestampValue(updated),
		}
	}
	sourceRel := func(rows ...core.Row) Relation {
		return Relation{Columns: []string{"region", "product_id", "sales", "some_date"}, Rows: rows}
	}
	initial := sourceRel(
		sale("NA", "PROD001", 100, day0),
		sale("NA", "PROD002", 200, day0),
		sale("EU", "PROD001", 150, day0),
		sale("EU", "PROD002", 250, day0),
		sale("APAC", "PROD001", 120, day0),
	)

	plan, err := Merge(cfg, initial, Relation{}, run1, core.FoldPreserve)
	require.NoError(t, err)
	assert.Len(t, plan.Ops, 5)
	table := applyPlan(t, cfg, Relation{}, plan)

	// same product in another region is a distinct identity: update one
	updated := sourceRel(
		sale("NA", "PROD001", 110, day1),
		sale("NA", "PROD002", 200, day0),
		sale("EU", "PROD001", 150, day0),
		sale("EU", "PROD002", 250, day0),
		sale("APAC", "PROD001", 120, day0),
	)
	plan, err = Merge(cfg, updated, table, run2, core.FoldPreserve)
	require.NoError(t, err)
	require.Len(t, plan.Ops, 2)
	table = applyPlan(t, cfg, table, plan)

	assert.Len(t, table.Rows, 6)
	assert.Len(t, openRows(t, cfg, table), 5)

	naProd1 := 0
	for _, row := range rowsWhere(t, table, "region", core.TextValue("NA")) {
		eq, err := core.Equal(row["product_id"], core.TextValue("PROD001"))
		require.NoError(t, err)
		if eq {
			naProd1++
		}
	}
	assert.Equal(t, 2, naProd1)
}

func TestMergeTripleKey(t *testing.T) {
	cfg := Config{
		Name:      "sales",
		UniqueKey: []string{"region", "product_id", "sales"},
		Strategy:  StrategyTimestamp,
		UpdatedAt: "some_date",
	}
	source := Relation{
		Columns: []string{"region", "product_id", "sales", "some_date"},
		Rows: []core.Row{
			{"region": core.TextValue("NA"), "product_id": core.TextValue("PROD001"), "sales": core.IntValue(100), "some_date": core.TimestampValue(day0)},
			{"region": core.TextValue("NA"), "product_id": core.TextValue("PROD002"), "sales": core.IntValue(200), "some_date": core.TimestampValue(day0)},
		},
	}

	plan, err := Merge(cfg, source, Relation{}, run1, core.FoldPreserve)
	require.NoError(t, err)
	table := applyPlan(t, cfg, Relation{}, plan)

	// bumping updated_at without touching the key versions the same identity
	source.Rows[0] = core.Row{
		"region": core.TextValue("NA"), "product_id": core.TextValue("PROD001"),
		"sales": core.IntValue(100), "some_date": core.TimestampValue(day1),
	}
	plan, err = Merge(cfg, source, table, run2, core.FoldPreserve)
	require.NoError(t, err)
	assert.Len(t, plan.Ops, 2)
}

func TestMergeQuotedIdentifiers(t *testing.T) {
	// an upper-folding warehouse with quoted lowercase reserved keywords
	cfg := Config{
		Name:      "issues",
		UniqueKey: []string{"field_id", "issue_id", `"time"`},
		Strategy:  StrategyTimestamp,
		UpdatedAt: `"date"`,
	}

	issue := func(field, issueNo int64, at time.Time, user string, date time.Time) core.Row {
		return core.Row{
			"FIELD_ID": core.IntValue(field),
			"ISSUE_ID": core.IntValue(issueNo),
			"time":     core.TimestampValue(at),
			"user":     core.TextValue(user),
			"date":     core.DateValue(date),
		}
	}
	columns := []string{"FIELD_ID", "ISSUE_ID", "time", "user", "date"}
	source := Relation{Columns: columns, Rows: []core.Row{
		issue(1, 100, mustTime(t, "2019-12-31 10:00:00"), "alice", day0),
		issue(2, 101, mustTime(t, "2019-12-31 11:00:00"), "bob", day0),
	}}

	plan, err := Merge(cfg, source, Relation{}, run1, core.FoldUpper)
	require.NoError(t, err)
	assert.Len(t, plan.Ops, 2)
	table := applyPlan(t, cfg, Relation{}, plan)

	// a date-typed updated_at moves forward; the identity keeps its quoted columns
	source.Rows[0] = issue(1, 100, mustTime(t, "2019-12-31 10:00:00"), "alice_updated", day1)
	plan, err = Merge(cfg, source, table, run2, core.FoldUpper)
	require.NoError(t, err)
	require.Len(t, plan.Ops, 2)

	table = applyPlan(t, cfg, table, plan)
	open := 0
	for _, row := range rowsWhere(t, table, "FIELD_ID", core.IntValue(1)) {
		if row[ColValidTo].IsNull() {
			open++
			assert.Equal(t, core.TextValue("alice_updated"), row["user"])
		}
	}
	assert.Equal(t, 1, open)
}

func TestMergeErrors(t *testing.T) {
	base := fivePeople()

	t.Run("missing key column", func(t *testing.T) {
		cfg := timestampConfig()
		cfg.UniqueKey = []string{"customer_id"}
		_, err := Merge(cfg, base, Relation{}, run1, core.FoldPreserve)
		var cfgErr *ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
		assert.Contains(t, cfgErr.Error(), "customer_id")
	})

	t.Run("missing updated_at column", func(t *testing.T) {
		cfg := timestampConfig()
		cfg.UpdatedAt = "modified_on"
		_, err := Merge(cfg, base, Relation{}, run1, core.FoldPreserve)
		var cfgErr *ConfigurationError
		assert.ErrorAs(t, err, &cfgErr)
	})

	t.Run("missing check column", func(t *testing.T) {
		cfg := Config{Name: "people", UniqueKey: []string{"id"}, Strategy: StrategyCheck, CheckCols: []string{"nope"}}
		_, err := Merge(cfg, base, Relation{}, run1, core.FoldPreserve)
		var cfgErr *ConfigurationError
		assert.ErrorAs(t, err, &cfgErr)
	})

	t.Run("malformed quoted specifier", func(t *testing.T) {
		cfg := timestampConfig()
		cfg.UniqueKey = []string{`"id`}
		_, err := Merge(cfg, base, Relation{}, run1, core.FoldPreserve)
		var cfgErr *ConfigurationError
		assert.ErrorAs(t, err, &cfgErr)
	})

	t.Run("duplicate identity in source", func(t *testing.T) {
		cfg := timestampConfig()
		src := peopleSource(person(1, "Easton", day0), person(1, "Easton Twin", day0))
		_, err := Merge(cfg, src, Relation{}, run1, core.FoldPreserve)
		var ambErr *AmbiguousIdentityError
		require.ErrorAs(t, err, &ambErr)
		assert.Equal(t, "source", ambErr.Relation)
		assert.Contains(t, ambErr.Error(), "id=1")
	})

	t.Run("two open rows in snapshot", func(t *testing.T) {
		cfg := timestampConfig()
		table := Relation{
			Columns: []string{"id", "first_name", "some_date", ColScdID, ColUpdatedAt, ColValidFrom, ColValidTo},
			Rows: []core.Row{
				withMeta(person(1, "Easton", day0), day0, core.NullValue()),
				withMeta(person(1, "Easton Again", day1), day1, core.NullValue()),
			},
		}
		_, err := Merge(cfg, peopleSource(person(1, "Easton", day1)), table, run1, core.FoldPreserve)
		var ambErr *AmbiguousIdentityError
		require.ErrorAs(t, err, &ambErr)
		assert.Equal(t, "snapshot", ambErr.Relation)
	})

	t.Run("null key column", func(t *testing.T) {
		cfg := timestampConfig()
		src := peopleSource(core.Row{"id": core.NullValue(), "first_name": core.TextValue("x"), "some_date": core.TimestampValue(day0)})
		_, err := Merge(cfg, src, Relation{}, run1, core.FoldPreserve)
		var nullErr *NullKeyError
		assert.ErrorAs(t, err, &nullErr)
	})

	t.Run("text updated_at cannot open a row", func(t *testing.T) {
		cfg := timestampConfig()
		src := Relation{
			Columns: []string{"id", "first_name", "some_date"},
			Rows: []core.Row{{
				"id": core.IntValue(1), "first_name": core.TextValue("x"),
				"some_date": core.TextValue("2019-12-31"),
			}},
		}
		_, err := Merge(cfg, src, Relation{}, run1, core.FoldPreserve)
		var mismatch *core.TypeMismatchError
		assert.ErrorAs(t, err, &mismatch)
	})

	t.Run("null updated_at cannot be ordered", func(t *testing.T) {
		cfg := timestampConfig()
		table := Relation{
			Columns: []string{"id", "first_name", "some_date", ColScdID, ColUpdatedAt, ColValidFrom, ColValidTo},
			Rows:    []core.Row{withMeta(person(1, "Easton", day0), day0, core.NullValue())},
		}
		src := peopleSource(core.Row{"id": core.IntValue(1), "first_name": core.TextValue("x"), "some_date": core.NullValue()})
		_, err := Merge(cfg, src, table, run1, core.FoldPreserve)
		var mismatch *core.TypeMismatchError
		assert.ErrorAs(t, err, &mismatch)
	})

	t.Run("check column type flip", func(t *testing.T) {
		cfg := Config{Name: "people", UniqueKey: []string{"id"}, Strategy: StrategyCheck, CheckCols: []string{"first_name"}}
		plan, err := Merge(cfg, base, Relation{}, run1, core.FoldPreserve)
		require.NoError(t, err)
		table := applyPlan(t, cfg, Relation{}, plan)

		src := peopleSource(core.Row{"id": core.IntValue(1), "first_name": core.IntValue(7), "some_date": core.TimestampValue(day0)})
		_, err = Merge(cfg, src, table, run2, core.FoldPreserve)
		var mismatch *core.TypeMismatchError
		assert.ErrorAs(t, err, &mismatch)
	})
}

// withMeta decorates a source row with open-row metadata for handcrafted
// history tables.
func withMeta(row core.Row, validFrom time.Time, validTo core.Value) core.Row {
	out := row.Clone()
	out[ColScdID] = core.TextValue(scdID(row, []string{"id"}, core.TimestampValue(validFrom)))
	out[ColUpdatedAt] = core.TimestampValue(validFrom)
	out[ColValidFrom] = core.TimestampValue(validFrom)
	out[ColValidTo] = validTo
	return out
}

func TestMergeAddsDeletedColumnToExistingTable(t *testing.T) {
	cfg := timestampConfig()

	plan, err := Merge(cfg, fivePeople(), Relation{}, run1, core.FoldPreserve)
	require.NoError(t, err)
	table := applyPlan(t, cfg, Relation{}, plan)
	require.NotContains(t, table.Columns, ColIsDeleted)

	// the policy is switched on after the table already exists
	cfg.HardDeletes = HardDeleteNewRecord
	source := peopleSource(
		person(2, "Lillian", day0),
		person(3, "Jeremiah", day0),
		person(4, "Nolan", day0),
		person(5, "Hannah", day0),
	)
	plan, err = Merge(cfg, source, table, run2, core.FoldPreserve)
	require.NoError(t, err)
	assert.True(t, plan.AddDeletedColumn)
	require.Len(t, plan.Ops, 2)

	table = applyPlan(t, cfg, table, plan)
	assert.Len(t, rowsWhere(t, table, ColIsDeleted, core.TextValue(DeletedTrue)), 1)
}

func TestMergeDeterminism(t *testing.T) {
	cfg := timestampConfig()
	cfg.HardDeletes = HardDeleteNewRecord

	first, err := Merge(cfg, fivePeople(), Relation{}, run1, core.FoldPreserve)
	require.NoError(t, err)
	table := applyPlan(t, cfg, Relation{}, first)

	source := peopleSource(
		person(1, "Easton Updated", day1),
		person(3, "Jeremiah", day0),
		person(4, "Nolan", day0),
		person(5, "Hannah", day0),
		person(6, "Quinn", day1),
	)

	a, err := Merge(cfg, source, table, run2, core.FoldPreserve)
	require.NoError(t, err)
	b, err := Merge(cfg, source, table, run2, core.FoldPreserve)
	require.NoError(t, err)
	assert.Equal(t, a, b, "identical inputs must produce identical plans")
}

func TestMergeMixedRunStats(t *testing.T) {
	cfg := timestampConfig()
	cfg.HardDeletes = HardDeleteNewRecord

	plan, err := Merge(cfg, fivePeople(), Relation{}, run1, core.FoldPreserve)
	require.NoError(t, err)
	table := applyPlan(t, cfg, Relation{}, plan)

	// Easton updated, Quinn new, Hannah gone, the rest unchanged
	source := peopleSource(
		person(1, "Easton Updated", day1),
		person(2, "Lillian", day0),
		person(3, "Jeremiah", day0),
		person(4, "Nolan", day0),
		person(6, "Quinn", day1),
	)
	plan, err = Merge(cfg, source, table, run2, core.FoldPreserve)
	require.NoError(t, err)

	assert.Equal(t, int64(5), plan.Stats.SourceRows)
	assert.Equal(t, int64(3), plan.Stats.RowsInserted, "new version, new identity, tombstone")
	assert.Equal(t, int64(2), plan.Stats.RowsClosed, "superseded row and deleted row")
	assert.Equal(t, int64(1), plan.Stats.RowsTombstoned)
}
