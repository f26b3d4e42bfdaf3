package snapshot

import (
	"strings"
	"time"

	"github.com/driftlake-labs/driftlake/pkg/core"
)

// Relation is an in-memory result set: ordered physical column names plus
// rows keyed by those names. A zero Relation stands for a table that does
// not exist yet.
type Relation struct {
	Columns []string
	Rows    []core.Row
}

// Op is a single mutation of the history table. The only two mutations a
// merge ever produces are inserting a row and stamping dbt_valid_to onto
// the open row of one identity.
type Op interface{ op() }

// Insert adds one history row.
type Insert struct {
	Row core.Row
}

// CloseOut sets dbt_valid_to on the open row matching Key. Key holds the
// snapshot-side physical key columns and their values.
type CloseOut struct {
	Key     core.Row
	ValidTo core.Value
}

func (Insert) op()   {}
func (CloseOut) op() {}

// Plan is the complete, ordered set of mutations one merge produced. It is
// data: nothing has touched the warehouse until the plan is applied, and
// applying it in one transaction yields exactly the stats it carries.
type Plan struct {
	Snapshot string

	// CreateTable is set when no history table existed; the apply layer
	// creates it with Columns before running Ops.
	CreateTable bool

	// AddDeletedColumn is set when an existing table predates the
	// new_record policy and lacks the dbt_is_deleted column.
	AddDeletedColumn bool

	// Columns is the insert column order: source columns as the source
	// reported them, then the metadata columns.
	Columns []string

	Ops   []Op
	Stats core.SnapshotRunStats
}

func (p *Plan) insert(row core.Row) {
	p.Ops = append(p.Ops, Insert{Row: row})
	p.Stats.RowsInserted++
}

func (p *Plan) insertTombstone(row core.Row) {
	p.Ops = append(p.Ops, Insert{Row: row})
	p.Stats.RowsInserted++
	p.Stats.RowsTombstoned++
}

func (p *Plan) close(key core.Row, validTo core.Value) {
	p.Ops = append(p.Ops, CloseOut{Key: key, ValidTo: validTo})
	p.Stats.RowsClosed++
}

// merger carries one merge's resolved configuration: physical column names
// on both sides, the effective policy, and the run instant.
type merger struct {
	cfg      Config
	policy   HardDeletePolicy
	sentinel core.Value
	runAt    core.Value

	srcKey       []string
	srcUpdatedAt string
	checkPairs   [][2]string // source physical name, snapshot physical name ("" when absent)

	curKey       []string
	curUpdatedAt string
	curValidTo   string
	curIsDeleted string
}

// Merge computes the mutations that bring the history table in line with
// the source relation, per the snapshot's configuration. It is a pure
// function: same inputs, same plan, and it never touches the warehouse.
//
// Pass a zero current Relation when the history table does not exist yet.
func Merge(cfg Config, source, current Relation, runAt time.Time, folding core.FoldingPolicy) (*Plan, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sentinel, err := cfg.sentinel()
	if err != nil {
		return nil, err
	}

	m := &merger{
		cfg:      cfg,
		policy:   cfg.hardDeletes(),
		sentinel: sentinel,
		runAt:    core.TimestampValue(runAt),
	}
	if err := m.resolveSource(source, folding); err != nil {
		return nil, err
	}

	hasTable := len(current.Columns) > 0
	if hasTable {
		if err := m.resolveCurrent(current, folding); err != nil {
			return nil, err
		}
	}

	plan := &Plan{
		Snapshot:    cfg.Name,
		CreateTable: !hasTable,
		Columns:     m.insertColumns(source.Columns),
	}
	plan.Stats.SourceRows = int64(len(source.Rows))
	if hasTable && m.policy == HardDeleteNewRecord && m.curIsDeleted == "" {
		plan.AddDeletedColumn = true
		m.curIsDeleted = ColIsDeleted
	}

	// index the open row per identity
	open := make(map[string]core.Row)
	var openOrder []string
	for _, cur := range current.Rows {
		if !isOpen(cur[m.curValidTo], m.sentinel) {
			continue
		}
		id, err := identityOf(cur, m.curKey)
		if err != nil {
			return nil, err
		}
		if _, dup := open[id]; dup {
			return nil, &AmbiguousIdentityError{
				Identity: describeIdentity(cur, m.curKey),
				Relation: "snapshot",
			}
		}
		open[id] = cur
		openOrder = append(openOrder, id)
	}

	// single pass over the source, in source order
	seen := make(map[string]bool, len(source.Rows))
	for _, src := range source.Rows {
		id, err := identityOf(src, m.srcKey)
		if err != nil {
			return nil, err
		}
		if seen[id] {
			return nil, &AmbiguousIdentityError{
				Identity: describeIdentity(src, m.srcKey),
				Relation: "source",
			}
		}
		seen[id] = true

		cur, ok := open[id]
		if !ok {
			// new identity, or one whose history is fully closed
			vf, err := m.validFrom(src)
			if err != nil {
				return nil, err
			}
			plan.insert(m.newRow(src, source.Columns, vf))
			continue
		}

		if m.policy == HardDeleteNewRecord && isTombstone(cur, m.curIsDeleted) {
			// the record came back: supersede the deletion marker
			vf, err := m.validFrom(src)
			if err != nil {
				return nil, err
			}
			plan.close(m.keyOf(cur), vf)
			plan.insert(m.newRow(src, source.Columns, vf))
			continue
		}

		changed, err := m.changed(src, cur)
		if err != nil {
			return nil, err
		}
		if !changed {
			continue
		}
		vf, err := m.validFrom(src)
		if err != nil {
			return nil, err
		}
		plan.close(m.keyOf(cur), vf)
		plan.insert(m.newRow(src, source.Columns, vf))
	}

	// identities that disappeared from the source
	if m.policy != HardDeleteIgnore {
		for _, id := range openOrder {
			if seen[id] {
				continue
			}
			cur := open[id]
			if isTombstone(cur, m.curIsDeleted) {
				continue
			}
			plan.close(m.keyOf(cur), m.runAt)
			if m.policy == HardDeleteNewRecord {
				plan.insertTombstone(m.tombstoneRow(cur, source.Columns))
			}
		}
	}

	return plan, nil
}

// resolveSource maps the configured specifiers onto the source relation.
func (m *merger) resolveSource(source Relation, folding core.FoldingPolicy) error {
	res := newResolver(m.cfg.Name, "source", source.Columns, folding)

	var err error
	if m.srcKey, err = res.ResolveAll(m.cfg.UniqueKey); err != nil {
		return err
	}
	if m.cfg.Strategy == StrategyTimestamp {
		if m.srcUpdatedAt, err = res.Resolve(m.cfg.UpdatedAt); err != nil {
			return err
		}
		return nil
	}

	var checkSrc []string
	if m.cfg.CheckAll {
		for _, col := range source.Columns {
			if !IsMetaColumn(col) {
				checkSrc = append(checkSrc, col)
			}
		}
	} else {
		if checkSrc, err = res.ResolveAll(m.cfg.CheckCols); err != nil {
			return err
		}
	}
	m.checkPairs = make([][2]string, len(checkSrc))
	for i, col := range checkSrc {
		m.checkPairs[i] = [2]string{col, ""}
	}
	return nil
}

// resolveCurrent maps key, updated_at, and metadata columns onto the
// existing history table. Source and history normally share physical
// names; the lookup tolerates case drift between folding configurations.
func (m *merger) resolveCurrent(current Relation, folding core.FoldingPolicy) error {
	m.curValidTo = physicalLookup(current.Columns, ColValidTo)
	if m.curValidTo == "" {
		return &ConfigurationError{
			Snapshot: m.cfg.Name,
			Detail:   "existing table is not a snapshot table (no " + ColValidTo + " column)",
		}
	}
	m.curIsDeleted = physicalLookup(current.Columns, ColIsDeleted)

	m.curKey = make([]string, len(m.srcKey))
	for i, col := range m.srcKey {
		m.curKey[i] = physicalLookup(current.Columns, col)
		if m.curKey[i] == "" {
			return &ConfigurationError{
				Snapshot: m.cfg.Name,
				Detail:   "key column " + col + " not found in snapshot table",
			}
		}
	}

	if m.cfg.Strategy == StrategyTimestamp {
		m.curUpdatedAt = physicalLookup(current.Columns, m.srcUpdatedAt)
		if m.curUpdatedAt == "" {
			return &ConfigurationError{
				Snapshot: m.cfg.Name,
				Detail:   "updated_at column " + m.srcUpdatedAt + " not found in snapshot table",
			}
		}
		return nil
	}

	for i, pair := range m.checkPairs {
		m.checkPairs[i][1] = physicalLookup(current.Columns, pair[0])
	}
	return nil
}

// physicalLookup finds a physical column by name, preferring an exact
// match and falling back to the sole case-insensitive one.
func physicalLookup(columns []string, name string) string {
	for _, col := range columns {
		if col == name {
			return col
		}
	}
	var found string
	for _, col := range columns {
		if strings.EqualFold(col, name) {
			if found != "" {
				return ""
			}
			found = col
		}
	}
	return found
}

// insertColumns is the column order for inserted rows: the source columns
// as reported, then the metadata columns.
func (m *merger) insertColumns(sourceCols []string) []string {
	cols := make([]string, 0, len(sourceCols)+5)
	cols = append(cols, sourceCols...)
	cols = append(cols, ColScdID, ColUpdatedAt, ColValidFrom, ColValidTo)
	if m.policy == HardDeleteNewRecord {
		cols = append(cols, ColIsDeleted)
	}
	return cols
}

// openValue is what dbt_valid_to holds on an open row.
func (m *merger) openValue() core.Value {
	return m.sentinel
}

// updatedAtValue is what dbt_updated_at records for a fresh row.
func (m *merger) updatedAtValue(src core.Row) core.Value {
	if m.cfg.Strategy == StrategyTimestamp {
		return src[m.srcUpdatedAt]
	}
	return m.runAt
}

// newRow builds a fresh open history row from a source row.
func (m *merger) newRow(src core.Row, sourceCols []string, validFrom core.Value) core.Row {
	row := make(core.Row, len(sourceCols)+5)
	for _, col := range sourceCols {
		row[col] = src[col]
	}
	row[ColScdID] = core.TextValue(scdID(src, m.srcKey, validFrom))
	row[ColUpdatedAt] = m.updatedAtValue(src)
	row[ColValidFrom] = validFrom
	row[ColValidTo] = m.openValue()
	if m.policy == HardDeleteNewRecord {
		row[ColIsDeleted] = core.TextValue(DeletedFalse)
	}
	return row
}

// tombstoneRow builds the deletion marker for a vanished record, carrying
// the record's final values under the source column names.
func (m *merger) tombstoneRow(cur core.Row, sourceCols []string) core.Row {
	curCols := cur.Columns()
	row := make(core.Row, len(sourceCols)+5)
	for _, col := range sourceCols {
		phys := physicalLookup(curCols, col)
		if phys == "" {
			row[col] = core.NullValue()
			continue
		}
		row[col] = cur[phys]
	}
	row[ColScdID] = core.TextValue(scdID(cur, m.curKey, m.runAt))
	row[ColUpdatedAt] = m.runAt
	row[ColValidFrom] = m.runAt
	row[ColValidTo] = m.openValue()
	row[ColIsDeleted] = core.TextValue(DeletedTrue)
	return row
}

// keyOf extracts the snapshot-side key columns and values of a history row.
func (m *merger) keyOf(cur core.Row) core.Row {
	key := make(core.Row, len(m.curKey))
	for _, col := range m.curKey {
		key[col] = cur[col]
	}
	return key
}
