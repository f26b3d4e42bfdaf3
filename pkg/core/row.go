package core

import (
	"sort"
	"strings"
)

// Row is a single record keyed by physical column name. Column names are
// stored exactly as the warehouse reports them; identifier folding happens
// at resolution time, not at storage time.
type Row map[string]Value

// Get returns the value stored under the exact column name.
func (r Row) Get(column string) (Value, bool) {
	v, ok := r[column]
	return v, ok
}

// Clone returns a shallow copy of the row. Values are immutable, so a
// shallow copy is a safe copy.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Columns returns the row's column names in sorted order. Iteration over
// the map itself is randomized; anything that renders or hashes a row goes
// through this instead.
func (r Row) Columns() []string {
	cols := make([]string, 0, len(r))
	for k := range r {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// TableRef identifies a warehouse table, optionally schema-qualified.
type TableRef struct {
	Schema string
	Name   string
}

// ParseTableRef splits "schema.name" into its parts. A bare name is
// returned with an empty schema.
func ParseTableRef(s string) TableRef {
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return TableRef{Schema: s[:i], Name: s[i+1:]}
	}
	return TableRef{Name: s}
}

// String renders the reference in schema.name form.
func (t TableRef) String() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}
