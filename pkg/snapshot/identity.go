package snapshot

import (
	"fmt"
	"strings"

	"github.com/driftlake-labs/driftlake/pkg/core"
)

// specifier is a parsed identifier reference from a snapshot configuration.
type specifier struct {
	name   string
	quoted bool
}

// parseSpecifier splits an identifier specifier into its name and quoting
// form. A double-quoted specifier must be fully quoted, with embedded
// quotes doubled; anything else with a double quote in it is malformed.
func parseSpecifier(raw string) (specifier, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return specifier{}, fmt.Errorf("empty column reference")
	}
	if !strings.HasPrefix(s, `"`) {
		if strings.Contains(s, `"`) {
			return specifier{}, fmt.Errorf("malformed column reference %s: stray double quote", raw)
		}
		return specifier{name: s}, nil
	}
	if len(s) < 2 || !strings.HasSuffix(s, `"`) {
		return specifier{}, fmt.Errorf("malformed column reference %s: missing closing quote", raw)
	}
	inner := s[1 : len(s)-1]
	var b strings.Builder
	for i := 0; i < len(inner); i++ {
		if inner[i] != '"' {
			b.WriteByte(inner[i])
			continue
		}
		// a quote inside a quoted name must be doubled
		if i+1 >= len(inner) || inner[i+1] != '"' {
			return specifier{}, fmt.Errorf("malformed column reference %s: unescaped quote", raw)
		}
		b.WriteByte('"')
		i++
	}
	if b.Len() == 0 {
		return specifier{}, fmt.Errorf("malformed column reference %s: empty quoted name", raw)
	}
	return specifier{name: b.String(), quoted: true}, nil
}

// resolver maps identifier specifiers onto the physical columns of one
// relation, honoring the dialect's folding of unquoted names.
type resolver struct {
	snapshot string
	relation string
	columns  []string
	folding  core.FoldingPolicy
}

// newResolver builds a resolver over the given physical column names.
func newResolver(snapshotName, relationName string, columns []string, folding core.FoldingPolicy) *resolver {
	return &resolver{snapshot: snapshotName, relation: relationName, columns: columns, folding: folding}
}

// Resolve maps one specifier to a physical column name.
//
// Quoted specifiers match byte for byte. Unquoted specifiers are folded
// per the dialect: folding dialects then require an exact match of the
// folded name, while preserve dialects match case-insensitively and treat
// multiple candidates as ambiguous.
func (r *resolver) Resolve(raw string) (string, error) {
	spec, err := parseSpecifier(raw)
	if err != nil {
		return "", &ConfigurationError{Snapshot: r.snapshot, Detail: err.Error()}
	}

	if spec.quoted {
		for _, col := range r.columns {
			if col == spec.name {
				return col, nil
			}
		}
		return "", r.notFound(raw)
	}

	switch r.folding {
	case core.FoldUpper, core.FoldLower:
		want := r.folding.Apply(spec.name)
		for _, col := range r.columns {
			if col == want {
				return col, nil
			}
		}
		return "", r.notFound(raw)
	default:
		var matches []string
		for _, col := range r.columns {
			if strings.EqualFold(col, spec.name) {
				matches = append(matches, col)
			}
		}
		switch len(matches) {
		case 1:
			return matches[0], nil
		case 0:
			return "", r.notFound(raw)
		default:
			return "", &ConfigurationError{
				Snapshot: r.snapshot,
				Detail: fmt.Sprintf("column reference %s matches multiple %s columns (%s); quote the one you mean",
					raw, r.relation, strings.Join(matches, ", ")),
			}
		}
	}
}

// ResolveAll maps a list of specifiers, preserving order.
func (r *resolver) ResolveAll(raw []string) ([]string, error) {
	out := make([]string, 0, len(raw))
	for _, spec := range raw {
		col, err := r.Resolve(spec)
		if err != nil {
			return nil, err
		}
		out = append(out, col)
	}
	return out, nil
}

func (r *resolver) notFound(raw string) error {
	return &ConfigurationError{
		Snapshot: r.snapshot,
		Detail: fmt.Sprintf("column %s not found in %s relation (columns: %s)",
			raw, r.relation, strings.Join(r.columns, ", ")),
	}
}

// identityOf renders the key of one row. Key values are joined with an
// unlikely separator so composite keys cannot collide through
// concatenation. A NULL in any key column is a NullKeyError.
func identityOf(row core.Row, keyCols []string) (string, error) {
	var b strings.Builder
	for i, col := range keyCols {
		v, ok := row[col]
		if !ok || v.IsNull() {
			return "", &NullKeyError{Column: col}
		}
		if i > 0 {
			b.WriteByte(0x1f)
		}
		b.WriteString(v.String())
	}
	return b.String(), nil
}

// describeIdentity renders a key for error messages, column by column.
func describeIdentity(row core.Row, keyCols []string) string {
	parts := make([]string, 0, len(keyCols))
	for _, col := range keyCols {
		parts = append(parts, fmt.Sprintf("%s=%s", col, row[col]))
	}
	return strings.Join(parts, ", ")
}
