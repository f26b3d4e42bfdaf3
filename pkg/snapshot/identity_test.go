package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftlake-labs/driftlake/pkg/core"
)

func TestParseSpecifier(t *testing.T) {
	tests := []struct {
		name       string
		in         string
		wantName   string
		wantQuoted bool
		expectErr  bool
	}{
		{name: "bare name", in: "id", wantName: "id"},
		{name: "bare name with spaces trimmed", in: "  some_date ", wantName: "some_date"},
		{name: "quoted lowercase", in: `"time"`, wantName: "time", wantQuoted: true},
		{name: "quoted uppercase", in: `"EXPLICIT_TIME"`, wantName: "EXPLICIT_TIME", wantQuoted: true},
		{name: "quoted with escaped quote", in: `"odd""name"`, wantName: `odd"name`, wantQuoted: true},
		{name: "empty", in: "", expectErr: true},
		{name: "unterminated quote", in: `"time`, expectErr: true},
		{name: "stray closing quote", in: `time"`, expectErr: true},
		{name: "empty quoted", in: `""`, expectErr: true},
		{name: "unescaped inner quote", in: `"a"b"`, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSpecifier(tt.in)
			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, got.name)
			assert.Equal(t, tt.wantQuoted, got.quoted)
		})
	}
}

func TestResolverFoldUpper(t *testing.T) {
	// an upper-folding warehouse stores unquoted names in upper case and
	// quoted names verbatim
	columns := []string{"FIELD_ID", "ISSUE_ID", "time", "user", "date", "TIME_COL"}
	r := newResolver("snap", "source", columns, core.FoldUpper)

	tests := []struct {
		name      string
		spec      string
		want      string
		expectErr bool
	}{
		{name: "unquoted folds up", spec: "field_id", want: "FIELD_ID"},
		{name: "unquoted upper stays", spec: "TIME_COL", want: "TIME_COL"},
		{name: "mixed case folds up", spec: "Issue_Id", want: "ISSUE_ID"},
		{name: "quoted lowercase matches verbatim", spec: `"time"`, want: "time"},
		{name: "quoted date matches verbatim", spec: `"date"`, want: "date"},
		{name: "unquoted reference to quoted-lowercase column misses", spec: "user", expectErr: true},
		{name: "quoted wrong case misses", spec: `"FIELD_id"`, expectErr: true},
		{name: "absent column", spec: "nope", expectErr: true},
		{name: "malformed quote", spec: `"time`, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.spec)
			if tt.expectErr {
				var cfgErr *ConfigurationError
				require.ErrorAs(t, err, &cfgErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolverFoldLower(t *testing.T) {
	columns := []string{"id", "first_name", "Mixed"}
	r := newResolver("snap", "source", columns, core.FoldLower)

	got, err := r.Resolve("ID")
	require.NoError(t, err)
	assert.Equal(t, "id", got)

	got, err = r.Resolve(`"Mixed"`)
	require.NoError(t, err)
	assert.Equal(t, "Mixed", got)

	// unquoted folds to "mixed", which is not stored
	_, err = r.Resolve("Mixed")
	var cfgErr *ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestResolverFoldPreserve(t *testing.T) {
	r := newResolver("snap", "source", []string{"Id", "first_name"}, core.FoldPreserve)

	// unquoted matches case-insensitively
	got, err := r.Resolve("id")
	require.NoError(t, err)
	assert.Equal(t, "Id", got)

	// quoted still matches verbatim only
	_, err = r.Resolve(`"id"`)
	var cfgErr *ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)

	// two case-insensitive candidates are ambiguous
	amb := newResolver("snap", "source", []string{"Id", "ID"}, core.FoldPreserve)
	_, err = amb.Resolve("id")
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "multiple")
}

func TestIdentityOf(t *testing.T) {
	row := core.Row{
		"region":     core.TextValue("NA"),
		"product_id": core.TextValue("PROD001"),
		"sales":      core.IntValue(100),
	}

	one, err := identityOf(row, []string{"region", "product_id"})
	require.NoError(t, err)
	other, err := identityOf(row, []string{"product_id", "region"})
	require.NoError(t, err)
	assert.NotEqual(t, one, other, "key order is part of the identity rendering")

	// concatenation cannot collide across column boundaries
	a := core.Row{"x": core.TextValue("a"), "y": core.TextValue("b c")}
	b := core.Row{"x": core.TextValue("a b"), "y": core.TextValue("c")}
	idA, err := identityOf(a, []string{"x", "y"})
	require.NoError(t, err)
	idB, err := identityOf(b, []string{"x", "y"})
	require.NoError(t, err)
	assert.NotEqual(t, idA, idB)

	// NULL keys are untrackable
	_, err = identityOf(core.Row{"region": core.NullValue(), "product_id": core.TextValue("P")}, []string{"region", "product_id"})
	var nullErr *NullKeyError
	require.ErrorAs(t, err, &nullErr)
	assert.Equal(t, "region", nullErr.Column)

	// absent column behaves like NULL
	_, err = identityOf(core.Row{}, []string{"region"})
	assert.ErrorAs(t, err, &nullErr)
}

func TestScdIDStability(t *testing.T) {
	row := core.Row{"id": core.IntValue(1)}
	vf := core.TimestampValue(mustTime(t, "2019-12-31 00:00:00"))

	first := scdID(row, []string{"id"}, vf)
	second := scdID(row, []string{"id"}, vf)
	assert.Equal(t, first, second, "same key and bound must hash identically across runs")
	assert.Len(t, first, 32)

	later := scdID(row, []string{"id"}, core.TimestampValue(mustTime(t, "2020-01-15 00:00:00")))
	assert.NotEqual(t, first, later, "a new version gets a new id")

	otherKey := scdID(core.Row{"id": core.IntValue(2)}, []string{"id"}, vf)
	assert.NotEqual(t, first, otherKey)
}
