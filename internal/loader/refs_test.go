package loader

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractRefs(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want []string
	}{
		{"no refs", "SELECT * FROM raw_orders", nil},
		{"single quoted", "SELECT * FROM {{ ref('customers') }}", []string{"customers"}},
		{"double quoted", `SELECT * FROM {{ ref("customers") }}`, []string{"customers"}},
		{"tight spacing", "SELECT * FROM {{ref('customers')}}", []string{"customers"}},
		{
			"multiple and deduplicated",
			"SELECT * FROM {{ ref('a') }} JOIN {{ ref('b') }} ON 1=1 JOIN {{ ref('a') }} x ON 1=1",
			[]string{"a", "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractRefs(tt.sql))
		})
	}
}

func TestUsesThis(t *testing.T) {
	assert.True(t, UsesThis("SELECT MAX(updated_at) FROM {{ this }}"))
	assert.True(t, UsesThis("SELECT 1 FROM {{this}}"))
	assert.False(t, UsesThis("SELECT 1 FROM orders"))
}

func TestRenderSQL(t *testing.T) {
	resolve := func(name string) (string, error) {
		switch name {
		case "customers":
			return "analytics.customers", nil
		case "orders":
			return "analytics.orders", nil
		default:
			return "", fmt.Errorf("unknown snapshot %q", name)
		}
	}

	sql := "SELECT * FROM {{ ref('orders') }} o JOIN {{ ref(\"customers\") }} c ON o.cid = c.id WHERE o.ts > (SELECT MAX(ts) FROM {{ this }})"
	out, err := RenderSQL(sql, resolve, "analytics.orders_scd")
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT * FROM analytics.orders o JOIN analytics.customers c ON o.cid = c.id WHERE o.ts > (SELECT MAX(ts) FROM analytics.orders_scd)",
		out)
}

func TestRenderSQL_Errors(t *testing.T) {
	resolve := func(string) (string, error) { return "", fmt.Errorf("nope") }

	_, err := RenderSQL("SELECT * FROM {{ ref('missing') }}", resolve, "t")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `cannot resolve ref "missing"`)

	_, err = RenderSQL("SELECT * FROM {{ this }}", resolve, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no target table")

	_, err = RenderSQL("SELECT {{ unknown_fn() }}", resolve, "t")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unresolved template expression")
}
