package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftlake-labs/driftlake/pkg/core"
)

func TestBaseSQLAdapter_Close(t *testing.T) {
	tests := []struct {
		name      string
		setupDB   bool
		expectErr bool
	}{
		{
			name:      "close with nil DB",
			setupDB:   false,
			expectErr: false,
		},
		{
			name:      "close with open DB",
			setupDB:   true,
			expectErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := &BaseSQLAdapter{}

			if tt.setupDB {
				db, mock, err := sqlmock.New()
				require.NoError(t, err)
				mock.ExpectClose()
				base.DB = db
			}

			err := base.Close()
			if tt.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBaseSQLAdapter_Exec(t *testing.T) {
	tests := []struct {
		name      string
		setupDB   bool
		setupMock func(mock sqlmock.Sqlmock)
		sql       string
		expectErr bool
		errMsg    string
	}{
		{
			name:      "exec without connection",
			setupDB:   false,
			sql:       "CREATE TABLE t (id INT)",
			expectErr: true,
			errMsg:    "database connection not established",
		},
		{
			name:    "exec success",
			setupDB: true,
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("CREATE TABLE t").WillReturnResult(sqlmock.NewResult(0, 0))
			},
			sql: "CREATE TABLE t (id INT)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := &BaseSQLAdapter{}

			if tt.setupDB {
				db, mock, err := sqlmock.New()
				require.NoError(t, err)
				defer func() { _ = db.Close() }()
				if tt.setupMock != nil {
					tt.setupMock(mock)
				}
				base.DB = db
			}

			err := base.Exec(context.Background(), tt.sql)
			if tt.expectErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBaseSQLAdapter_ExecInTx(t *testing.T) {
	t.Run("without connection", func(t *testing.T) {
		base := &BaseSQLAdapter{}
		err := base.ExecInTx(context.Background(), []string{"SELECT 1"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database connection not established")
	})

	t.Run("all statements commit together", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() { _ = db.Close() }()

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE people").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO people").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		base := &BaseSQLAdapter{DB: db}
		err = base.ExecInTx(context.Background(), []string{
			"UPDATE people SET dbt_valid_to = TIMESTAMP '2020-01-15 00:00:00.000000'",
			"INSERT INTO people VALUES (1)",
		})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failure rolls back", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() { _ = db.Close() }()

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE people").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO people").WillReturnError(assert.AnError)
		mock.ExpectRollback()

		base := &BaseSQLAdapter{DB: db}
		err = base.ExecInTx(context.Background(), []string{
			"UPDATE people SET dbt_valid_to = NULL",
			"INSERT INTO people VALUES (1)",
		})
		require.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBaseSQLAdapter_Query(t *testing.T) {
	t.Run("without connection", func(t *testing.T) {
		base := &BaseSQLAdapter{}
		_, err := base.Query(context.Background(), "SELECT 1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database connection not established")
	})

	t.Run("query success", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer func() { _ = db.Close() }()

		mock.ExpectQuery("SELECT id FROM t").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))

		base := &BaseSQLAdapter{DB: db}
		rows, err := base.Query(context.Background(), "SELECT id FROM t")
		require.NoError(t, err)
		defer func() { _ = rows.Close() }()

		require.True(t, rows.Next())
		var id int64
		require.NoError(t, rows.Scan(&id))
		assert.Equal(t, int64(1), id)
	})
}

func TestBaseSQLAdapter_TableExistsCommon(t *testing.T) {
	placeholder := func(int) string { return "?" }

	tests := []struct {
		name  string
		count int64
		want  bool
	}{
		{name: "present", count: 1, want: true},
		{name: "absent", count: 0, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer func() { _ = db.Close() }()

			mock.ExpectQuery("SELECT COUNT").
				WithArgs("main", "orders_snapshot").
				WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(tt.count))

			base := &BaseSQLAdapter{DB: db}
			got, err := base.TableExistsCommon(context.Background(),
				core.TableRef{Name: "orders_snapshot"}, "main", placeholder)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"id"`, QuoteIdent("id"))
	assert.Equal(t, `"time"`, QuoteIdent("time"))
	assert.Equal(t, `"odd""name"`, QuoteIdent(`odd"name`))
}

func TestSQLLiteral(t *testing.T) {
	tests := []struct {
		name string
		in   core.Value
		want string
	}{
		{name: "null", in: core.NullValue(), want: "NULL"},
		{name: "true", in: core.BoolValue(true), want: "TRUE"},
		{name: "false", in: core.BoolValue(false), want: "FALSE"},
		{name: "int", in: core.IntValue(42), want: "42"},
		{name: "float", in: core.FloatValue(1.5), want: "1.5"},
		{name: "text", in: core.TextValue("Easton"), want: "'Easton'"},
		{name: "text with quote", in: core.TextValue("O'Brien"), want: "'O''Brien'"},
		{
			name: "timestamp",
			in:   core.TimestampValue(time.Date(2019, 12, 31, 0, 0, 0, 0, time.UTC)),
			want: "TIMESTAMP '2019-12-31 00:00:00.000000'",
		},
		{
			name: "date",
			in:   core.DateValue(time.Date(2020, 1, 15, 0, 0, 0, 0, time.UTC)),
			want: "DATE '2020-01-15'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SQLLiteral(tt.in))
		})
	}
}

func TestParseQualifiedName(t *testing.T) {
	schema, name := ParseQualifiedName("analytics.orders", "main")
	assert.Equal(t, "analytics", schema)
	assert.Equal(t, "orders", name)

	schema, name = ParseQualifiedName("orders", "main")
	assert.Equal(t, "main", schema)
	assert.Equal(t, "orders", name)
}
