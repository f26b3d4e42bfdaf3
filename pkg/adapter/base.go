package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/driftlake-labs/driftlake/pkg/core"
)

// BaseSQLAdapter provides common database/sql functionality for adapters.
// Embed this struct in concrete adapter implementations to get standard
// Close, Exec, ExecInTx, Query, QuoteIdent, and Literal implementations.
type BaseSQLAdapter struct {
	DB     *sql.DB
	Cfg    core.AdapterConfig
	Logger *slog.Logger
}

// Close closes the database connection.
func (b *BaseSQLAdapter) Close() error {
	if b.DB != nil {
		if b.Logger != nil {
			b.Logger.Debug("closing database connection")
		}
		return b.DB.Close()
	}
	return nil
}

// Exec executes a SQL statement that doesn't return rows.
func (b *BaseSQLAdapter) Exec(ctx context.Context, sqlStr string) error {
	if b.DB == nil {
		return fmt.Errorf("database connection not established")
	}
	_, err := b.DB.ExecContext(ctx, sqlStr)
	if err != nil {
		return fmt.Errorf("failed to execute SQL: %w", err)
	}
	return nil
}

// ExecInTx executes a sequence of SQL statements inside one transaction.
// The first failing statement rolls back everything before it.
func (b *BaseSQLAdapter) ExecInTx(ctx context.Context, stmts []string) error {
	if b.DB == nil {
		return fmt.Errorf("database connection not established")
	}
	tx, err := b.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute SQL: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Query executes a SQL statement that returns rows.
func (b *BaseSQLAdapter) Query(ctx context.Context, sqlStr string) (*core.Rows, error) {
	if b.DB == nil {
		return nil, fmt.Errorf("database connection not established")
	}
	//nolint:rowserrcheck // rows.Err() must be checked by caller after iteration completes
	rows, err := b.DB.QueryContext(ctx, sqlStr)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	return &core.Rows{Rows: rows}, nil
}

// IsConnected returns true if the database connection is established.
func (b *BaseSQLAdapter) IsConnected() bool {
	return b.DB != nil
}

// QuoteIdent quotes an identifier in the ANSI double-quote form shared by
// DuckDB and PostgreSQL.
func (b *BaseSQLAdapter) QuoteIdent(name string) string {
	return QuoteIdent(name)
}

// Literal renders a value as an ANSI SQL literal.
func (b *BaseSQLAdapter) Literal(v core.Value) string {
	return SQLLiteral(v)
}

// QuoteIdent quotes an identifier with double quotes, doubling any embedded
// quote.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// SQLLiteral renders a value in the ANSI literal forms DuckDB and
// PostgreSQL both accept.
func SQLLiteral(v core.Value) string {
	switch v.Kind() {
	case core.KindNull:
		return "NULL"
	case core.KindBool:
		if v.Bool() {
			return "TRUE"
		}
		return "FALSE"
	case core.KindInt:
		return strconv.FormatInt(v.Int(), 10)
	case core.KindFloat:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64)
	case core.KindText:
		return "'" + strings.ReplaceAll(v.Text(), "'", "''") + "'"
	case core.KindTimestamp:
		return "TIMESTAMP '" + v.Time().Format(core.TimestampLayout) + "'"
	case core.KindDate:
		return "DATE '" + v.Time().Format("2006-01-02") + "'"
	default:
		return "NULL"
	}
}

// ParseQualifiedName splits a table reference into schema and name, using
// the provided default schema when the reference is unqualified.
func ParseQualifiedName(table, defaultSchema string) (schema, name string) {
	if parts := strings.Split(table, "."); len(parts) == 2 {
		return parts[0], parts[1]
	}
	return defaultSchema, table
}

// GetTableMetadataCommon provides a shared implementation of
// GetTableMetadata over information_schema.columns. The placeholder
// function supplies the dialect's positional parameter form (? or $N).
func (b *BaseSQLAdapter) GetTableMetadataCommon(ctx context.Context, table, defaultSchema string, placeholder func(int) string) (*core.TableMetadata, error) {
	if b.DB == nil {
		return nil, fmt.Errorf("database connection not established")
	}

	schema, tableName := ParseQualifiedName(table, defaultSchema)

	//nolint:gosec // Placeholders are positional parameter markers, not user input
	query := fmt.Sprintf(`
		SELECT
			column_name,
			data_type,
			is_nullable,
			ordinal_position
		FROM information_schema.columns
		WHERE table_schema = %s AND table_name = %s
		ORDER BY ordinal_position
	`, placeholder(1), placeholder(2))

	rows, err := b.DB.QueryContext(ctx, query, schema, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to query column metadata: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var columns []core.Column
	for rows.Next() {
		var col core.Column
		var nullable string
		if err := rows.Scan(&col.Name, &col.Type, &nullable, &col.Position); err != nil {
			return nil, fmt.Errorf("failed to scan column metadata: %w", err)
		}
		col.Nullable = nullable == "YES"
		columns = append(columns, col)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating column metadata: %w", err)
	}

	if len(columns) == 0 {
		return nil, fmt.Errorf("table %s not found", table)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s.%s", QuoteIdent(schema), QuoteIdent(tableName))
	var rowCount int64
	if err := b.DB.QueryRowContext(ctx, countQuery).Scan(&rowCount); err != nil {
		// Non-fatal error, just set to 0
		rowCount = 0
	}

	return &core.TableMetadata{
		Schema:   schema,
		Name:     tableName,
		Columns:  columns,
		RowCount: rowCount,
	}, nil
}

// TableExistsCommon provides a shared implementation of TableExists over
// information_schema.tables.
func (b *BaseSQLAdapter) TableExistsCommon(ctx context.Context, ref core.TableRef, defaultSchema string, placeholder func(int) string) (bool, error) {
	if b.DB == nil {
		return false, fmt.Errorf("database connection not established")
	}

	schema := ref.Schema
	if schema == "" {
		schema = defaultSchema
	}

	//nolint:gosec // Placeholders are positional parameter markers, not user input
	query := fmt.Sprintf(`
		SELECT COUNT(*)
		FROM information_schema.tables
		WHERE table_schema = %s AND table_name = %s
	`, placeholder(1), placeholder(2))

	var count int64
	if err := b.DB.QueryRowContext(ctx, query, schema, ref.Name).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check table existence: %w", err)
	}
	return count > 0, nil
}
