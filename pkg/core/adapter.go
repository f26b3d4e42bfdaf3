package core

import (
	"context"
	"database/sql"
	"strings"
)

// Adapter defines the interface that all warehouse adapters must implement.
type Adapter interface {
	// Connect establishes a connection to the warehouse.
	Connect(ctx context.Context, cfg AdapterConfig) error

	// Close closes the connection.
	Close() error

	// Exec executes a SQL statement that doesn't return rows.
	Exec(ctx context.Context, sql string) error

	// ExecInTx executes a sequence of SQL statements inside a single
	// transaction, rolling back on the first failure.
	ExecInTx(ctx context.Context, stmts []string) error

	// Query executes a SQL statement that returns rows.
	Query(ctx context.Context, sql string) (*Rows, error)

	// GetTableMetadata retrieves metadata for a table.
	GetTableMetadata(ctx context.Context, table string) (*TableMetadata, error)

	// TableExists reports whether a table is present in the warehouse.
	TableExists(ctx context.Context, table TableRef) (bool, error)

	// LoadCSV loads data from a CSV file into a table.
	LoadCSV(ctx context.Context, tableName, filePath string) error

	// QuoteIdent quotes an identifier for this dialect.
	QuoteIdent(name string) string

	// Literal renders a value as a SQL literal for this dialect.
	Literal(v Value) string

	// Folding returns the dialect's treatment of unquoted identifiers.
	Folding() FoldingPolicy

	// SQLType maps a value kind to this dialect's column type.
	SQLType(k Kind) string

	// DialectName returns the SQL dialect name (duckdb, postgres, ...).
	DialectName() string
}

// FoldingPolicy describes what a dialect does with unquoted identifiers.
type FoldingPolicy int

// Folding policies.
const (
	// FoldUpper folds unquoted identifiers to upper case (Snowflake,
	// Oracle, DB2).
	FoldUpper FoldingPolicy = iota

	// FoldLower folds unquoted identifiers to lower case (PostgreSQL).
	FoldLower

	// FoldPreserve stores identifiers as written and matches unquoted
	// references case-insensitively (DuckDB, SQLite).
	FoldPreserve
)

// String returns the policy name.
func (p FoldingPolicy) String() string {
	switch p {
	case FoldUpper:
		return "upper"
	case FoldLower:
		return "lower"
	case FoldPreserve:
		return "preserve"
	default:
		return "unknown"
	}
}

// Apply folds an unquoted identifier per the policy.
func (p FoldingPolicy) Apply(name string) string {
	switch p {
	case FoldUpper:
		return strings.ToUpper(name)
	case FoldLower:
		return strings.ToLower(name)
	default:
		return name
	}
}

// AdapterConfig holds configuration for connecting to a warehouse.
type AdapterConfig struct {
	Type     string
	Path     string
	Host     string
	Port     int
	Database string
	Username string
	Password string
	Schema   string
	Options  map[string]string
	Params   map[string]any
}

// Column represents a column in a warehouse table.
type Column struct {
	Name       string
	Type       string
	Nullable   bool
	PrimaryKey bool
	Position   int
}

// TableMetadata holds metadata about a warehouse table.
type TableMetadata struct {
	Schema    string
	Name      string
	Columns   []Column
	RowCount  int64
	SizeBytes int64
}

// Rows wraps sql.Rows to provide a consistent interface.
type Rows struct {
	*sql.Rows
}
