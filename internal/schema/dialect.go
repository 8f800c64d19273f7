package schema

import (
	"fmt"
	"strings"
)

// Dialect supplies the catalog and sampling queries for one database engine.
// Table names always travel as bind parameters in catalog queries; only
// SampleRows interpolates a name, and it must quote it.
type Dialect interface {
	Name() string
	ListTables() (query string, args []any)
	Columns(table string) (query string, args []any)
	SampleRows(table string, n int) string
}

// MSSQL is the SQL Server dialect, scoped to one schema (usually dbo).
type MSSQL struct {
	Schema string
}

// Name is the goose dialect name.
func (d MSSQL) Name() string { return "mssql" }

func (d MSSQL) schema() string {
	if d.Schema == "" {
		return "dbo"
	}
	return d.Schema
}

// ListTables excludes goose's bookkeeping table so seeded databases list
// only user tables.
func (d MSSQL) ListTables() (string, []any) {
	return `SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES
WHERE TABLE_TYPE = 'BASE TABLE' AND TABLE_SCHEMA = @p1 AND TABLE_NAME <> 'goose_db_version'
ORDER BY TABLE_NAME`, []any{d.schema()}
}

func (d MSSQL) Columns(table string) (string, []any) {
	return `SELECT COLUMN_NAME, DATA_TYPE FROM INFORMATION_SCHEMA.COLUMNS
WHERE TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2
ORDER BY ORDINAL_POSITION`, []any{d.schema(), table}
}

func (d MSSQL) SampleRows(table string, n int) string {
	return fmt.Sprintf("SELECT TOP %d * FROM %s.%s", n, QuoteIdent(d.schema()), QuoteIdent(table))
}

// QuoteIdent brackets a SQL Server identifier, doubling any closing bracket.
func QuoteIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}
