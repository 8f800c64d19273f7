package schema

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	mssql "github.com/microsoft/go-mssqldb"
	"golang.org/x/sync/errgroup"
)

// NoTables is what ListTables reports for an empty database.
const NoTables = "No tables found."

// DefaultSampleRows is how many rows DescribeTable includes per table.
const DefaultSampleRows = 2

// describeConcurrency caps parallel DescribeTable calls inside Document.
const describeConcurrency = 4

// Introspector reads table names, columns and sample rows through a shared
// connection pool.
type Introspector struct {
	db         *sql.DB
	dialect    Dialect
	sampleRows int
	logger     *slog.Logger
}

// NewIntrospector creates an Introspector. A sampleRows of zero or less
// uses DefaultSampleRows.
func NewIntrospector(db *sql.DB, dialect Dialect, sampleRows int, logger *slog.Logger) *Introspector {
	if sampleRows <= 0 {
		sampleRows = DefaultSampleRows
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Introspector{db: db, dialect: dialect, sampleRows: sampleRows, logger: logger}
}

// Tables returns the base table names in catalog order.
func (in *Introspector) Tables(ctx context.Context) ([]string, error) {
	query, args := in.dialect.ListTables()
	rows, err := in.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return tables, nil
}

// ListTables returns the table names joined with ", ", or NoTables.
func (in *Introspector) ListTables(ctx context.Context) (string, error) {
	tables, err := in.Tables(ctx)
	if err != nil {
		return "", err
	}
	if len(tables) == 0 {
		return NoTables, nil
	}
	return strings.Join(tables, ", "), nil
}

// DescribeTable renders one table as
//
//	Table: <name>
//	Columns:
//	- <col>
//
//	Sample Rows:
//	<row as JSON>
//
// A table with no columns yields "Table '<name>' not found." rather than an
// error.
func (in *Introspector) DescribeTable(ctx context.Context, table string) (string, error) {
	columns, err := in.columns(ctx, table)
	if err != nil {
		return "", err
	}
	if len(columns) == 0 {
		return fmt.Sprintf("Table '%s' not found.", table), nil
	}

	samples, err := in.sample(ctx, table)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("Table: ")
	b.WriteString(table)
	b.WriteString("\nColumns:\n- ")
	b.WriteString(strings.Join(columns, "\n- "))
	b.WriteString("\n\nSample Rows:\n")
	b.WriteString(strings.Join(samples, "\n"))
	return b.String(), nil
}

// Document describes every table and joins the blocks with a blank line,
// keeping catalog order. An empty database produces the not-found block for
// the NoTables sentinel.
func (in *Introspector) Document(ctx context.Context) (string, error) {
	tables, err := in.Tables(ctx)
	if err != nil {
		return "", err
	}
	if len(tables) == 0 {
		tables = []string{NoTables}
	}

	blocks := make([]string, len(tables))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(describeConcurrency)
	for i, table := range tables {
		g.Go(func() error {
			block, err := in.DescribeTable(gctx, table)
			if err != nil {
				return fmt.Errorf("describe table %s: %w", table, err)
			}
			blocks[i] = block
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	in.logger.Debug("schema document built", "tables", len(tables))
	return strings.Join(blocks, "\n\n"), nil
}

func (in *Introspector) columns(ctx context.Context, table string) ([]string, error) {
	query, args := in.dialect.Columns(table)
	rows, err := in.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name, dataType sql.NullString
		if err := rows.Scan(&name, &dataType); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		columns = append(columns, name.String)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	return columns, nil
}

// sample returns up to sampleRows rows, each as a JSON object whose keys
// follow the column order.
func (in *Introspector) sample(ctx context.Context, table string) ([]string, error) {
	rows, err := in.db.QueryContext(ctx, in.dialect.SampleRows(table, in.sampleRows))
	if err != nil {
		return nil, fmt.Errorf("query sample rows: %w", err)
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("column types: %w", err)
	}

	var out []string
	for rows.Next() {
		values := make([]any, len(types))
		ptrs := make([]any, len(types))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan sample row: %w", err)
		}
		line, err := encodeRow(types, values)
		if err != nil {
			return nil, err
		}
		out = append(out, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query sample rows: %w", err)
	}
	return out, nil
}

func encodeRow(types []*sql.ColumnType, values []any) (string, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, ct := range types {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(ct.Name())
		if err != nil {
			return "", fmt.Errorf("encode column name: %w", err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(jsonValue(ct.DatabaseTypeName(), values[i]))
		if err != nil {
			return "", fmt.Errorf("encode column %s: %w", ct.Name(), err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.String(), nil
}

// jsonValue maps a scanned value of the given database type to something
// that marshals readably. Binary data is rendered as a 0x hex literal.
func jsonValue(typeName string, v any) any {
	switch v := v.(type) {
	case []byte:
		switch strings.ToUpper(typeName) {
		case "DECIMAL", "NUMERIC", "MONEY", "SMALLMONEY":
			return json.Number(v)
		case "UNIQUEIDENTIFIER":
			var id mssql.UniqueIdentifier
			if err := id.Scan(v); err == nil {
				return id.String()
			}
			return hexLiteral(v)
		case "BINARY", "VARBINARY", "IMAGE", "TIMESTAMP", "ROWVERSION", "BLOB":
			return hexLiteral(v)
		}
		if !utf8.Valid(v) {
			return hexLiteral(v)
		}
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return v
	}
}

func hexLiteral(b []byte) string {
	return "0x" + strings.ToUpper(hex.EncodeToString(b))
}
