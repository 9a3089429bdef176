package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultMaxRows = 1000

// Querier is the set of database operations the tools rely on.
type Querier interface {
	ListDatabases(ctx context.Context) ([]string, error)
	ListTables(ctx context.Context, schema string) ([]Table, error)
	DescribeTable(ctx context.Context, schema, table string) ([]Column, error)
	Explain(ctx context.Context, query string) ([]string, error)
	Execute(ctx context.Context, query string, maxRows int) (*QueryResult, error)
}

type Table struct {
	Schema string `json:"schema"`
	Name   string `json:"name"`
	Type   string `json:"type"`
}

type Column struct {
	Name     string  `json:"name"`
	DataType string  `json:"dataType"`
	Nullable bool    `json:"nullable"`
	Default  *string `json:"default,omitempty"`
	Position int     `json:"position"`
}

// QueryResult is the outcome of an arbitrary statement.
type QueryResult struct {
	Columns      []string
	Rows         []map[string]any
	RowsAffected int64
	// Truncated is set when more rows were available than maxRows.
	Truncated bool
	// Batches is the number of fetch batches the rows were read in.
	Batches int
}

// Streamed reports whether the result was read in more than one batch.
func (r *QueryResult) Streamed() bool {
	return r.Batches > 1
}

func (c *Client) ListDatabases(ctx context.Context) ([]string, error) {
	const query = `SELECT datname FROM pg_database WHERE NOT datistemplate ORDER BY datname`
	var names []string
	err := c.withConn(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx, query)
		if err != nil {
			return err
		}
		names, err = pgx.CollectRows(rows, pgx.RowTo[string])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}
	return names, nil
}

// ListTables lists the tables and views of schema, or of every user schema when schema is empty.
func (c *Client) ListTables(ctx context.Context, schema string) ([]Table, error) {
	const query = `SELECT table_schema, table_name, table_type
		FROM information_schema.tables
		WHERE ($1 = '' AND table_schema NOT IN ('pg_catalog', 'information_schema'))
			OR table_schema = $1
		ORDER BY table_schema, table_name`
	var tables []Table
	err := c.withConn(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx, query, schema)
		if err != nil {
			return err
		}
		tables, err = pgx.CollectRows(rows, pgx.RowToStructByPos[Table])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	return tables, nil
}

func (c *Client) DescribeTable(ctx context.Context, schema, table string) ([]Column, error) {
	const query = `SELECT column_name, data_type, is_nullable = 'YES', column_default, ordinal_position
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`
	if schema == "" {
		schema = "public"
	}
	var columns []Column
	err := c.withConn(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx, query, schema, table)
		if err != nil {
			return err
		}
		columns, err = pgx.CollectRows(rows, pgx.RowToStructByPos[Column])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe table '%s.%s': %w", schema, table, err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("no table found with name '%s.%s'", schema, table)
	}
	return columns, nil
}

// Explain returns the text execution plan of query without running it.
func (c *Client) Explain(ctx context.Context, query string) ([]string, error) {
	var plan []string
	err := c.withConn(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx, "EXPLAIN "+query)
		if err != nil {
			return err
		}
		plan, err = pgx.CollectRows(rows, pgx.RowTo[string])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to explain query: %w", err)
	}
	return plan, nil
}

// Execute runs query and reads at most maxRows rows, in batches of the configured size.
func (c *Client) Execute(ctx context.Context, query string, maxRows int) (*QueryResult, error) {
	if maxRows <= 0 {
		maxRows = c.cfg.MaxRows
	}
	if maxRows <= 0 {
		maxRows = defaultMaxRows
	}
	batchSize := c.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = maxRows
	}
	result := &QueryResult{
		Columns: []string{},
		Rows:    []map[string]any{},
	}
	err := c.withConn(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx, query)
		if err != nil {
			return err
		}
		defer rows.Close()
		for _, fd := range rows.FieldDescriptions() {
			result.Columns = append(result.Columns, fd.Name)
		}
		for rows.Next() {
			if len(result.Rows) >= maxRows {
				result.Truncated = true
				break
			}
			values, err := rows.Values()
			if err != nil {
				return err
			}
			if len(result.Rows)%batchSize == 0 {
				result.Batches++
			}
			result.Rows = append(result.Rows, toRow(result.Columns, values))
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		result.RowsAffected = rows.CommandTag().RowsAffected()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	return result, nil
}

func toRow(columns []string, values []any) map[string]any {
	row := make(map[string]any, len(columns))
	for i, col := range columns {
		if i < len(values) {
			row[col] = normalizeValue(values[i])
		}
	}
	return row
}

// normalizeValue converts driver values that do not encode to readable JSON.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case [16]byte:
		return uuid.UUID(t).String()
	case []byte:
		return string(t)
	case time.Time:
		return t.Format(time.RFC3339Nano)
	case time.Duration:
		return t.String()
	case fmt.Stringer:
		return t.String()
	default:
		return v
	}
}
