package database

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/egarcia74/warp-sql-server-mcp/internal/monitor"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var ListDatabasesTool = &mcp.Tool{
	Name:         "list_databases",
	Description:  "list the databases of the PostgreSQL server",
	InputSchema:  ListDatabasesInputSchema,
	OutputSchema: ListDatabasesOutputSchema,
}

type ListDatabasesInput struct {
}

var ListDatabasesInputSchema, _ = jsonschema.For[ListDatabasesInput](&jsonschema.ForOptions{})

type ListDatabasesOutput struct {
	Databases []string `json:"databases"`
}

var ListDatabasesOutputSchema, _ = jsonschema.For[ListDatabasesOutput](&jsonschema.ForOptions{})

func ListDatabasesToolHandle(logger *slog.Logger, q Querier) mcp.ToolHandlerFor[ListDatabasesInput, ListDatabasesOutput] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ ListDatabasesInput) (*mcp.CallToolResult, ListDatabasesOutput, error) {
		names, err := q.ListDatabases(ctx)
		if err != nil {
			return nil, ListDatabasesOutput{}, err
		}
		if names == nil {
			names = []string{}
		}
		monitor.ReportResult(ctx, len(names), false)
		out := ListDatabasesOutput{Databases: names}
		logResult(ctx, logger, ListDatabasesTool.Name, out)
		return nil, out, nil
	}
}

var ListTablesTool = &mcp.Tool{
	Name:         "list_tables",
	Description:  "list the tables and views of a schema, or of all user schemas when no schema is given",
	InputSchema:  ListTablesInputSchema,
	OutputSchema: ListTablesOutputSchema,
}

type ListTablesInput struct {
	Schema string `json:"schema,omitempty" jsonschema:"the schema to list the tables of"`
}

var ListTablesInputSchema, _ = jsonschema.For[ListTablesInput](&jsonschema.ForOptions{})

type ListTablesOutput struct {
	Tables []Table `json:"tables"`
}

var ListTablesOutputSchema, _ = jsonschema.For[ListTablesOutput](&jsonschema.ForOptions{})

func ListTablesToolHandle(logger *slog.Logger, q Querier) mcp.ToolHandlerFor[ListTablesInput, ListTablesOutput] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ListTablesInput) (*mcp.CallToolResult, ListTablesOutput, error) {
		tables, err := q.ListTables(ctx, input.Schema)
		if err != nil {
			return nil, ListTablesOutput{}, err
		}
		if tables == nil {
			tables = []Table{}
		}
		monitor.ReportResult(ctx, len(tables), false)
		out := ListTablesOutput{Tables: tables}
		logResult(ctx, logger, ListTablesTool.Name, out)
		return nil, out, nil
	}
}

var DescribeTableTool = &mcp.Tool{
	Name:         "describe_table",
	Description:  "describe the columns of a table",
	InputSchema:  DescribeTableInputSchema,
	OutputSchema: DescribeTableOutputSchema,
}

type DescribeTableInput struct {
	Table  string `json:"table" jsonschema:"the name of the table to describe"`
	Schema string `json:"schema,omitempty" jsonschema:"the schema of the table, 'public' when omitted"`
}

var DescribeTableInputSchema, _ = jsonschema.For[DescribeTableInput](&jsonschema.ForOptions{})

type DescribeTableOutput struct {
	Schema  string   `json:"schema"`
	Table   string   `json:"table"`
	Columns []Column `json:"columns"`
}

var DescribeTableOutputSchema, _ = jsonschema.For[DescribeTableOutput](&jsonschema.ForOptions{})

func DescribeTableToolHandle(logger *slog.Logger, q Querier) mcp.ToolHandlerFor[DescribeTableInput, DescribeTableOutput] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input DescribeTableInput) (*mcp.CallToolResult, DescribeTableOutput, error) {
		schema := input.Schema
		if schema == "" {
			schema = "public"
		}
		columns, err := q.DescribeTable(ctx, schema, input.Table)
		if err != nil {
			return nil, DescribeTableOutput{}, err
		}
		if columns == nil {
			columns = []Column{}
		}
		monitor.ReportResult(ctx, len(columns), false)
		out := DescribeTableOutput{
			Schema:  schema,
			Table:   input.Table,
			Columns: columns,
		}
		logResult(ctx, logger, DescribeTableTool.Name, out)
		return nil, out, nil
	}
}

func logResult(ctx context.Context, logger *slog.Logger, tool string, result any) {
	if !logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	resultStr, err := json.Marshal(result)
	if err != nil {
		logger.Error("failed to convert result to text", "tool", tool, "error", err.Error())
		return
	}
	logger.DebugContext(ctx, "returned 'tools/call' response", "tool", tool, "result", string(resultStr))
}
