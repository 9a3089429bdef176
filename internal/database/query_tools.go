package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/egarcia74/warp-sql-server-mcp/internal/monitor"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var ExplainQueryTool = &mcp.Tool{
	Name:         "explain_query",
	Description:  "show the execution plan of a single SQL statement without running it",
	InputSchema:  ExplainQueryInputSchema,
	OutputSchema: ExplainQueryOutputSchema,
}

type ExplainQueryInput struct {
	Query string `json:"query" jsonschema:"the SQL statement to explain"`
}

var ExplainQueryInputSchema, _ = jsonschema.For[ExplainQueryInput](&jsonschema.ForOptions{})

type ExplainQueryOutput struct {
	Plan []string `json:"plan"`
}

var ExplainQueryOutputSchema, _ = jsonschema.For[ExplainQueryOutput](&jsonschema.ForOptions{})

func ExplainQueryToolHandle(logger *slog.Logger, q Querier, policy Policy) mcp.ToolHandlerFor[ExplainQueryInput, ExplainQueryOutput] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ExplainQueryInput) (*mcp.CallToolResult, ExplainQueryOutput, error) {
		if !IsSingleStatement(input.Query) {
			return nil, ExplainQueryOutput{}, fmt.Errorf("%w: only a single statement can be explained", ErrQueryNotAllowed)
		}
		// statements the server refuses to run cannot be explained either
		if err := policy.Check(input.Query); err != nil {
			return nil, ExplainQueryOutput{}, err
		}
		plan, err := q.Explain(ctx, input.Query)
		if err != nil {
			return nil, ExplainQueryOutput{}, err
		}
		if plan == nil {
			plan = []string{}
		}
		monitor.ReportResult(ctx, len(plan), false)
		out := ExplainQueryOutput{Plan: plan}
		logResult(ctx, logger, ExplainQueryTool.Name, out)
		return nil, out, nil
	}
}

var ExecuteQueryTool = &mcp.Tool{
	Name:         "execute_query",
	Description:  "run a SQL statement and return the resulting rows; statements that modify data or the schema are subject to the server's safety settings",
	InputSchema:  ExecuteQueryInputSchema,
	OutputSchema: ExecuteQueryOutputSchema,
}

type ExecuteQueryInput struct {
	Query   string `json:"query" jsonschema:"the SQL statement to run"`
	MaxRows int    `json:"maxRows,omitempty" jsonschema:"the maximum number of rows to return"`
}

var ExecuteQueryInputSchema, _ = jsonschema.For[ExecuteQueryInput](&jsonschema.ForOptions{})

type ExecuteQueryOutput struct {
	Columns      []string         `json:"columns"`
	Rows         []map[string]any `json:"rows"`
	RowCount     int              `json:"rowCount"`
	RowsAffected int64            `json:"rowsAffected"`
	Truncated    bool             `json:"truncated"`
	Streamed     bool             `json:"streamed"`
}

var ExecuteQueryOutputSchema, _ = jsonschema.For[ExecuteQueryOutput](&jsonschema.ForOptions{})

func ExecuteQueryToolHandle(logger *slog.Logger, q Querier, policy Policy) mcp.ToolHandlerFor[ExecuteQueryInput, ExecuteQueryOutput] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ExecuteQueryInput) (*mcp.CallToolResult, ExecuteQueryOutput, error) {
		if err := policy.Check(input.Query); err != nil {
			if errors.Is(err, ErrQueryNotAllowed) {
				logger.WarnContext(ctx, "rejected query", "tool", ExecuteQueryTool.Name, "reason", err.Error())
			}
			return nil, ExecuteQueryOutput{}, err
		}
		result, err := q.Execute(ctx, input.Query, input.MaxRows)
		if err != nil {
			return nil, ExecuteQueryOutput{}, err
		}
		out := ExecuteQueryOutput{
			Columns:      result.Columns,
			Rows:         result.Rows,
			RowCount:     len(result.Rows),
			RowsAffected: result.RowsAffected,
			Truncated:    result.Truncated,
			Streamed:     result.Streamed(),
		}
		if out.Columns == nil {
			out.Columns = []string{}
		}
		if out.Rows == nil {
			out.Rows = []map[string]any{}
		}
		monitor.ReportResult(ctx, out.RowCount, out.Streamed)
		logResult(ctx, logger, ExecuteQueryTool.Name, out)
		return nil, out, nil
	}
}
