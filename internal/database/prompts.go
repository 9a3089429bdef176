package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var DescribeTablePrompt = &mcp.Prompt{
	Name:        "describe-table",
	Description: "The columns of a table, to write queries against it",
	Arguments: []*mcp.PromptArgument{
		{
			Name:        "table",
			Description: "the name of the table to describe",
			Required:    true,
		},
		{
			Name:        "schema",
			Description: "the schema of the table, 'public' when omitted",
		},
	},
}

func DescribeTablePromptHandle(logger *slog.Logger, q Querier) func(context.Context, *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return func(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		table, ok := req.Params.Arguments["table"]
		if !ok || table == "" {
			return nil, fmt.Errorf("'table' not found in arguments")
		}
		schema := req.Params.Arguments["schema"]
		if schema == "" {
			schema = "public"
		}
		columns, err := q.DescribeTable(ctx, schema, table)
		if err != nil {
			return nil, err
		}
		columnsText, err := json.Marshal(DescribeTableOutput{
			Schema:  schema,
			Table:   table,
			Columns: columns,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to convert table description to text: %w", err)
		}
		result := &mcp.GetPromptResult{
			Description: fmt.Sprintf("The columns of the '%s.%s' table", schema, table),
			Messages: []*mcp.PromptMessage{
				{
					Role: "user",
					Content: &mcp.TextContent{
						Text: string(columnsText),
					},
				},
			},
		}
		if logger.Enabled(ctx, slog.LevelDebug) {
			logger.DebugContext(ctx, "returned 'prompts/get' response", "content", result)
		}
		return result, nil
	}
}
