package server

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/egarcia74/warp-sql-server-mcp/internal/monitor"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var PerformanceStatsTool = &mcp.Tool{
	Name:         "get_performance_stats",
	Description:  "get the overall and recent performance statistics of the tool calls, along with the state of the connection pool",
	InputSchema:  PerformanceStatsInputSchema,
	OutputSchema: PerformanceStatsOutputSchema,
}

type PerformanceStatsInput struct {
	Timeframe string `json:"timeframe,omitempty" jsonschema:"the timeframe of the statistics: 'all' (default) or 'recent'"`
}

var PerformanceStatsInputSchema, _ = jsonschema.For[PerformanceStatsInput](&jsonschema.ForOptions{})

type PerformanceStatsOutput monitor.Stats

var PerformanceStatsOutputSchema, _ = jsonschema.For[PerformanceStatsOutput](&jsonschema.ForOptions{})

func PerformanceStatsToolHandle(logger *slog.Logger, facade *monitor.Facade) mcp.ToolHandlerFor[PerformanceStatsInput, PerformanceStatsOutput] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input PerformanceStatsInput) (*mcp.CallToolResult, PerformanceStatsOutput, error) {
		stats, err := facade.GetStats(input.Timeframe)
		if err != nil {
			logger.ErrorContext(ctx, "failed to get performance statistics", "error", err.Error())
			return nil, PerformanceStatsOutput{}, err
		}
		return nil, PerformanceStatsOutput(stats), nil
	}
}

var QueryPerformanceTool = &mcp.Tool{
	Name:         "get_query_performance",
	Description:  "list the most recent tool calls with their duration, along with the slow calls and a per-tool breakdown",
	InputSchema:  QueryPerformanceInputSchema,
	OutputSchema: QueryPerformanceOutputSchema,
}

type QueryPerformanceInput struct {
	Limit    int    `json:"limit,omitempty" jsonschema:"the maximum number of calls to list (default 50)"`
	Tool     string `json:"tool,omitempty" jsonschema:"only list the calls of this tool"`
	SlowOnly bool   `json:"slowOnly,omitempty" jsonschema:"only list the slow calls"`
}

var QueryPerformanceInputSchema, _ = jsonschema.For[QueryPerformanceInput](&jsonschema.ForOptions{})

type QueryPerformanceOutput monitor.QueryStats

func (o QueryPerformanceOutput) MarshalJSON() ([]byte, error) {
	return json.Marshal(monitor.QueryStats(o))
}

var QueryPerformanceOutputSchema = newQueryPerformanceOutputSchema()

func newQueryPerformanceOutputSchema() *jsonschema.Schema {
	schema, _ := jsonschema.For[QueryPerformanceOutput](&jsonschema.ForOptions{})
	if schema != nil {
		// a disabled engine only reports its state
		schema.Required = []string{"enabled"}
	}
	return schema
}

func QueryPerformanceToolHandle(logger *slog.Logger, facade *monitor.Facade) mcp.ToolHandlerFor[QueryPerformanceInput, QueryPerformanceOutput] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input QueryPerformanceInput) (*mcp.CallToolResult, QueryPerformanceOutput, error) {
		stats, err := facade.GetQueryStats(input.Limit, input.Tool, input.SlowOnly)
		if err != nil {
			logger.ErrorContext(ctx, "failed to get query performance", "error", err.Error())
			return nil, QueryPerformanceOutput{}, err
		}
		return nil, QueryPerformanceOutput(stats), nil
	}
}

var ConnectionHealthTool = &mcp.Tool{
	Name:         "get_connection_health",
	Description:  "get the state, the recent activity and the health verdict of the database connection pool",
	InputSchema:  ConnectionHealthInputSchema,
	OutputSchema: ConnectionHealthOutputSchema,
}

type ConnectionHealthInput struct {
}

var ConnectionHealthInputSchema, _ = jsonschema.For[ConnectionHealthInput](&jsonschema.ForOptions{})

type ConnectionHealthOutput monitor.PoolStats

var ConnectionHealthOutputSchema, _ = jsonschema.For[ConnectionHealthOutput](&jsonschema.ForOptions{})

func ConnectionHealthToolHandle(logger *slog.Logger, facade *monitor.Facade) mcp.ToolHandlerFor[ConnectionHealthInput, ConnectionHealthOutput] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ ConnectionHealthInput) (*mcp.CallToolResult, ConnectionHealthOutput, error) {
		stats, err := facade.GetPoolStats()
		if err != nil {
			logger.ErrorContext(ctx, "failed to get connection health", "error", err.Error())
			return nil, ConnectionHealthOutput{}, err
		}
		return nil, ConnectionHealthOutput(stats), nil
	}
}
