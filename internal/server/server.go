package server

import (
	"context"
	"log/slog"

	"github.com/egarcia74/warp-sql-server-mcp/internal/database"
	"github.com/egarcia74/warp-sql-server-mcp/internal/monitor"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// New returns the MCP server with the database and the performance tools.
// engine may be nil, in which case tool calls are not recorded and the
// performance tools report that monitoring is not initialized.
func New(logger *slog.Logger, q database.Querier, policy database.Policy, engine *monitor.Engine, stateless bool) *mcp.Server {
	// When stateless is true, disable ListChanged notifications for tools and prompts
	// This prevents the server from attempting to send notifications that may not
	// reach the client in multi-replica deployments
	s := mcp.NewServer(
		&mcp.Implementation{
			Name:    "warp-sql-server-mcp",
			Version: "0.1",
		},
		&mcp.ServerOptions{
			Capabilities: &mcp.ServerCapabilities{
				Tools:   &mcp.ToolCapabilities{ListChanged: !stateless},
				Prompts: &mcp.PromptCapabilities{ListChanged: !stateless},
			},
			InitializedHandler: func(_ context.Context, ir *mcp.InitializedRequest) {
				logger.Debug("initialized", "session_id", ir.Session.ID())
			},
			Logger: logger,
		},
	)

	s.AddReceivingMiddleware(NewMonitoringMiddleware(logger, engine))
	s.AddReceivingMiddleware(NewMetricsMiddleware(logger))
	s.AddReceivingMiddleware(NewLoggingMiddleware(logger))
	s.AddPrompt(database.DescribeTablePrompt, database.DescribeTablePromptHandle(logger, q))

	mcp.AddTool(s, database.ListDatabasesTool, database.ListDatabasesToolHandle(logger, q))
	mcp.AddTool(s, database.ListTablesTool, database.ListTablesToolHandle(logger, q))
	mcp.AddTool(s, database.DescribeTableTool, database.DescribeTableToolHandle(logger, q))
	mcp.AddTool(s, database.ExplainQueryTool, database.ExplainQueryToolHandle(logger, q, policy))
	mcp.AddTool(s, database.ExecuteQueryTool, database.ExecuteQueryToolHandle(logger, q, policy))

	facade := monitor.NewFacade(engine)
	mcp.AddTool(s, PerformanceStatsTool, PerformanceStatsToolHandle(logger, facade))
	mcp.AddTool(s, QueryPerformanceTool, QueryPerformanceToolHandle(logger, facade))
	mcp.AddTool(s, ConnectionHealthTool, ConnectionHealthToolHandle(logger, facade))
	return s
}
