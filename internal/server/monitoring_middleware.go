package server

import (
	"context"
	"log/slog"

	"github.com/egarcia74/warp-sql-server-mcp/internal/monitor"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// NewMonitoringMiddleware records every `tools/call` in the performance monitoring engine.
// Tool handlers report the size of their result through the request context.
func NewMonitoringMiddleware(logger *slog.Logger, engine *monitor.Engine) mcp.Middleware {
	return func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
			tool, ok := toolName(req)
			if engine == nil || !ok {
				return next(ctx, method, req)
			}
			handle := engine.Start(tool)
			ctx, report := monitor.WithResultReport(ctx)
			result, err := next(ctx, method, req)
			status := monitor.StatusCompleted
			if !succeeded(result, err) {
				status = monitor.StatusError
			}
			engine.End(handle, report.Outcome(status))
			logger.Debug("monitoring-middleware: recorded tool call", "name", tool, "status", status, "monitored", handle != monitor.NoopHandle)
			return result, err
		}
	}
}
