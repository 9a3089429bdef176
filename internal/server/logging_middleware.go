package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// NewLoggingMiddleware logs the start and the end of every MCP call.
func NewLoggingMiddleware(logger *slog.Logger) mcp.Middleware {
	return func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
			attrs := []any{"method", method, "session_id", req.GetSession().ID()}
			if ctr, ok := req.(*mcp.CallToolRequest); ok {
				attrs = append(attrs, "name", ctr.Params.Name, "has_args", len(ctr.Params.Arguments) > 0)
			} else {
				attrs = append(attrs, "has_params", req.GetParams() != nil)
			}
			logger.Info("MCP method started", attrs...)

			start := time.Now()
			result, err := next(ctx, method, req)
			duration := time.Since(start)

			switch {
			case err != nil:
				logger.Error("MCP call failed",
					"method", method,
					"session_id", req.GetSession().ID(),
					"duration_ms", duration.Milliseconds(),
					"error", err.Error(),
				)
			case !succeeded(result, nil):
				// tool errors are reported to the client as results
				logger.Warn("MCP tool call returned an error",
					"method", method,
					"session_id", req.GetSession().ID(),
					"duration_ms", duration.Milliseconds(),
				)
			default:
				logger.Info("MCP call completed",
					"method", method,
					"session_id", req.GetSession().ID(),
					"duration_ms", duration.Milliseconds(),
					"has_result", result != nil,
				)
			}
			return result, err
		}
	}
}
