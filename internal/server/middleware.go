package server

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/egarcia74/warp-sql-server-mcp/internal/metrics"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// NewMetricsMiddleware counts and times every MCP call, labelled with the tool name for `tools/call`.
func NewMetricsMiddleware(logger *slog.Logger) mcp.Middleware {
	return func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
			logger.Debug("metrics-middleware: received request", "method", method, "params", req.GetParams())
			start := time.Now()
			result, err := next(ctx, method, req)
			duration := time.Since(start)
			tool, _ := toolName(req)
			success := strconv.FormatBool(succeeded(result, err))
			metrics.MCPCallsTotal.WithLabelValues(method, tool, success).Inc()
			metrics.MCPCallDuration.WithLabelValues(method, tool, success).Observe(duration.Seconds())
			return result, err
		}
	}
}

// toolName returns the name of the called tool when req is a `tools/call` request.
func toolName(req mcp.Request) (string, bool) {
	if p, ok := req.GetParams().(*mcp.CallToolParamsRaw); ok {
		return p.Name, true
	}
	return "", false
}

// succeeded reports whether a call returned neither an error nor an error tool result.
func succeeded(result mcp.Result, err error) bool {
	if err != nil {
		return false
	}
	if r, ok := result.(*mcp.CallToolResult); ok && r.IsError {
		return false
	}
	return true
}
