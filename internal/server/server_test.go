package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/egarcia74/warp-sql-server-mcp/internal/database"
	"github.com/egarcia74/warp-sql-server-mcp/internal/metrics"
	"github.com/egarcia74/warp-sql-server-mcp/internal/monitor"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubQuerier struct {
	databases []string
	err       error
}

func (s *stubQuerier) ListDatabases(_ context.Context) ([]string, error) {
	return s.databases, s.err
}

func (s *stubQuerier) ListTables(_ context.Context, _ string) ([]database.Table, error) {
	return []database.Table{}, s.err
}

func (s *stubQuerier) DescribeTable(_ context.Context, _, _ string) ([]database.Column, error) {
	return []database.Column{}, s.err
}

func (s *stubQuerier) Explain(_ context.Context, _ string) ([]string, error) {
	return []string{"Result  (cost=0.00..0.01 rows=1 width=4)"}, s.err
}

func (s *stubQuerier) Execute(_ context.Context, _ string, _ int) (*database.QueryResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &database.QueryResult{
		Columns: []string{"n"},
		Rows:    []map[string]any{{"n": 1}},
		Batches: 1,
	}, nil
}

func newTestSession(t *testing.T, q database.Querier, engine *monitor.Engine) *mcp.ClientSession {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	srv := New(logger, q, database.Policy{ReadOnly: true}, engine, false)
	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	_, err := srv.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	cl := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v1.0.0"}, nil)
	session, err := cl.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	return session
}

func decode[T any](t *testing.T, result *mcp.CallToolResult) T {
	var out T
	data, err := json.Marshal(result.StructuredContent)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func errorText(t *testing.T, result *mcp.CallToolResult) string {
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestServer(t *testing.T) {

	t.Run("list tools", func(t *testing.T) {
		// given
		engine, err := monitor.NewEngine(monitor.DefaultConfig())
		require.NoError(t, err)
		session := newTestSession(t, &stubQuerier{}, engine)
		defer session.Close()

		// when
		result, err := session.ListTools(context.Background(), &mcp.ListToolsParams{})

		// then
		require.NoError(t, err)
		names := make([]string, 0, len(result.Tools))
		for _, tool := range result.Tools {
			names = append(names, tool.Name)
		}
		assert.ElementsMatch(t, []string{
			"list_databases",
			"list_tables",
			"describe_table",
			"explain_query",
			"execute_query",
			"get_performance_stats",
			"get_query_performance",
			"get_connection_health",
		}, names)
	})

	t.Run("get prompt/describe-table", func(t *testing.T) {
		// given
		session := newTestSession(t, &stubQuerier{}, nil)
		defer session.Close()

		// when
		result, err := session.GetPrompt(context.Background(), &mcp.GetPromptParams{
			Name:      "describe-table",
			Arguments: map[string]string{"table": "users"},
		})

		// then
		require.NoError(t, err)
		assert.Equal(t, "The columns of the 'public.users' table", result.Description)
		require.Len(t, result.Messages, 1)
	})

	t.Run("call/list_databases/ok", func(t *testing.T) {
		// given
		engine, err := monitor.NewEngine(monitor.DefaultConfig())
		require.NoError(t, err)
		session := newTestSession(t, &stubQuerier{databases: []string{"app", "postgres"}}, engine)
		defer session.Close()
		callsBefore := testutil.ToFloat64(metrics.MCPCallsTotal.WithLabelValues("tools/call", "list_databases", "true"))

		// when
		result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
			Name: "list_databases",
		})

		// then
		require.NoError(t, err)
		require.False(t, result.IsError, errorText(t, result))
		out := decode[database.ListDatabasesOutput](t, result)
		assert.Equal(t, []string{"app", "postgres"}, out.Databases)
		// the call was recorded with its result size
		assert.Equal(t, int64(1), engine.Overall().TotalQueries)
		entries := engine.Queries(monitor.QueryFilter{})
		require.Len(t, entries, 1)
		assert.Equal(t, "list_databases", entries[0].Tool)
		assert.Equal(t, monitor.StatusCompleted, entries[0].Status)
		require.NotNil(t, entries[0].ResultSize)
		assert.Equal(t, 2, *entries[0].ResultSize)
		assert.Equal(t, 0, engine.InFlight())
		// and counted in the metrics
		assert.InDelta(t, callsBefore+1, testutil.ToFloat64(metrics.MCPCallsTotal.WithLabelValues("tools/call", "list_databases", "true")), 0)
	})

	t.Run("call/list_databases/database-error", func(t *testing.T) {
		// given
		engine, err := monitor.NewEngine(monitor.DefaultConfig())
		require.NoError(t, err)
		session := newTestSession(t, &stubQuerier{err: errors.New("failed to list databases: connection refused")}, engine)
		defer session.Close()
		callsBefore := testutil.ToFloat64(metrics.MCPCallsTotal.WithLabelValues("tools/call", "list_databases", "false"))

		// when
		result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
			Name: "list_databases",
		})

		// then
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Equal(t, int64(1), engine.Overall().Errors)
		assert.InDelta(t, callsBefore+1, testutil.ToFloat64(metrics.MCPCallsTotal.WithLabelValues("tools/call", "list_databases", "false")), 0)
	})

	t.Run("call/execute_query/rejected", func(t *testing.T) {
		// given
		engine, err := monitor.NewEngine(monitor.DefaultConfig())
		require.NoError(t, err)
		session := newTestSession(t, &stubQuerier{}, engine)
		defer session.Close()

		// when
		result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
			Name: "execute_query",
			Arguments: map[string]any{
				"query": "DROP TABLE users",
			},
		})

		// then
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Contains(t, errorText(t, result), "query not allowed")
		stats := engine.ByTool()
		require.Contains(t, stats, "execute_query")
		assert.Equal(t, int64(1), stats["execute_query"].Errors)
		assert.InDelta(t, 100, stats["execute_query"].ErrorRate, 0)
	})

	t.Run("call/get_query_performance/ok", func(t *testing.T) {
		// given
		engine, err := monitor.NewEngine(monitor.DefaultConfig())
		require.NoError(t, err)
		session := newTestSession(t, &stubQuerier{databases: []string{"app"}}, engine)
		defer session.Close()
		for _, q := range []string{"SELECT 1", "SELECT 2"} {
			_, err := session.CallTool(context.Background(), &mcp.CallToolParams{
				Name:      "execute_query",
				Arguments: map[string]any{"query": q},
			})
			require.NoError(t, err)
		}
		_, err = session.CallTool(context.Background(), &mcp.CallToolParams{Name: "list_databases"})
		require.NoError(t, err)

		// when
		result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
			Name: "get_query_performance",
			Arguments: map[string]any{
				"tool": "execute_query",
			},
		})

		// then
		require.NoError(t, err)
		require.False(t, result.IsError, errorText(t, result))
		out := decode[monitor.QueryStats](t, result)
		assert.True(t, out.Enabled)
		assert.Equal(t, monitor.DefaultQueryLimit, out.Limit)
		assert.Equal(t, int64(3), out.TotalQueries)
		require.Len(t, out.Queries, 2)
		for _, q := range out.Queries {
			assert.Equal(t, "execute_query", q.Tool)
		}
		// the breakdown is not filtered
		assert.Contains(t, out.ByTool, "execute_query")
		assert.Contains(t, out.ByTool, "list_databases")
		assert.Equal(t, int64(2), out.ByTool["execute_query"].Count)
	})

	t.Run("call/get_query_performance/empty", func(t *testing.T) {
		// given
		engine, err := monitor.NewEngine(monitor.DefaultConfig())
		require.NoError(t, err)
		session := newTestSession(t, &stubQuerier{}, engine)
		defer session.Close()

		// when
		result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
			Name: "get_query_performance",
		})

		// then
		require.NoError(t, err)
		require.False(t, result.IsError, errorText(t, result))
		out := decode[map[string]any](t, result)
		assert.Equal(t, true, out["enabled"])
		assert.Equal(t, []any{}, out["queries"])
		assert.Equal(t, []any{}, out["slowQueries"])
		assert.Equal(t, map[string]any{}, out["byTool"])
		assert.Contains(t, out, "totalQueries")
	})

	t.Run("call/get_query_performance/disabled", func(t *testing.T) {
		// given
		cfg := monitor.DefaultConfig()
		cfg.Enabled = false
		engine, err := monitor.NewEngine(cfg)
		require.NoError(t, err)
		session := newTestSession(t, &stubQuerier{}, engine)
		defer session.Close()

		// when
		result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
			Name: "get_query_performance",
		})

		// then
		require.NoError(t, err)
		require.False(t, result.IsError, errorText(t, result))
		out := decode[map[string]any](t, result)
		assert.Equal(t, map[string]any{
			"enabled": false,
			"message": monitor.DisabledMessage,
		}, out)
	})

	t.Run("call/get_performance_stats/ok", func(t *testing.T) {
		// given
		engine, err := monitor.NewEngine(monitor.DefaultConfig())
		require.NoError(t, err)
		session := newTestSession(t, &stubQuerier{databases: []string{"app"}}, engine)
		defer session.Close()
		_, err = session.CallTool(context.Background(), &mcp.CallToolParams{Name: "list_databases"})
		require.NoError(t, err)

		// when
		result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
			Name: "get_performance_stats",
			Arguments: map[string]any{
				"timeframe": "last-week",
			},
		})

		// then
		require.NoError(t, err)
		require.False(t, result.IsError, errorText(t, result))
		out := decode[monitor.Stats](t, result)
		assert.True(t, out.Enabled)
		assert.Equal(t, monitor.TimeframeAll, out.Timeframe)
		require.NotNil(t, out.Overall)
		assert.Equal(t, int64(1), out.Overall.TotalQueries)
		require.NotNil(t, out.Recent)
		assert.Equal(t, 1, out.Recent.Count)
		assert.Nil(t, out.Pool)
	})

	t.Run("call/get_connection_health/ok", func(t *testing.T) {
		// given
		engine, err := monitor.NewEngine(monitor.DefaultConfig())
		require.NoError(t, err)
		engine.RecordPoolSnapshot(monitor.PoolSnapshot{Total: 10, Active: 9, Idle: 1, Pending: 3})
		session := newTestSession(t, &stubQuerier{}, engine)
		defer session.Close()

		// when
		result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
			Name: "get_connection_health",
		})

		// then
		require.NoError(t, err)
		require.False(t, result.IsError, errorText(t, result))
		out := decode[monitor.PoolStats](t, result)
		assert.True(t, out.Enabled)
		require.NotNil(t, out.Current)
		assert.Equal(t, 9, out.Current.Active)
		require.NotNil(t, out.Health)
		assert.Equal(t, monitor.HealthWarning, out.Health.Status)
		assert.Equal(t, 75, out.Health.Score)
		assert.Equal(t, []string{"Connection pool near capacity"}, out.Health.Issues)
	})

	t.Run("call/get_connection_health/disabled", func(t *testing.T) {
		// given
		cfg := monitor.DefaultConfig()
		cfg.Enabled = false
		engine, err := monitor.NewEngine(cfg)
		require.NoError(t, err)
		session := newTestSession(t, &stubQuerier{}, engine)
		defer session.Close()

		// when
		result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
			Name: "get_connection_health",
		})

		// then
		require.NoError(t, err)
		require.False(t, result.IsError, errorText(t, result))
		out := decode[monitor.PoolStats](t, result)
		assert.False(t, out.Enabled)
		assert.Equal(t, monitor.DisabledMessage, out.Message)
		assert.Nil(t, out.Health)
	})

	t.Run("call/get_performance_stats/not-initialized", func(t *testing.T) {
		// given
		session := newTestSession(t, &stubQuerier{databases: []string{"app"}}, nil)
		defer session.Close()

		// when
		listResult, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: "list_databases"})
		require.NoError(t, err)
		require.False(t, listResult.IsError, errorText(t, listResult))
		result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
			Name: "get_performance_stats",
		})

		// then
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Equal(t, "Performance monitoring is not initialized", errorText(t, result))
	})
}
