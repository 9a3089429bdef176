package cmd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/egarcia74/warp-sql-server-mcp/internal/monitor"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {

	t.Run("flags override environment", func(t *testing.T) {
		// given
		t.Setenv("DATABASE_URL", "postgres://env@localhost/app")
		t.Setenv("MCP_TRANSPORT", "http")
		t.Setenv("PERF_SLOW_QUERY_MS", "250")
		flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
		flags.StringVar(&databaseURL, "database-url", "", "")
		flags.StringVar(&transport, "transport", "http", "")
		flags.BoolVar(&readOnly, "read-only", true, "")
		flags.DurationVar(&slowQueryThreshold, "slow-query-threshold", 5*time.Second, "")
		require.NoError(t, flags.Parse([]string{"--transport", "stdio", "--read-only=false"}))

		// when
		cfg := loadConfig(flags)

		// then
		assert.Equal(t, "postgres://env@localhost/app", cfg.Database.URL)
		assert.Equal(t, "stdio", cfg.Transport)
		assert.False(t, cfg.Security.ReadOnly)
		// unset flags keep the environment value
		assert.Equal(t, 250*time.Millisecond, cfg.Monitor.SlowThreshold)
	})
}

func TestLoadConfigStateless(t *testing.T) {

	t.Run("from environment", func(t *testing.T) {
		// given
		t.Setenv("MCP_STATELESS", "true")
		flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
		flags.BoolVar(&stateless, "stateless", false, "")
		require.NoError(t, flags.Parse([]string{}))

		// when
		cfg := loadConfig(flags)

		// then
		assert.True(t, cfg.Stateless)
	})

	t.Run("flag overrides environment", func(t *testing.T) {
		// given
		t.Setenv("MCP_STATELESS", "true")
		flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
		flags.BoolVar(&stateless, "stateless", false, "")
		require.NoError(t, flags.Parse([]string{"--stateless=false"}))

		// when
		cfg := loadConfig(flags)

		// then
		assert.False(t, cfg.Stateless)
	})
}

func TestHealthHandler(t *testing.T) {

	t.Run("without monitoring", func(t *testing.T) {
		// given
		rec := httptest.NewRecorder()

		// when
		newHealthHandler(nil)(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		// then
		assert.Equal(t, http.StatusOK, rec.Code)
		body := map[string]any{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "healthy", body["status"])
	})

	t.Run("critical pool", func(t *testing.T) {
		// given
		engine, err := monitor.NewEngine(monitor.DefaultConfig())
		require.NoError(t, err)
		engine.RecordPoolSnapshot(monitor.PoolSnapshot{Total: 5, Active: 0, Idle: 5, Pending: 4, Errors: 12})
		rec := httptest.NewRecorder()

		// when
		newHealthHandler(engine)(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		// then
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		body := map[string]any{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "critical", body["status"])
		assert.InDelta(t, 0, body["score"], 0)
	})
}
