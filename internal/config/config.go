package config

import (
	"time"

	"github.com/egarcia74/warp-sql-server-mcp/internal/monitor"
)

// Config holds runtime configuration for the MCP server.
type Config struct {
	Transport string
	Listen    string
	Debug     bool
	// Stateless serves the http transport without sessions.
	Stateless bool
	Database  DatabaseConfig
	Security  SecurityConfig
	Monitor   monitor.Config
	// PoolSampleInterval is how often the connection pool is sampled into the monitor.
	PoolSampleInterval time.Duration
}

// DatabaseConfig holds the connection settings of the PostgreSQL pool.
type DatabaseConfig struct {
	URL            string
	MaxConns       int
	MinConns       int
	ConnectTimeout time.Duration
	QueryTimeout   time.Duration
	AcquireRetries int
	RetryBackoff   time.Duration
	// MaxRows bounds the rows returned by execute_query when the caller gives no limit.
	MaxRows int
	// BatchSize is the number of rows fetched per batch when reading results.
	BatchSize int
}

// SecurityConfig selects which statements execute_query accepts.
type SecurityConfig struct {
	ReadOnly           bool
	AllowDestructive   bool
	AllowSchemaChanges bool
}

// Load constructs a Config from environment variables.
func Load() Config {
	defaults := monitor.DefaultConfig()
	return Config{
		Transport: GetString("MCP_TRANSPORT", "http"),
		Listen:    GetString("MCP_LISTEN", "127.0.0.1:8080"),
		Debug:     GetBool("MCP_DEBUG", false),
		Stateless: GetBool("MCP_STATELESS", false),
		Database: DatabaseConfig{
			URL:            GetString("DATABASE_URL", ""),
			MaxConns:       GetInt("DB_MAX_CONNS", 10),
			MinConns:       GetInt("DB_MIN_CONNS", 0),
			ConnectTimeout: GetSeconds("DB_CONNECT_TIMEOUT_SECONDS", 15*time.Second),
			QueryTimeout:   GetSeconds("DB_QUERY_TIMEOUT_SECONDS", 30*time.Second),
			AcquireRetries: GetInt("DB_ACQUIRE_RETRIES", 3),
			RetryBackoff:   GetMillis("DB_RETRY_BACKOFF_MS", 100*time.Millisecond),
			MaxRows:        GetInt("DB_MAX_ROWS", 1000),
			BatchSize:      GetInt("DB_BATCH_SIZE", 200),
		},
		Security: SecurityConfig{
			// safe by default: writes and DDL must be switched on explicitly
			ReadOnly:           GetBool("MCP_READ_ONLY", true),
			AllowDestructive:   GetBool("MCP_ALLOW_DESTRUCTIVE", false),
			AllowSchemaChanges: GetBool("MCP_ALLOW_SCHEMA_CHANGES", false),
		},
		Monitor: monitor.Config{
			Enabled:         GetBool("PERF_MONITORING_ENABLED", defaults.Enabled),
			SlowThreshold:   GetMillis("PERF_SLOW_QUERY_MS", defaults.SlowThreshold),
			RecentWindow:    GetInt("PERF_RECENT_WINDOW", defaults.RecentWindow),
			RecentMaxAge:    GetSeconds("PERF_RECENT_MAX_AGE_SECONDS", defaults.RecentMaxAge),
			HistorySize:     GetInt("PERF_HISTORY_SIZE", defaults.HistorySize),
			MaxInFlight:     GetInt("PERF_MAX_IN_FLIGHT", defaults.MaxInFlight),
			PoolEventWindow: GetInt("PERF_POOL_EVENT_WINDOW", defaults.PoolEventWindow),
			PoolEventMaxAge: GetSeconds("PERF_POOL_EVENT_MAX_AGE_SECONDS", defaults.PoolEventMaxAge),
			Health: monitor.HealthPolicy{
				ErrorCountThreshold:  int64(GetInt("PERF_HEALTH_ERROR_COUNT", int(defaults.Health.ErrorCountThreshold))),
				UtilizationThreshold: GetFloat("PERF_HEALTH_UTILIZATION", defaults.Health.UtilizationThreshold),
				ErrorRateThreshold:   GetFloat("PERF_HEALTH_ERRORS_PER_MINUTE", defaults.Health.ErrorRateThreshold),
				RetryRateThreshold:   GetFloat("PERF_HEALTH_RETRIES_PER_MINUTE", defaults.Health.RetryRateThreshold),
			},
		},
		PoolSampleInterval: GetSeconds("PERF_POOL_SAMPLE_SECONDS", 15*time.Second),
	}
}
