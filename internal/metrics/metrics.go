package metrics

import (
	"github.com/egarcia74/warp-sql-server-mcp/internal/monitor"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (

	// MCPCallsTotal counts total MCP calls by method, name (for `tools/call`) and success
	MCPCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcp_calls_total",
			Help: "Total number of MCP calls",
		},
		[]string{"method", "name", "success"},
	)

	// MCPCallDuration measures the duration of MCP calls by method, name (for `tools/call`) and success
	MCPCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mcp_call_duration_seconds",
			Help:    "Duration of MCP calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "name", "success"},
	)

	// DBPoolConnections reports the connections of the database pool by state
	DBPoolConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "db_pool_connections",
			Help: "Number of connections in the database pool by state",
		},
		[]string{"state"},
	)

	// DBPoolPendingRequests reports the requests waiting for a pooled connection
	DBPoolPendingRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_pool_pending_requests",
			Help: "Number of requests waiting for a database connection",
		},
	)

	// DBPoolErrors reports the cumulative connection errors of the pool
	DBPoolErrors = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_pool_errors",
			Help: "Cumulative number of database connection errors",
		},
	)

	// DBPoolRetries reports the cumulative connection acquire retries of the pool
	DBPoolRetries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_pool_retries",
			Help: "Cumulative number of database connection acquire retries",
		},
	)
)

// ObservePool publishes a pool snapshot on the pool gauges.
func ObservePool(s monitor.PoolSnapshot) {
	DBPoolConnections.WithLabelValues("total").Set(float64(s.Total))
	DBPoolConnections.WithLabelValues("active").Set(float64(s.Active))
	DBPoolConnections.WithLabelValues("idle").Set(float64(s.Idle))
	DBPoolPendingRequests.Set(float64(s.Pending))
	DBPoolErrors.Set(float64(s.Errors))
	DBPoolRetries.Set(float64(s.Retries))
}
