package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/egarcia74/warp-sql-server-mcp/internal/config"
	"github.com/egarcia74/warp-sql-server-mcp/internal/database"
	"github.com/egarcia74/warp-sql-server-mcp/internal/metrics"
	"github.com/egarcia74/warp-sql-server-mcp/internal/monitor"
	"github.com/egarcia74/warp-sql-server-mcp/internal/server"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var transport, listen, databaseURL string
var debug, stateless, readOnly, allowDestructive, allowSchemaChanges, monitoring bool
var slowQueryThreshold, poolSampleInterval time.Duration

func init() {
	startServerCmd.Flags().StringVar(&databaseURL, "database-url", "", "Specify the URL of the PostgreSQL database (defaults to $DATABASE_URL)")
	startServerCmd.Flags().BoolVar(&debug, "debug", false, "Enable debug mode")
	startServerCmd.Flags().StringVar(&transport, "transport", "http", "Choose between 'stdio' or 'http' transport")
	startServerCmd.Flags().StringVar(&listen, "listen", "127.0.0.1:8080", "Specify the host and port to listen on when using the 'http' transport")
	startServerCmd.Flags().BoolVar(&stateless, "stateless", false, "Serve the 'http' transport without sessions, e.g. when running multiple replicas")
	startServerCmd.Flags().BoolVar(&readOnly, "read-only", true, "Only accept SELECT-like statements in 'execute_query'")
	startServerCmd.Flags().BoolVar(&allowDestructive, "allow-destructive", false, "Allow INSERT, UPDATE, DELETE, MERGE and TRUNCATE statements when not in read-only mode")
	startServerCmd.Flags().BoolVar(&allowSchemaChanges, "allow-schema-changes", false, "Allow CREATE, ALTER, DROP, GRANT, REVOKE and COMMENT statements when not in read-only mode")
	startServerCmd.Flags().BoolVar(&monitoring, "monitoring", true, "Enable the performance monitoring of the tool calls")
	startServerCmd.Flags().DurationVar(&slowQueryThreshold, "slow-query-threshold", 5*time.Second, "Duration at or above which a tool call is reported as slow")
	startServerCmd.Flags().DurationVar(&poolSampleInterval, "pool-sample-interval", 15*time.Second, "Interval between two samples of the connection pool")
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := startServerCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the configuration from the environment and overrides it
// with the flags that were set on the command line.
func loadConfig(flags *pflag.FlagSet) config.Config {
	cfg := config.Load()
	flags.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "database-url":
			cfg.Database.URL = databaseURL
		case "debug":
			cfg.Debug = debug
		case "transport":
			cfg.Transport = transport
		case "listen":
			cfg.Listen = listen
		case "stateless":
			cfg.Stateless = stateless
		case "read-only":
			cfg.Security.ReadOnly = readOnly
		case "allow-destructive":
			cfg.Security.AllowDestructive = allowDestructive
		case "allow-schema-changes":
			cfg.Security.AllowSchemaChanges = allowSchemaChanges
		case "monitoring":
			cfg.Monitor.Enabled = monitoring
		case "slow-query-threshold":
			cfg.Monitor.SlowThreshold = slowQueryThreshold
		case "pool-sample-interval":
			cfg.PoolSampleInterval = poolSampleInterval
		}
	})
	return cfg
}

// startServerCmd the command to start the MCP server
var startServerCmd = &cobra.Command{
	Use:   "warp-sql-server-mcp",
	Short: "Start the PostgreSQL MCP server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := loadConfig(cmd.Flags())
		if cfg.Transport != "stdio" && cfg.Transport != "http" {
			return fmt.Errorf("invalid transport: choose between 'http' and 'stdio'")
		}
		lvl := new(slog.LevelVar)
		lvl.Set(slog.LevelInfo)
		logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
			Level: lvl,
		}))
		logger.Info("starting the PostgreSQL MCP server",
			"transport", cfg.Transport,
			"read-only", cfg.Security.ReadOnly,
			"allow-destructive", cfg.Security.AllowDestructive,
			"allow-schema-changes", cfg.Security.AllowSchemaChanges,
			"monitoring", cfg.Monitor.Enabled,
			"stateless", cfg.Stateless,
			"debug", cfg.Debug)
		if cfg.Debug {
			lvl.Set(slog.LevelDebug)
			logger.Debug("debug mode enabled")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		db, err := database.Connect(ctx, cfg.Database, logger)
		if err != nil {
			return err
		}
		defer db.Close()

		engine, err := monitor.NewEngine(cfg.Monitor, monitor.WithLogger(logger))
		if err != nil {
			// the server still runs, the performance tools report that monitoring is not initialized
			logger.Warn("performance monitoring is not available", "error", err.Error())
			engine = nil
		}
		sampler := monitor.NewPoolSampler(engine, db, cfg.PoolSampleInterval, logger, metrics.ObservePool)
		go sampler.Run(ctx)

		srv := server.New(logger, db, database.NewPolicy(cfg.Security), engine, cfg.Stateless)
		switch cfg.Transport {
		case "stdio":
			t := &mcp.LoggingTransport{
				Transport: &mcp.StdioTransport{},
				Writer:    cmd.ErrOrStderr(),
			}
			if err := srv.Run(ctx, t); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("failed to serve on stdio: %v", err.Error())
			}
		default:
			mux := http.NewServeMux()

			// MCP endpoint
			mux.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
				return srv
			}, &mcp.StreamableHTTPOptions{
				Stateless: cfg.Stateless,
			}))

			// Metrics endpoint
			mux.Handle("/metrics", promhttp.Handler())

			// HealthCheck endpoint
			mux.HandleFunc("/health", newHealthHandler(engine))

			httpServer := &http.Server{
				Addr:         cfg.Listen,
				Handler:      mux,
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 15 * time.Second,
				IdleTimeout:  60 * time.Second,
			}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := httpServer.Shutdown(shutdownCtx); err != nil {
					logger.Error("failed to shut down server", "error", err.Error())
				}
			}()
			logger.Info("listening", "address", cfg.Listen)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("failed to start server: %v", err.Error())
			}
		}
		return nil
	},
}

// newHealthHandler reports the connection pool verdict when monitoring is active,
// and a plain liveness status otherwise.
func newHealthHandler(engine *monitor.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if engine == nil || !engine.Enabled() {
			json.NewEncoder(w).Encode(map[string]string{ //nolint:errcheck
				"status": "healthy",
				"time":   time.Now().Format(time.RFC3339),
			})
			return
		}
		health := engine.Health()
		if health.Status == monitor.HealthCritical {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"status": health.Status,
			"score":  health.Score,
			"issues": health.Issues,
			"time":   time.Now().Format(time.RFC3339),
		})
	}
}
