package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/egarcia74/warp-sql-server-mcp/internal/config"
	"github.com/egarcia74/warp-sql-server-mcp/internal/monitor"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"
)

// Client runs the database tools on a pgx connection pool and keeps the
// counters the pool itself does not expose: requests waiting for a
// connection, failed acquisitions and queries, and acquire retries.
type Client struct {
	pool   *pgxpool.Pool
	cfg    config.DatabaseConfig
	logger *slog.Logger

	pending atomic.Int64
	errors  atomic.Int64
	retries atomic.Int64
}

var _ Querier = (*Client)(nil)
var _ monitor.PoolSource = (*Client)(nil)

// Connect opens the pool described by cfg and checks that the database is reachable.
func Connect(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("database URL is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns) //nolint:gosec
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = int32(cfg.MinConns) //nolint:gosec
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	c := newClient(pool, cfg, logger)
	if err := c.withConn(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
		return conn.Ping(ctx)
	}); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	c.logger.Info("connected to database", "host", poolCfg.ConnConfig.Host, "database", poolCfg.ConnConfig.Database, "max_conns", poolCfg.MaxConns)
	return c, nil
}

func newClient(pool *pgxpool.Pool, cfg config.DatabaseConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 100 * time.Millisecond
	}
	if cfg.AcquireRetries < 0 {
		cfg.AcquireRetries = 0
	}
	return &Client{
		pool:   pool,
		cfg:    cfg,
		logger: logger.With("component", "database"),
	}
}

// Close closes every connection of the pool.
func (c *Client) Close() {
	c.pool.Close()
}

// PoolSnapshot reports the current state of the pool.
func (c *Client) PoolSnapshot() monitor.PoolSnapshot {
	stat := c.pool.Stat()
	return monitor.PoolSnapshot{
		Total:      int(stat.TotalConns()),
		Active:     int(stat.AcquiredConns()),
		Idle:       int(stat.IdleConns()),
		Pending:    int(c.pending.Load()),
		Errors:     c.errors.Load(),
		Retries:    c.retries.Load(),
		CapturedAt: time.Now(),
	}
}

// acquire takes a connection from the pool, retrying with exponential backoff.
// Callers are counted as pending while they wait.
func (c *Client) acquire(ctx context.Context) (*pgxpool.Conn, error) {
	c.pending.Add(1)
	defer c.pending.Add(-1)

	var conn *pgxpool.Conn
	attempt := 0
	backoff := retry.WithMaxRetries(uint64(c.cfg.AcquireRetries), retry.NewExponential(c.cfg.RetryBackoff)) //nolint:gosec
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if attempt > 0 {
			c.retries.Add(1)
		}
		attempt++
		cn, err := c.pool.Acquire(ctx)
		if err != nil {
			c.errors.Add(1)
			if ctx.Err() != nil {
				return err
			}
			c.logger.Debug("failed to acquire connection", "attempt", attempt, "error", err.Error())
			return retry.RetryableError(err)
		}
		conn = cn
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection after %d attempt(s): %w", attempt, err)
	}
	return conn, nil
}

// withConn runs fn on a pooled connection under the configured query timeout.
// Failures of fn other than errors reported by the server are counted as pool errors.
func (c *Client) withConn(ctx context.Context, fn func(context.Context, *pgxpool.Conn) error) error {
	if c.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.QueryTimeout)
		defer cancel()
	}
	conn, err := c.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()
	if err := fn(ctx, conn); err != nil {
		if isConnectionError(err) {
			c.errors.Add(1)
		}
		return err
	}
	return nil
}

// isConnectionError reports whether err comes from the connection rather
// than from the statement, e.g. a syntax error or a constraint violation.
func isConnectionError(err error) bool {
	var pgErr *pgconn.PgError
	return !errors.As(err, &pgErr)
}
