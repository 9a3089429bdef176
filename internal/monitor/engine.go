package monitor

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultSlowThreshold   = 5 * time.Second
	defaultRecentWindow    = 100
	defaultHistorySize     = 1000
	defaultMaxInFlight     = 1000
	defaultPoolEventWindow = 500
	defaultPoolEventMaxAge = 5 * time.Minute
)

// Config holds the policy knobs of the performance monitoring engine.
// Zero values are replaced by defaults, negative values are rejected.
type Config struct {
	Enabled bool
	// SlowThreshold is the duration at or above which an operation counts as slow.
	SlowThreshold time.Duration
	// RecentWindow is the number of most recent finalized operations in the recent view.
	RecentWindow int
	// RecentMaxAge further restricts the recent view to operations that ended
	// within this duration. Zero disables the age restriction.
	RecentMaxAge time.Duration
	// HistorySize bounds the number of finalized operations kept for listings.
	HistorySize int
	// MaxInFlight bounds the number of operations started but not yet ended.
	MaxInFlight int
	// PoolEventWindow bounds the number of retained pool events.
	PoolEventWindow int
	// PoolEventMaxAge is the time window the recent pool rates are computed over.
	PoolEventMaxAge time.Duration
	Health          HealthPolicy
}

// DefaultConfig returns an enabled configuration with the default policy.
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		SlowThreshold:   defaultSlowThreshold,
		RecentWindow:    defaultRecentWindow,
		HistorySize:     defaultHistorySize,
		MaxInFlight:     defaultMaxInFlight,
		PoolEventWindow: defaultPoolEventWindow,
		PoolEventMaxAge: defaultPoolEventMaxAge,
		Health:          DefaultHealthPolicy(),
	}
}

func (c Config) withDefaults() (Config, error) {
	if c.SlowThreshold < 0 {
		return c, fmt.Errorf("invalid slow threshold: %s", c.SlowThreshold)
	}
	if c.RecentWindow < 0 || c.HistorySize < 0 || c.MaxInFlight < 0 || c.PoolEventWindow < 0 {
		return c, fmt.Errorf("invalid window sizes: recent=%d history=%d in-flight=%d pool-events=%d",
			c.RecentWindow, c.HistorySize, c.MaxInFlight, c.PoolEventWindow)
	}
	if c.RecentMaxAge < 0 || c.PoolEventMaxAge < 0 {
		return c, fmt.Errorf("invalid window ages: recent=%s pool-events=%s", c.RecentMaxAge, c.PoolEventMaxAge)
	}
	if c.SlowThreshold == 0 {
		c.SlowThreshold = defaultSlowThreshold
	}
	if c.RecentWindow == 0 {
		c.RecentWindow = defaultRecentWindow
	}
	if c.HistorySize == 0 {
		c.HistorySize = defaultHistorySize
	}
	if c.RecentWindow > c.HistorySize {
		c.RecentWindow = c.HistorySize
	}
	if c.MaxInFlight == 0 {
		c.MaxInFlight = defaultMaxInFlight
	}
	if c.PoolEventWindow == 0 {
		c.PoolEventWindow = defaultPoolEventWindow
	}
	if c.PoolEventMaxAge == 0 {
		c.PoolEventMaxAge = defaultPoolEventMaxAge
	}
	health, err := c.Health.withDefaults()
	if err != nil {
		return c, err
	}
	c.Health = health
	return c, nil
}

// Engine records operation timings and pool snapshots and derives the
// statistics served by the Facade. It is safe for concurrent use.
type Engine struct {
	cfg     Config
	enabled atomic.Bool
	now     func() time.Time
	started time.Time
	logger  *slog.Logger

	mu         sync.RWMutex
	inFlight   map[Handle]openOperation
	history    *ring[OperationRecord]
	seq        uint64
	overall    runningStats
	byTool     map[string]*runningStats
	pool       *PoolSnapshot
	poolEvents *ring[PoolEvent]
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock replaces the time source, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets the logger used for debug traces of absorbed misuse.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger.With("component", "performance_monitor")
		}
	}
}

// NewEngine constructs an Engine from cfg.
func NewEngine(cfg Config, opts ...Option) (*Engine, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, fmt.Errorf("invalid performance monitoring configuration: %w", err)
	}
	e := &Engine{
		cfg:        cfg,
		now:        time.Now,
		logger:     slog.New(slog.DiscardHandler),
		inFlight:   make(map[Handle]openOperation),
		history:    newRing[OperationRecord](cfg.HistorySize),
		byTool:     make(map[string]*runningStats),
		poolEvents: newRing[PoolEvent](cfg.PoolEventWindow),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.started = e.now()
	e.enabled.Store(cfg.Enabled)
	return e, nil
}

// Enabled reports whether the engine currently records events.
func (e *Engine) Enabled() bool {
	return e.enabled.Load()
}

// SetEnabled toggles recording. Data recorded so far is kept.
func (e *Engine) SetEnabled(enabled bool) {
	e.enabled.Store(enabled)
}

// Config returns the effective configuration, defaults applied.
func (e *Engine) Config() Config {
	return e.cfg
}

// Uptime returns the time elapsed since the engine was constructed.
func (e *Engine) Uptime() time.Duration {
	return e.now().Sub(e.started)
}
