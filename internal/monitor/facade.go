package monitor

import (
	"encoding/json"
	"time"
)

// DisabledMessage is returned by every Facade view while monitoring is off.
const DisabledMessage = "Performance monitoring is disabled"

// DefaultQueryLimit is used when GetQueryStats receives no usable limit.
const DefaultQueryLimit = 50

// Timeframe labels the GetStats response.
type Timeframe string

const (
	TimeframeAll    Timeframe = "all"
	TimeframeRecent Timeframe = "recent"
)

// ParseTimeframe normalizes s to a known Timeframe, falling back to TimeframeAll.
func ParseTimeframe(s string) Timeframe {
	switch Timeframe(s) {
	case TimeframeRecent:
		return TimeframeRecent
	default:
		return TimeframeAll
	}
}

// Stats is the response of GetStats.
type Stats struct {
	Enabled       bool          `json:"enabled"`
	Message       string        `json:"message,omitempty"`
	Timeframe     Timeframe     `json:"timeframe,omitempty"`
	Uptime        string        `json:"uptime,omitempty"`
	UptimeSeconds float64       `json:"uptimeSeconds,omitempty"`
	Overall       *OverallStats `json:"overall,omitempty"`
	Recent        *RecentStats  `json:"recent,omitempty"`
	Pool          *PoolSummary  `json:"pool,omitempty"`
}

// QueryStats is the response of GetQueryStats.
type QueryStats struct {
	Enabled      bool                 `json:"enabled"`
	Message      string               `json:"message,omitempty"`
	Limit        int                  `json:"limit,omitempty"`
	Tool         string               `json:"tool,omitempty"`
	SlowOnly     bool                 `json:"slowOnly,omitempty"`
	TotalQueries int64                `json:"totalQueries"`
	Queries      []QueryEntry         `json:"queries"`
	SlowQueries  []QueryEntry         `json:"slowQueries"`
	ByTool       map[string]ToolStats `json:"byTool"`
}

// MarshalJSON reduces the disabled response to its enabled flag and message.
// An active response always carries the listing and the summaries, even when empty.
func (s QueryStats) MarshalJSON() ([]byte, error) {
	if !s.Enabled {
		return json.Marshal(struct {
			Enabled bool   `json:"enabled"`
			Message string `json:"message,omitempty"`
		}{Enabled: s.Enabled, Message: s.Message})
	}
	type queryStats QueryStats
	active := queryStats(s)
	if active.Queries == nil {
		active.Queries = []QueryEntry{}
	}
	if active.SlowQueries == nil {
		active.SlowQueries = []QueryEntry{}
	}
	if active.ByTool == nil {
		active.ByTool = map[string]ToolStats{}
	}
	return json.Marshal(active)
}

// PoolStats is the response of GetPoolStats.
type PoolStats struct {
	Enabled bool         `json:"enabled"`
	Message string       `json:"message,omitempty"`
	Current *PoolSummary `json:"current,omitempty"`
	Recent  *PoolRates   `json:"recent,omitempty"`
	Health  *Health      `json:"health,omitempty"`
}

// PoolSummary is the reporting form of a PoolSnapshot.
type PoolSummary struct {
	Total         int     `json:"total"`
	Active        int     `json:"active"`
	Idle          int     `json:"idle"`
	Pending       int     `json:"pending"`
	Errors        int64   `json:"errors"`
	Retries       int64   `json:"retries"`
	Utilization   float64 `json:"utilization"`
	CapturedAt    string  `json:"capturedAt"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
}

func summarize(s PoolSnapshot) *PoolSummary {
	summary := &PoolSummary{
		Total:         s.Total,
		Active:        s.Active,
		Idle:          s.Idle,
		Pending:       s.Pending,
		Errors:        s.Errors,
		Retries:       s.Retries,
		CapturedAt:    s.CapturedAt.UTC().Format(time.RFC3339Nano),
		UptimeSeconds: round2(s.Uptime.Seconds()),
	}
	if s.Total > 0 {
		summary.Utilization = percentage(int64(s.Active), int64(s.Total))
	}
	return summary
}

type engineState int

const (
	stateAbsent engineState = iota
	stateDisabled
	stateActive
)

// Facade serves the read-only reporting views of an Engine. A Facade built
// around a nil Engine reports ErrNotInitialized from every view.
type Facade struct {
	engine *Engine
}

// NewFacade returns a Facade over engine, which may be nil.
func NewFacade(engine *Engine) *Facade {
	return &Facade{engine: engine}
}

func (f *Facade) state() engineState {
	switch {
	case f == nil || f.engine == nil:
		return stateAbsent
	case !f.engine.Enabled():
		return stateDisabled
	default:
		return stateActive
	}
}

// GetStats returns the overall and recent statistics plus a pool summary.
// Unknown timeframes are treated as TimeframeAll.
func (f *Facade) GetStats(timeframe string) (Stats, error) {
	return guard(OpGetStats, func() (Stats, error) {
		switch f.state() {
		case stateAbsent:
			return Stats{}, ErrNotInitialized
		case stateDisabled:
			return Stats{Enabled: false, Message: DisabledMessage}, nil
		}
		e := f.engine
		now := e.now()
		e.mu.RLock()
		defer e.mu.RUnlock()
		uptime := now.Sub(e.started)
		overall := e.overallLocked()
		recent := e.recentLocked(now)
		stats := Stats{
			Enabled:       true,
			Timeframe:     ParseTimeframe(timeframe),
			Uptime:        uptime.Round(time.Second).String(),
			UptimeSeconds: round2(uptime.Seconds()),
			Overall:       &overall,
			Recent:        &recent,
		}
		if e.pool != nil {
			stats.Pool = summarize(*e.pool)
		}
		return stats, nil
	})
}

// GetQueryStats lists the most recent operations along with the per-tool
// breakdown. A limit <= 0 means DefaultQueryLimit. The tool filter only
// restricts the listing, never the breakdown.
func (f *Facade) GetQueryStats(limit int, tool string, slowOnly bool) (QueryStats, error) {
	return guard(OpGetQueryStats, func() (QueryStats, error) {
		switch f.state() {
		case stateAbsent:
			return QueryStats{}, ErrNotInitialized
		case stateDisabled:
			return QueryStats{Enabled: false, Message: DisabledMessage}, nil
		}
		if limit <= 0 {
			limit = DefaultQueryLimit
		}
		e := f.engine
		e.mu.RLock()
		defer e.mu.RUnlock()
		return QueryStats{
			Enabled:      true,
			Limit:        limit,
			Tool:         tool,
			SlowOnly:     slowOnly,
			TotalQueries: e.overall.count,
			Queries:      e.queriesLocked(QueryFilter{Tool: tool, SlowOnly: slowOnly, Limit: limit}),
			SlowQueries:  e.queriesLocked(QueryFilter{SlowOnly: true, Limit: limit}),
			ByTool:       e.byToolLocked(),
		}, nil
	})
}

// GetPoolStats returns the latest pool snapshot, the recent pool rates and
// the health verdict.
func (f *Facade) GetPoolStats() (PoolStats, error) {
	return guard(OpGetPoolStats, func() (PoolStats, error) {
		switch f.state() {
		case stateAbsent:
			return PoolStats{}, ErrNotInitialized
		case stateDisabled:
			return PoolStats{Enabled: false, Message: DisabledMessage}, nil
		}
		e := f.engine
		now := e.now()
		e.mu.RLock()
		defer e.mu.RUnlock()
		rates := e.poolRatesLocked(now)
		health := evaluateHealth(e.pool, rates, e.cfg.Health)
		stats := PoolStats{
			Enabled: true,
			Recent:  &rates,
			Health:  &health,
		}
		if e.pool != nil {
			stats.Current = summarize(*e.pool)
		}
		return stats, nil
	})
}
