package monitor

import (
	"math"
	"sort"
	"time"
)

// runningStats is an incrementally updated aggregate. mean is in milliseconds.
type runningStats struct {
	count  int64
	errors int64
	slow   int64
	mean   float64
}

func (s *runningStats) add(r OperationRecord, slowThreshold time.Duration) {
	s.count++
	s.mean += (durationMS(r.Duration) - s.mean) / float64(s.count)
	if r.Status == StatusError {
		s.errors++
	}
	if r.Duration >= slowThreshold {
		s.slow++
	}
}

// OverallStats covers every operation since the engine started.
type OverallStats struct {
	TotalQueries int64   `json:"totalQueries"`
	AvgQueryTime float64 `json:"avgQueryTime"`
	SlowQueries  int64   `json:"slowQueries"`
	Errors       int64   `json:"errors"`
	ErrorRate    float64 `json:"errorRate"`
}

// RecentStats covers the most recent finalized operations only.
type RecentStats struct {
	WindowSize  int     `json:"windowSize"`
	Count       int     `json:"count"`
	AvgDuration float64 `json:"avgDuration"`
	SlowQueries int     `json:"slowQueries"`
	Errors      int     `json:"errors"`
	ErrorRate   float64 `json:"errorRate"`
}

// ToolStats is the per-tool breakdown.
type ToolStats struct {
	Count         int64   `json:"count"`
	AvgTime       float64 `json:"avgTime"`
	Errors        int64   `json:"errors"`
	SlowQueries   int64   `json:"slowQueries"`
	ErrorRate     float64 `json:"errorRate"`
	SlowQueryRate float64 `json:"slowQueryRate"`
}

// QueryEntry is one finalized operation in a listing.
type QueryEntry struct {
	ID         string  `json:"id"`
	Tool       string  `json:"tool"`
	Duration   float64 `json:"duration"`
	Status     Status  `json:"status"`
	ResultSize *int    `json:"resultSize,omitempty"`
	Streamed   bool    `json:"streamed"`
	StartedAt  string  `json:"startedAt"`
	Timestamp  string  `json:"timestamp"`
}

// QueryFilter selects entries of a listing.
type QueryFilter struct {
	Tool     string
	SlowOnly bool
	// Limit bounds the number of returned entries, <= 0 means unbounded.
	Limit int
}

// PoolRates summarises the pool events of the recent time window.
type PoolRates struct {
	WindowSeconds     float64 `json:"windowSeconds"`
	Events            int     `json:"events"`
	ConnectionsOpened int64   `json:"connectionsOpened"`
	ConnectionsClosed int64   `json:"connectionsClosed"`
	Errors            int64   `json:"errors"`
	Retries           int64   `json:"retries"`
	ErrorsPerMinute   float64 `json:"errorsPerMinute"`
	RetriesPerMinute  float64 `json:"retriesPerMinute"`
}

// Overall returns the lifetime statistics.
func (e *Engine) Overall() OverallStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.overallLocked()
}

// Recent returns statistics over the recent window.
func (e *Engine) Recent() RecentStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.recentLocked(e.now())
}

// ByTool returns the per-tool breakdown for every tool seen so far.
func (e *Engine) ByTool() map[string]ToolStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.byToolLocked()
}

// Queries returns the retained operations matching f, most recent first.
func (e *Engine) Queries(f QueryFilter) []QueryEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.queriesLocked(f)
}

// PoolRates returns the pool event rates over the configured window.
func (e *Engine) PoolRates() PoolRates {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.poolRatesLocked(e.now())
}

// CurrentPool returns a copy of the latest pool snapshot, if any.
func (e *Engine) CurrentPool() (PoolSnapshot, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.pool == nil {
		return PoolSnapshot{}, false
	}
	return *e.pool, true
}

func (e *Engine) overallLocked() OverallStats {
	return OverallStats{
		TotalQueries: e.overall.count,
		AvgQueryTime: round2(e.overall.mean),
		SlowQueries:  e.overall.slow,
		Errors:       e.overall.errors,
		ErrorRate:    percentage(e.overall.errors, e.overall.count),
	}
}

func (e *Engine) recentLocked(now time.Time) RecentStats {
	stats := RecentStats{WindowSize: e.cfg.RecentWindow}
	var (
		total  float64
		errors int
	)
	for _, r := range e.history.newest(e.cfg.RecentWindow) {
		if e.cfg.RecentMaxAge > 0 && now.Sub(r.EndedAt) > e.cfg.RecentMaxAge {
			continue
		}
		stats.Count++
		total += durationMS(r.Duration)
		if r.Status == StatusError {
			errors++
		}
		if r.Duration >= e.cfg.SlowThreshold {
			stats.SlowQueries++
		}
	}
	stats.Errors = errors
	if stats.Count > 0 {
		stats.AvgDuration = round2(total / float64(stats.Count))
		stats.ErrorRate = percentage(int64(errors), int64(stats.Count))
	}
	return stats
}

func (e *Engine) byToolLocked() map[string]ToolStats {
	result := make(map[string]ToolStats, len(e.byTool))
	for tool, s := range e.byTool {
		if s.count == 0 {
			continue
		}
		result[tool] = ToolStats{
			Count:         s.count,
			AvgTime:       round2(s.mean),
			Errors:        s.errors,
			SlowQueries:   s.slow,
			ErrorRate:     percentage(s.errors, s.count),
			SlowQueryRate: percentage(s.slow, s.count),
		}
	}
	return result
}

func (e *Engine) queriesLocked(f QueryFilter) []QueryEntry {
	// newest insertion first, so the stable sort keeps later insertions ahead on ties
	records := make([]OperationRecord, 0, e.history.Len())
	for _, r := range e.history.newest(0) {
		if f.Tool != "" && r.Tool != f.Tool {
			continue
		}
		if f.SlowOnly && r.Duration < e.cfg.SlowThreshold {
			continue
		}
		records = append(records, r)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].EndedAt.After(records[j].EndedAt)
	})
	if f.Limit > 0 && len(records) > f.Limit {
		records = records[:f.Limit]
	}
	entries := make([]QueryEntry, 0, len(records))
	for _, r := range records {
		entries = append(entries, QueryEntry{
			ID:         string(r.Handle),
			Tool:       r.Tool,
			Duration:   round2(durationMS(r.Duration)),
			Status:     r.Status,
			ResultSize: copyInt(r.ResultSize),
			Streamed:   r.Streamed,
			StartedAt:  r.StartedAt.UTC().Format(time.RFC3339Nano),
			Timestamp:  r.EndedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	return entries
}

func (e *Engine) poolRatesLocked(now time.Time) PoolRates {
	window := e.cfg.PoolEventMaxAge
	rates := PoolRates{WindowSeconds: window.Seconds()}
	cutoff := now.Add(-window)
	for i := 0; i < e.poolEvents.Len(); i++ {
		ev := e.poolEvents.at(i)
		if ev.OccurredAt.Before(cutoff) {
			continue
		}
		rates.Events++
		switch ev.Kind {
		case PoolEventConnectionOpened:
			rates.ConnectionsOpened += ev.Count
		case PoolEventConnectionClosed:
			rates.ConnectionsClosed += ev.Count
		case PoolEventError:
			rates.Errors += ev.Count
		case PoolEventRetry:
			rates.Retries += ev.Count
		}
	}
	if minutes := window.Minutes(); minutes > 0 {
		rates.ErrorsPerMinute = round2(float64(rates.Errors) / minutes)
		rates.RetriesPerMinute = round2(float64(rates.Retries) / minutes)
	}
	return rates
}

func durationMS(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func percentage(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return round2(float64(part) / float64(total) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
