package monitor

import (
	"context"
	"log/slog"
	"time"
)

const defaultSampleInterval = 15 * time.Second

// PoolSource provides the current state of a connection pool.
type PoolSource interface {
	PoolSnapshot() PoolSnapshot
}

// PoolSampler periodically records the state of a PoolSource into an Engine.
type PoolSampler struct {
	engine   *Engine
	source   PoolSource
	interval time.Duration
	logger   *slog.Logger
	observe  func(PoolSnapshot)
}

// NewPoolSampler returns a sampler reading source every interval. observe, when
// not nil, receives every sampled snapshot, including while monitoring is disabled.
func NewPoolSampler(engine *Engine, source PoolSource, interval time.Duration, logger *slog.Logger, observe func(PoolSnapshot)) *PoolSampler {
	if interval <= 0 {
		interval = defaultSampleInterval
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &PoolSampler{
		engine:   engine,
		source:   source,
		interval: interval,
		logger:   logger.With("component", "pool_sampler"),
		observe:  observe,
	}
}

// Run samples the pool immediately and then on every tick. It blocks until the context is cancelled.
func (s *PoolSampler) Run(ctx context.Context) {
	s.logger.Info("pool sampler started", "interval", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Sample()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("pool sampler stopped")
			return
		case <-ticker.C:
			s.Sample()
		}
	}
}

// Sample takes a single snapshot of the pool.
func (s *PoolSampler) Sample() {
	if s.source == nil {
		return
	}
	snapshot := s.source.PoolSnapshot()
	if s.engine != nil {
		s.engine.RecordPoolSnapshot(snapshot)
	}
	if s.observe != nil {
		s.observe(snapshot)
	}
	s.logger.Debug("sampled connection pool",
		"total", snapshot.Total,
		"active", snapshot.Active,
		"idle", snapshot.Idle,
		"pending", snapshot.Pending,
		"errors", snapshot.Errors,
		"retries", snapshot.Retries)
}
