package monitor

import (
	"time"

	"github.com/google/uuid"
)

// Handle identifies one in-flight operation between Start and End.
type Handle string

// NoopHandle is returned by Start while monitoring is disabled. Ending it does nothing.
const NoopHandle Handle = ""

// Status is the terminal status of an operation.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Outcome is the result metadata passed to End.
type Outcome struct {
	Status Status
	// ResultSize is the number of rows or items produced, nil when unknown.
	ResultSize *int
	// Streamed is set when results were delivered incrementally.
	Streamed bool
}

// OperationRecord is a finalized operation.
type OperationRecord struct {
	Handle     Handle
	Tool       string
	StartedAt  time.Time
	EndedAt    time.Time
	Duration   time.Duration
	Status     Status
	ResultSize *int
	Streamed   bool
	// seq is the insertion order into the history, used to break timestamp ties.
	seq uint64
}

type openOperation struct {
	tool      string
	startedAt time.Time
}

// PoolSnapshot is the state of the connection pool at capture time.
// Errors and Retries are cumulative counters.
type PoolSnapshot struct {
	Total      int
	Active     int
	Idle       int
	Pending    int
	Errors     int64
	Retries    int64
	CapturedAt time.Time
	Uptime     time.Duration
}

// PoolEventKind classifies a PoolEvent.
type PoolEventKind string

const (
	PoolEventConnectionOpened PoolEventKind = "connection_opened"
	PoolEventConnectionClosed PoolEventKind = "connection_closed"
	PoolEventError            PoolEventKind = "error"
	PoolEventRetry            PoolEventKind = "retry"
)

// PoolEvent is a change between two consecutive pool snapshots.
type PoolEvent struct {
	Kind       PoolEventKind
	Count      int64
	OccurredAt time.Time
}

// Start begins tracking an operation of the given tool and returns its handle.
func (e *Engine) Start(tool string) Handle {
	if !e.Enabled() {
		return NoopHandle
	}
	h := Handle(uuid.NewString())
	now := e.now()

	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.inFlight) >= e.cfg.MaxInFlight {
		e.evictOldestInFlightLocked()
	}
	e.inFlight[h] = openOperation{tool: tool, startedAt: now}
	return h
}

// End finalizes the operation identified by h. Unknown or already ended
// handles are ignored.
func (e *Engine) End(h Handle, outcome Outcome) {
	if h == NoopHandle {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	// read under the lock so that end times follow the insertion order
	now := e.now()
	op, ok := e.inFlight[h]
	if !ok {
		e.logger.Debug("ignoring end of unknown operation", "handle", h)
		return
	}
	delete(e.inFlight, h)
	if !e.Enabled() {
		// monitoring was switched off while the operation ran
		return
	}

	status := outcome.Status
	if status != StatusError {
		status = StatusCompleted
	}
	duration := now.Sub(op.startedAt)
	if duration < 0 {
		duration = 0
	}
	e.seq++
	record := OperationRecord{
		Handle:     h,
		Tool:       op.tool,
		StartedAt:  op.startedAt,
		EndedAt:    now,
		Duration:   duration,
		Status:     status,
		ResultSize: copyInt(outcome.ResultSize),
		Streamed:   outcome.Streamed,
		seq:        e.seq,
	}
	e.history.push(record)
	e.overall.add(record, e.cfg.SlowThreshold)
	stats, ok := e.byTool[op.tool]
	if !ok {
		stats = &runningStats{}
		e.byTool[op.tool] = stats
	}
	stats.add(record, e.cfg.SlowThreshold)
}

// InFlight returns the number of operations started but not yet ended.
func (e *Engine) InFlight() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.inFlight)
}

// RecordPoolSnapshot replaces the current pool snapshot and records the
// changes relative to the previous one as pool events.
func (e *Engine) RecordPoolSnapshot(snapshot PoolSnapshot) {
	if !e.Enabled() {
		return
	}
	now := e.now()
	if snapshot.CapturedAt.IsZero() {
		snapshot.CapturedAt = now
	}
	snapshot.Uptime = snapshot.CapturedAt.Sub(e.started)

	e.mu.Lock()
	defer e.mu.Unlock()
	if prev := e.pool; prev != nil {
		at := snapshot.CapturedAt
		switch delta := snapshot.Total - prev.Total; {
		case delta > 0:
			e.poolEvents.push(PoolEvent{Kind: PoolEventConnectionOpened, Count: int64(delta), OccurredAt: at})
		case delta < 0:
			e.poolEvents.push(PoolEvent{Kind: PoolEventConnectionClosed, Count: int64(-delta), OccurredAt: at})
		}
		// counters going backwards mean the source was reset: take the new value as baseline
		if delta := snapshot.Errors - prev.Errors; delta > 0 {
			e.poolEvents.push(PoolEvent{Kind: PoolEventError, Count: delta, OccurredAt: at})
		}
		if delta := snapshot.Retries - prev.Retries; delta > 0 {
			e.poolEvents.push(PoolEvent{Kind: PoolEventRetry, Count: delta, OccurredAt: at})
		}
	}
	e.pool = &snapshot
	e.trimPoolEventsLocked(now)
}

func (e *Engine) trimPoolEventsLocked(now time.Time) {
	cutoff := now.Add(-e.cfg.PoolEventMaxAge)
	e.poolEvents.dropOldestWhile(func(ev PoolEvent) bool {
		return ev.OccurredAt.Before(cutoff)
	})
}

// evictOldestInFlightLocked drops the longest running open operation, either
// leaked by its caller or still running when more than MaxInFlight operations
// run at once. The end of an evicted operation is not recorded.
func (e *Engine) evictOldestInFlightLocked() {
	var (
		oldest Handle
		at     time.Time
		found  bool
	)
	for h, op := range e.inFlight {
		if !found || op.startedAt.Before(at) {
			oldest, at, found = h, op.startedAt, true
		}
	}
	if found {
		delete(e.inFlight, oldest)
		e.logger.Warn("evicted in-flight operation, its completion will not be recorded",
			"handle", oldest,
			"started_at", at,
			"max_in_flight", e.cfg.MaxInFlight)
	}
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
