package monitor

import (
	"context"
	"sync"
)

type resultReportKey struct{}

// ResultReport carries the result metadata of an operation from the code
// that produced the result back to the code that calls End.
type ResultReport struct {
	mu       sync.Mutex
	size     *int
	streamed bool
}

// WithResultReport returns a child context carrying a fresh ResultReport.
func WithResultReport(ctx context.Context) (context.Context, *ResultReport) {
	r := &ResultReport{}
	return context.WithValue(ctx, resultReportKey{}, r), r
}

// ReportResult records the result size of the operation running under ctx.
// It does nothing when ctx carries no ResultReport.
func ReportResult(ctx context.Context, size int, streamed bool) {
	r, ok := ctx.Value(resultReportKey{}).(*ResultReport)
	if !ok || r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.size = &size
	r.streamed = streamed
}

// Outcome builds the Outcome passed to End from the reported result and status.
func (r *ResultReport) Outcome(status Status) Outcome {
	if r == nil {
		return Outcome{Status: status}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return Outcome{
		Status:     status,
		ResultSize: copyInt(r.size),
		Streamed:   r.streamed,
	}
}
