package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateHealth(t *testing.T) {
	policy := DefaultHealthPolicy()

	testdata := []struct {
		name     string
		snapshot PoolSnapshot
		rates    PoolRates
		expected Health
	}{
		{
			name:     "healthy",
			snapshot: PoolSnapshot{Total: 10, Active: 3, Idle: 7},
			expected: Health{Status: HealthHealthy, Score: 100, Issues: []string{}},
		},
		{
			name:     "busy but nobody waiting",
			snapshot: PoolSnapshot{Total: 10, Active: 10},
			expected: Health{Status: HealthHealthy, Score: 100, Issues: []string{}},
		},
		{
			name:     "high error count",
			snapshot: PoolSnapshot{Total: 10, Active: 2, Idle: 8, Errors: 10},
			expected: Health{Status: HealthWarning, Score: 60, Issues: []string{"High error count detected"}},
		},
		{
			name:     "near capacity",
			snapshot: PoolSnapshot{Total: 10, Active: 9, Idle: 1, Pending: 2},
			expected: Health{Status: HealthWarning, Score: 75, Issues: []string{"Connection pool near capacity"}},
		},
		{
			name:     "no active connections",
			snapshot: PoolSnapshot{Total: 10, Active: 0, Pending: 1},
			expected: Health{Status: HealthCritical, Score: 40, Issues: []string{"No active connections available"}},
		},
		{
			name:     "elevated error rate",
			snapshot: PoolSnapshot{Total: 10, Active: 1},
			rates:    PoolRates{ErrorsPerMinute: 1.5},
			expected: Health{Status: HealthWarning, Score: 75, Issues: []string{"Elevated connection error rate: 1.50/min"}},
		},
		{
			name:     "elevated retry rate",
			snapshot: PoolSnapshot{Total: 10, Active: 1},
			rates:    PoolRates{RetriesPerMinute: 4},
			expected: Health{Status: HealthWarning, Score: 75, Issues: []string{"Elevated retry rate: 4.00/min"}},
		},
		{
			name:     "everything at once is floored",
			snapshot: PoolSnapshot{Total: 10, Active: 0, Pending: 3, Errors: 50},
			rates:    PoolRates{ErrorsPerMinute: 10, RetriesPerMinute: 10},
			expected: Health{Status: HealthCritical, Score: 0, Issues: []string{
				"High error count detected",
				"No active connections available",
				"Elevated connection error rate: 10.00/min",
				"Elevated retry rate: 10.00/min",
			}},
		},
	}
	for _, td := range testdata {
		t.Run(td.name, func(t *testing.T) {
			// when
			health := evaluateHealth(&td.snapshot, td.rates, policy)

			// then
			assert.Equal(t, td.expected, health)
		})
	}

	t.Run("no snapshot", func(t *testing.T) {
		// when
		health := evaluateHealth(nil, PoolRates{}, policy)

		// then
		assert.Equal(t, HealthUnknown, health.Status)
		assert.Equal(t, []string{"No pool metrics recorded yet"}, health.Issues)
	})
}

func TestHealthIsMonotonic(t *testing.T) {
	policy := DefaultHealthPolicy()
	steps := []struct {
		snapshot PoolSnapshot
		rates    PoolRates
	}{
		{snapshot: PoolSnapshot{Total: 10, Active: 5, Pending: 0}},
		{snapshot: PoolSnapshot{Total: 10, Active: 5, Pending: 0}, rates: PoolRates{RetriesPerMinute: 3}},
		{snapshot: PoolSnapshot{Total: 10, Active: 9, Pending: 2}, rates: PoolRates{RetriesPerMinute: 3}},
		{snapshot: PoolSnapshot{Total: 10, Active: 9, Pending: 2, Errors: 12}, rates: PoolRates{RetriesPerMinute: 3}},
		{snapshot: PoolSnapshot{Total: 10, Active: 9, Pending: 2, Errors: 12}, rates: PoolRates{RetriesPerMinute: 3, ErrorsPerMinute: 5}},
	}
	rank := map[HealthStatus]int{HealthHealthy: 0, HealthWarning: 1, HealthCritical: 2}

	previous := evaluateHealth(&steps[0].snapshot, steps[0].rates, policy)
	assert.Equal(t, HealthHealthy, previous.Status)
	for i, step := range steps[1:] {
		health := evaluateHealth(&step.snapshot, step.rates, policy)
		assert.LessOrEqual(t, health.Score, previous.Score, "step %d", i+1)
		assert.GreaterOrEqual(t, rank[health.Status], rank[previous.Status], "step %d", i+1)
		assert.Equal(t, classify(health.Score), health.Status)
		previous = health
	}
	assert.Equal(t, HealthCritical, previous.Status)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, HealthHealthy, classify(100))
	assert.Equal(t, HealthHealthy, classify(80))
	assert.Equal(t, HealthWarning, classify(79))
	assert.Equal(t, HealthWarning, classify(50))
	assert.Equal(t, HealthCritical, classify(49))
	assert.Equal(t, HealthCritical, classify(0))
}

func TestEngineHealth(t *testing.T) {
	// given
	e, clock := newTestEngine(t, DefaultConfig())
	e.RecordPoolSnapshot(PoolSnapshot{Total: 4, Active: 1, Idle: 3})
	clock.Advance(time.Second)

	// when
	e.RecordPoolSnapshot(PoolSnapshot{Total: 4, Active: 1, Idle: 3, Errors: 6})

	// then
	health := e.Health()
	require.Len(t, health.Issues, 1)
	assert.Equal(t, "Elevated connection error rate: 1.20/min", health.Issues[0])
	assert.Equal(t, HealthWarning, health.Status)
}
