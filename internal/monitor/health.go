package monitor

import (
	"fmt"
	"time"
)

// HealthStatus classifies a health score.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthWarning  HealthStatus = "warning"
	HealthCritical HealthStatus = "critical"
	// HealthUnknown is reported until the first pool snapshot is recorded.
	HealthUnknown HealthStatus = "unknown"
)

const (
	penaltyErrorCount   = 40
	penaltyNearCapacity = 25
	penaltyNoActive     = 60
	penaltyErrorRate    = 25
	penaltyRetryRate    = 25

	healthyScore = 80
	warningScore = 50
)

// HealthPolicy holds the thresholds of the pool health evaluation.
type HealthPolicy struct {
	// ErrorCountThreshold is the cumulative pool error count that is considered high.
	ErrorCountThreshold int64
	// UtilizationThreshold is the active/total ratio above which the pool is near capacity.
	UtilizationThreshold float64
	// ErrorRateThreshold is the tolerated number of pool errors per minute.
	ErrorRateThreshold float64
	// RetryRateThreshold is the tolerated number of acquire retries per minute.
	RetryRateThreshold float64
}

// DefaultHealthPolicy returns the default health thresholds.
func DefaultHealthPolicy() HealthPolicy {
	return HealthPolicy{
		ErrorCountThreshold:  10,
		UtilizationThreshold: 0.8,
		ErrorRateThreshold:   1,
		RetryRateThreshold:   2,
	}
}

func (p HealthPolicy) withDefaults() (HealthPolicy, error) {
	if p.ErrorCountThreshold < 0 || p.UtilizationThreshold < 0 || p.UtilizationThreshold > 1 ||
		p.ErrorRateThreshold < 0 || p.RetryRateThreshold < 0 {
		return p, fmt.Errorf("invalid health policy: %+v", p)
	}
	d := DefaultHealthPolicy()
	if p.ErrorCountThreshold == 0 {
		p.ErrorCountThreshold = d.ErrorCountThreshold
	}
	if p.UtilizationThreshold == 0 {
		p.UtilizationThreshold = d.UtilizationThreshold
	}
	if p.ErrorRateThreshold == 0 {
		p.ErrorRateThreshold = d.ErrorRateThreshold
	}
	if p.RetryRateThreshold == 0 {
		p.RetryRateThreshold = d.RetryRateThreshold
	}
	return p, nil
}

// Health is the verdict on the connection pool.
type Health struct {
	Status HealthStatus `json:"status"`
	Score  int          `json:"score"`
	Issues []string     `json:"issues"`
}

// Health evaluates the latest pool snapshot and the recent pool rates.
func (e *Engine) Health() Health {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.healthLocked(e.now())
}

func (e *Engine) healthLocked(now time.Time) Health {
	return evaluateHealth(e.pool, e.poolRatesLocked(now), e.cfg.Health)
}

// evaluateHealth starts from a perfect score and subtracts one penalty per
// triggered condition. Penalties are additive, so the result does not depend
// on the order of the checks.
func evaluateHealth(snapshot *PoolSnapshot, rates PoolRates, policy HealthPolicy) Health {
	if snapshot == nil {
		return Health{
			Status: HealthUnknown,
			Score:  0,
			Issues: []string{"No pool metrics recorded yet"},
		}
	}
	score := 100
	issues := []string{}
	if snapshot.Errors >= policy.ErrorCountThreshold {
		score -= penaltyErrorCount
		issues = append(issues, "High error count detected")
	}
	if snapshot.Total > 0 && snapshot.Pending > 0 {
		utilization := float64(snapshot.Active) / float64(snapshot.Total)
		if utilization > policy.UtilizationThreshold {
			score -= penaltyNearCapacity
			issues = append(issues, "Connection pool near capacity")
		}
		if snapshot.Active == 0 {
			score -= penaltyNoActive
			issues = append(issues, "No active connections available")
		}
	}
	if rates.ErrorsPerMinute > policy.ErrorRateThreshold {
		score -= penaltyErrorRate
		issues = append(issues, fmt.Sprintf("Elevated connection error rate: %.2f/min", rates.ErrorsPerMinute))
	}
	if rates.RetriesPerMinute > policy.RetryRateThreshold {
		score -= penaltyRetryRate
		issues = append(issues, fmt.Sprintf("Elevated retry rate: %.2f/min", rates.RetriesPerMinute))
	}
	if score < 0 {
		score = 0
	}
	return Health{
		Status: classify(score),
		Score:  score,
		Issues: issues,
	}
}

func classify(score int) HealthStatus {
	switch {
	case score >= healthyScore:
		return HealthHealthy
	case score >= warningScore:
		return HealthWarning
	default:
		return HealthCritical
	}
}
