package elevation

import (
	"sync"
	"time"
)

// Metrics contains operational metrics for the elevation mechanism.
type Metrics struct {
	mu                   sync.RWMutex
	ElevationAttempts    int64         `json:"elevation_attempts"`
	ElevationSuccesses   int64         `json:"elevation_successes"`
	ElevationFailures    int64         `json:"elevation_failures"`
	TotalElevationTime   time.Duration `json:"total_elevation_time"`
	AverageElevationTime time.Duration `json:"average_elevation_time"`
	LastElevationTime    time.Time     `json:"last_elevation_time"`
	LastError            string        `json:"last_error,omitempty"`
}

// RecordElevationSuccess records a successful elevation.
func (m *Metrics) RecordElevationSuccess(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ElevationAttempts++
	m.ElevationSuccesses++
	m.TotalElevationTime += duration
	m.AverageElevationTime = m.TotalElevationTime / time.Duration(m.ElevationSuccesses)
	m.LastElevationTime = time.Now()
}

// RecordElevationFailure records a failed elevation.
func (m *Metrics) RecordElevationFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ElevationAttempts++
	m.ElevationFailures++
	m.LastError = err.Error()
}

// Snapshot returns a thread-safe copy of the current metrics.
func (m *Metrics) Snapshot() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return Metrics{
		ElevationAttempts:    m.ElevationAttempts,
		ElevationSuccesses:   m.ElevationSuccesses,
		ElevationFailures:    m.ElevationFailures,
		TotalElevationTime:   m.TotalElevationTime,
		AverageElevationTime: m.AverageElevationTime,
		LastElevationTime:    m.LastElevationTime,
		LastError:            m.LastError,
	}
}
