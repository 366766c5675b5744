package build

import (
	"sync"
	"time"
)

// StageRun is one timed execution of a stage or task.
type StageRun struct {
	Name     string
	Duration time.Duration
	Err      error
}

// Metrics tracks stage runs over the lifetime of a process, which for dev
// spans every watch-triggered rebuild.
type Metrics struct {
	TotalRuns       int64
	SuccessfulRuns  int64
	FailedRuns      int64
	AverageDuration time.Duration
	TotalDuration   time.Duration
	LastFailure     string
	mutex           sync.RWMutex
}

// NewMetrics creates a new metrics tracker
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Record records a stage run in the metrics
func (m *Metrics) Record(run StageRun) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.TotalRuns++
	m.TotalDuration += run.Duration

	if run.Err != nil {
		m.FailedRuns++
		m.LastFailure = run.Name
	} else {
		m.SuccessfulRuns++
	}

	m.AverageDuration = m.TotalDuration / time.Duration(m.TotalRuns)
}

// Snapshot returns a copy of the current metrics
func (m *Metrics) Snapshot() Metrics {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return Metrics{
		TotalRuns:       m.TotalRuns,
		SuccessfulRuns:  m.SuccessfulRuns,
		FailedRuns:      m.FailedRuns,
		AverageDuration: m.AverageDuration,
		TotalDuration:   m.TotalDuration,
		LastFailure:     m.LastFailure,
	}
}

// SuccessRate returns the success rate as a percentage
func (m *Metrics) SuccessRate() float64 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if m.TotalRuns == 0 {
		return 0.0
	}

	return float64(m.SuccessfulRuns) / float64(m.TotalRuns) * 100.0
}
