package monitor

import (
	"sync"
	"time"

	"github.com/jusdhrv/Trequer-Dashboard/pkg/reading"
)

// MaxConsecutiveFailures is how many purge failures in a row a class may
// have before it is reported unhealthy.
const MaxConsecutiveFailures = 3

type classState struct {
	lastSuccess       time.Time
	lastAttempt       time.Time
	consecutiveErrors int
	lastError         string
	lastDeleted       int
	totalDeleted      int64
}

// RetentionMonitor tracks purge health per data class. It implements
// retention.Recorder.
type RetentionMonitor struct {
	mu         sync.RWMutex
	classes    map[reading.DataClass]*classState
	staleAfter time.Duration
	now        func() time.Time
}

// NewRetentionMonitor creates a monitor. A class whose last success is
// older than staleAfter is unhealthy; zero disables the staleness check,
// which suits deployments where an external cron drives purges.
func NewRetentionMonitor(staleAfter time.Duration) *RetentionMonitor {
	m := &RetentionMonitor{
		classes:    make(map[reading.DataClass]*classState),
		staleAfter: staleAfter,
		now:        time.Now,
	}
	for _, c := range reading.Classes() {
		m.classes[c] = &classState{}
	}
	return m
}

func (m *RetentionMonitor) state(class reading.DataClass) *classState {
	s, ok := m.classes[class]
	if !ok {
		s = &classState{}
		m.classes[class] = s
	}
	return s
}

// RecordSuccess records a successful purge of class.
func (m *RetentionMonitor) RecordSuccess(class reading.DataClass, deleted int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.state(class)
	now := m.now()
	s.lastSuccess = now
	s.lastAttempt = now
	s.consecutiveErrors = 0
	s.lastError = ""
	s.lastDeleted = deleted
	s.totalDeleted += int64(deleted)
}

// RecordFailure records a failed purge of class.
func (m *RetentionMonitor) RecordFailure(class reading.DataClass, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.state(class)
	s.lastAttempt = m.now()
	s.consecutiveErrors++
	if err != nil {
		s.lastError = err.Error()
	}
}

// healthy must be called with mu held.
func (m *RetentionMonitor) healthy(s *classState) bool {
	if s.consecutiveErrors > MaxConsecutiveFailures {
		return false
	}
	if m.staleAfter > 0 && !s.lastAttempt.IsZero() {
		if s.lastSuccess.IsZero() || m.now().Sub(s.lastSuccess) > m.staleAfter {
			return false
		}
	}
	return true
}

// IsHealthy returns false if any class has failed more than
// MaxConsecutiveFailures times in a row or has gone stale.
func (m *RetentionMonitor) IsHealthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.classes {
		if !m.healthy(s) {
			return false
		}
	}
	return true
}

// ClassStatus is the health of one data class.
type ClassStatus struct {
	Healthy           bool   `json:"healthy"`
	LastSuccess       string `json:"last_success,omitempty"`
	TimeSinceSuccess  string `json:"time_since_success,omitempty"`
	LastAttempt       string `json:"last_attempt,omitempty"`
	LastDeleted       int    `json:"last_deleted"`
	TotalDeleted      int64  `json:"total_deleted"`
	ConsecutiveErrors int    `json:"consecutive_errors,omitempty"`
	LastError         string `json:"last_error,omitempty"`
}

// RetentionStatus is reported by /v1/health.
type RetentionStatus struct {
	Healthy bool                              `json:"healthy"`
	Classes map[reading.DataClass]ClassStatus `json:"classes"`
}

// Status returns the current retention status for health checks.
func (m *RetentionMonitor) Status() RetentionStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	status := RetentionStatus{Healthy: true, Classes: make(map[reading.DataClass]ClassStatus, len(m.classes))}

	for class, s := range m.classes {
		cs := ClassStatus{
			Healthy:      m.healthy(s),
			LastDeleted:  s.lastDeleted,
			TotalDeleted: s.totalDeleted,
		}
		if !s.lastSuccess.IsZero() {
			cs.LastSuccess = s.lastSuccess.Format(time.RFC3339)
			cs.TimeSinceSuccess = now.Sub(s.lastSuccess).Round(time.Second).String()
		}
		if !s.lastAttempt.IsZero() {
			cs.LastAttempt = s.lastAttempt.Format(time.RFC3339)
		}
		if s.consecutiveErrors > 0 {
			cs.ConsecutiveErrors = s.consecutiveErrors
			cs.LastError = s.lastError
		}
		if !cs.Healthy {
			status.Healthy = false
		}
		status.Classes[class] = cs
	}

	return status
}
