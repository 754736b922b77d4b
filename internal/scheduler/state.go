// Package scheduler drives the monitoring cycle and the periodic maintenance jobs.
package scheduler

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aristath/sentinel-insights/internal/domain"
)

// ErrStopped is returned when a cycle is requested after shutdown
var ErrStopped = errors.New("monitoring stopped")

// Health values reported by Status
const (
	HealthOK            = "ok"
	HealthNoNewInsights = "no-new-insights"
	HealthDegraded      = "degraded"
)

// State is the process-wide monitoring state. It is created at startup,
// handed to the Monitor explicitly and closed at shutdown.
type State struct {
	running atomic.Bool
	closed  atomic.Bool

	mu                  sync.RWMutex
	stage               domain.Stage
	unauthorized        error
	consecutiveFailures int
	degradedAfter       int
	last                *domain.CycleRunRecord
	lastSuccessAt       time.Time
}

// Status is a point-in-time copy of State
type Status struct {
	Health              string                 `json:"health"`
	Stage               domain.Stage           `json:"stage"`
	Running             bool                   `json:"running"`
	Degraded            bool                   `json:"degraded"`
	DegradedReason      string                 `json:"degraded_reason,omitempty"`
	ConsecutiveFailures int                    `json:"consecutive_failures"`
	LastSuccessAt       *time.Time             `json:"last_success_at,omitempty"`
	LastCycle           *domain.CycleRunRecord `json:"last_cycle,omitempty"`
}

// NewState creates a state that reports degraded after degradedAfter consecutive failed cycles
func NewState(degradedAfter int) *State {
	if degradedAfter <= 0 {
		degradedAfter = 1
	}
	return &State{stage: domain.StageIdle, degradedAfter: degradedAfter}
}

// begin claims the single cycle slot
func (s *State) begin() error {
	if s.closed.Load() {
		return ErrStopped
	}
	if !s.running.CompareAndSwap(false, true) {
		return domain.ErrCycleInProgress
	}
	return nil
}

func (s *State) setStage(stage domain.Stage) {
	s.mu.Lock()
	s.stage = stage
	s.mu.Unlock()
}

// Stage returns the stage of the running cycle, idle between cycles
func (s *State) Stage() domain.Stage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stage
}

func (s *State) fetchFailed(err error) {
	if !domain.IsUnauthorized(err) {
		return
	}
	s.mu.Lock()
	s.unauthorized = err
	s.mu.Unlock()
}

func (s *State) fetchSucceeded() {
	s.mu.Lock()
	s.unauthorized = nil
	s.mu.Unlock()
}

// finish records the outcome and releases the cycle slot
func (s *State) finish(rec domain.CycleRunRecord) {
	s.mu.Lock()
	switch {
	case rec.Outcome.Failed():
		s.consecutiveFailures++
	case rec.Outcome == domain.OutcomeCancelled:
	default:
		s.consecutiveFailures = 0
		s.lastSuccessAt = rec.FinishedAt
	}
	s.last = &rec
	s.stage = domain.StageIdle
	s.mu.Unlock()

	s.running.Store(false)
}

// Close rejects further cycles
func (s *State) Close() {
	s.closed.Store(true)
}

// Running reports whether a cycle is in progress
func (s *State) Running() bool {
	return s.running.Load()
}

// Degraded reports whether monitoring needs attention and why
func (s *State) Degraded() (bool, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.degradedLocked()
}

func (s *State) degradedLocked() (bool, string) {
	if s.unauthorized != nil {
		return true, fmt.Sprintf("broker rejected credentials: %v", s.unauthorized)
	}
	if s.consecutiveFailures >= s.degradedAfter {
		return true, fmt.Sprintf("%d consecutive failed cycles", s.consecutiveFailures)
	}
	return false, ""
}

// Snapshot returns a copy of the current state
func (s *State) Snapshot() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	degraded, reason := s.degradedLocked()
	st := Status{
		Stage:               s.stage,
		Running:             s.running.Load(),
		Degraded:            degraded,
		DegradedReason:      reason,
		ConsecutiveFailures: s.consecutiveFailures,
	}
	if !s.lastSuccessAt.IsZero() {
		t := s.lastSuccessAt
		st.LastSuccessAt = &t
	}
	if s.last != nil {
		rec := *s.last
		st.LastCycle = &rec
	}

	switch {
	case degraded:
		st.Health = HealthDegraded
	case s.last != nil && len(s.last.Insights) > 0:
		st.Health = HealthOK
	default:
		st.Health = HealthNoNewInsights
	}
	return st
}
