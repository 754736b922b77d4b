package server

import (
	"context"
	"time"

	"github.com/aristath/sentinel-insights/internal/scheduler"
	"github.com/rs/zerolog"
)

// StateReader exposes the monitoring state
type StateReader interface {
	Snapshot() scheduler.Status
}

// StatusMonitor periodically checks the monitoring state and broadcasts health changes
type StatusMonitor struct {
	state StateReader
	hub   *StreamHub
	log   zerolog.Logger

	lastHealth string
	lastReason string
}

// NewStatusMonitor creates a new status monitor
func NewStatusMonitor(state StateReader, hub *StreamHub, log zerolog.Logger) *StatusMonitor {
	return &StatusMonitor{
		state: state,
		hub:   hub,
		log:   log.With().Str("component", "status_monitor").Logger(),
	}
}

// Start begins periodic status monitoring until ctx is done
func (m *StatusMonitor) Start(ctx context.Context, interval time.Duration) {
	go m.monitor(ctx, interval)
}

func (m *StatusMonitor) monitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.check()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.check()
		}
	}
}

// check broadcasts a status frame when health or degraded reason changed
func (m *StatusMonitor) check() bool {
	st := m.state.Snapshot()
	if st.Health == m.lastHealth && st.DegradedReason == m.lastReason {
		return false
	}

	if st.Degraded {
		m.log.Warn().Str("reason", st.DegradedReason).Msg("Monitoring degraded")
	} else if m.lastHealth == scheduler.HealthDegraded {
		m.log.Info().Msg("Monitoring recovered")
	}

	m.lastHealth = st.Health
	m.lastReason = st.DegradedReason
	m.hub.Broadcast(StreamMessage{Type: "status", Timestamp: time.Now().UTC(), Data: st})
	return true
}
