package scheduler

import (
	"context"

	"github.com/aristath/sentinel-insights/internal/domain"
	"github.com/rs/zerolog"
)

// LogSink writes every emitted insight to the log
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink creates a log sink
func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log.With().Str("component", "insight_log").Logger()}
}

// Deliver implements domain.CycleSink
func (s *LogSink) Deliver(_ context.Context, record domain.CycleRunRecord) error {
	for _, ins := range record.Insights {
		s.log.Info().
			Str("cycle_id", record.ID).
			Str("symbol", ins.Delta.Symbol).
			Str("kind", string(ins.Delta.Kind)).
			Str("provider", ins.Provider).
			Bool("cached", ins.Cached).
			Str("narrative", ins.Narrative).
			Msg("Insight emitted")
	}
	return nil
}
