package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Pruner deletes rows older than a cutoff
type Pruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionJob removes cycle records and insights past the retention window
type RetentionJob struct {
	cycles    Pruner
	insights  Pruner
	retention time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

// NewRetentionJob creates a new retention job
func NewRetentionJob(cycles, insights Pruner, retention time.Duration, log zerolog.Logger) *RetentionJob {
	return &RetentionJob{
		cycles:    cycles,
		insights:  insights,
		retention: retention,
		now:       time.Now,
		log:       log.With().Str("job", "retention").Logger(),
	}
}

// Name returns the job name
func (j *RetentionJob) Name() string {
	return "retention"
}

// Run executes the retention job
func (j *RetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().Add(-j.retention)

	var errs []error
	cycles, err := j.cycles.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to prune cycles: %w", err))
	}
	insights, err := j.insights.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to prune insights: %w", err))
	}

	j.log.Info().
		Time("cutoff", cutoff).
		Int64("cycles_deleted", cycles).
		Int64("insights_deleted", insights).
		Msg("Retention completed")

	return errors.Join(errs...)
}
