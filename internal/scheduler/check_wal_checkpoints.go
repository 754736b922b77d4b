package scheduler

import (
	"context"

	"github.com/aristath/sentinel-insights/internal/database"
	"github.com/rs/zerolog"
)

// walFramesWarning is the WAL size, in frames, above which a warning is logged
const walFramesWarning = 1000

// CheckWALCheckpointsJob runs a passive checkpoint on every database and reports WAL growth
type CheckWALCheckpointsJob struct {
	databases map[string]*database.DB
	log       zerolog.Logger
}

// NewCheckWALCheckpointsJob creates a new CheckWALCheckpointsJob
func NewCheckWALCheckpointsJob(databases map[string]*database.DB, log zerolog.Logger) *CheckWALCheckpointsJob {
	return &CheckWALCheckpointsJob{
		databases: databases,
		log:       log.With().Str("job", "check_wal_checkpoints").Logger(),
	}
}

// Name returns the job name
func (j *CheckWALCheckpointsJob) Name() string {
	return "check_wal_checkpoints"
}

// Run executes the check WAL checkpoints job. Failures are logged, never returned.
func (j *CheckWALCheckpointsJob) Run(ctx context.Context) error {
	checked := 0
	for name, db := range j.databases {
		if db == nil {
			continue
		}

		// PRAGMA wal_checkpoint returns: busy, log, checkpointed
		var busy, frames, checkpointed int
		err := db.Conn().QueryRowContext(ctx, "PRAGMA wal_checkpoint(PASSIVE)").Scan(&busy, &frames, &checkpointed)
		if err != nil {
			j.log.Warn().Err(err).Str("database", name).Msg("Failed to check WAL checkpoint")
			continue
		}

		event := j.log.Debug()
		if frames > walFramesWarning {
			event = j.log.Warn()
		}
		event.
			Str("database", name).
			Int("wal_frames", frames).
			Int("checkpointed", checkpointed).
			Bool("busy", busy != 0).
			Msg("WAL checkpoint status")
		checked++
	}

	j.log.Debug().Int("checked", checked).Msg("WAL checkpoint check completed")
	return nil
}
