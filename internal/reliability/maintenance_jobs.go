package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/sentinel-insights/internal/database"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
)

// Free space thresholds for the data directory
const (
	criticalFreeBytes = 500 * 1000 * 1000
	lowFreeBytes      = 5 * 1000 * 1000 * 1000
)

// ArchiveRotator deletes expired archives
type ArchiveRotator interface {
	RotateOldArchives(ctx context.Context, retention time.Duration) (int, error)
}

// DailyMaintenanceJob checks database integrity, truncates WAL files,
// verifies free disk space and rotates old snapshot archives
type DailyMaintenanceJob struct {
	databases        map[string]*database.DB
	dataDir          string
	archives         ArchiveRotator
	archiveRetention time.Duration
	usage            func(ctx context.Context, path string) (*disk.UsageStat, error)
	log              zerolog.Logger
}

// NewDailyMaintenanceJob creates a new daily maintenance job. archives may be nil.
func NewDailyMaintenanceJob(
	databases map[string]*database.DB,
	dataDir string,
	archives ArchiveRotator,
	archiveRetention time.Duration,
	log zerolog.Logger,
) *DailyMaintenanceJob {
	return &DailyMaintenanceJob{
		databases:        databases,
		dataDir:          dataDir,
		archives:         archives,
		archiveRetention: archiveRetention,
		usage:            disk.UsageWithContext,
		log:              log.With().Str("job", "daily_maintenance").Logger(),
	}
}

// Name returns the job name for scheduler
func (j *DailyMaintenanceJob) Name() string {
	return "daily_maintenance"
}

// Run executes the daily maintenance job. A failed integrity check or
// critically low disk space fails the job, everything else is logged.
func (j *DailyMaintenanceJob) Run(ctx context.Context) error {
	j.log.Info().Msg("Starting daily maintenance")
	startTime := time.Now()

	for name, db := range j.databases {
		if err := db.HealthCheck(ctx); err != nil {
			j.log.Error().Str("database", name).Err(err).Msg("Database integrity check failed")
			return fmt.Errorf("integrity check failed for %s: %w", name, err)
		}
	}

	for name, db := range j.databases {
		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			j.log.Warn().Str("database", name).Err(err).Msg("WAL checkpoint failed")
		}
	}

	if err := j.checkDiskSpace(ctx); err != nil {
		return err
	}

	if j.archives != nil {
		if _, err := j.archives.RotateOldArchives(ctx, j.archiveRetention); err != nil {
			j.log.Error().Err(err).Msg("Archive rotation failed")
		}
	}

	j.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Msg("Daily maintenance completed successfully")
	return nil
}

func (j *DailyMaintenanceJob) checkDiskSpace(ctx context.Context) error {
	stat, err := j.usage(ctx, j.dataDir)
	if err != nil {
		return fmt.Errorf("failed to stat filesystem: %w", err)
	}

	availableGB := float64(stat.Free) / 1e9
	j.log.Debug().Float64("available_gb", availableGB).Float64("used_pct", stat.UsedPercent).Msg("Disk space check")

	switch {
	case stat.Free < criticalFreeBytes:
		j.log.Error().Float64("available_gb", availableGB).Msg("CRITICAL: Insufficient disk space")
		return fmt.Errorf("only %.2f GB free in %s", availableGB, j.dataDir)
	case stat.Free < lowFreeBytes:
		j.log.Warn().Float64("available_gb", availableGB).Msg("Disk space running low")
	}
	return nil
}
