// Package di provides dependency injection for scheduler jobs.
package di

import (
	"fmt"

	"github.com/aristath/sentinel-insights/internal/config"
	"github.com/aristath/sentinel-insights/internal/reliability"
	"github.com/aristath/sentinel-insights/internal/scheduler"
	"github.com/rs/zerolog"
)

// Job schedules
const (
	retentionSchedule        = "@daily"
	walCheckpointSchedule    = "@every 1h"
	dailyMaintenanceSchedule = "0 3 * * *"
)

// RegisterJobs registers the maintenance jobs with the scheduler.
// The monitoring cycle itself is registered by Scheduler.Start.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil || container.Scheduler == nil {
		return nil, fmt.Errorf("services must be initialized first")
	}

	instances := &JobInstances{
		Retention: scheduler.NewRetentionJob(
			container.CycleRepo,
			container.InsightRepo,
			cfg.Insights.Retention,
			log,
		),
		WALCheckpoints: scheduler.NewCheckWALCheckpointsJob(container.Databases(), log),
	}

	var rotator reliability.ArchiveRotator
	if container.Archiver != nil {
		rotator = container.Archiver
	}
	instances.DailyMaintenance = reliability.NewDailyMaintenanceJob(
		container.Databases(),
		cfg.DataDir,
		rotator,
		cfg.Archive.Retention,
		log,
	)

	jobs := []struct {
		schedule string
		job      scheduler.Job
	}{
		{retentionSchedule, instances.Retention},
		{walCheckpointSchedule, instances.WALCheckpoints},
		{dailyMaintenanceSchedule, instances.DailyMaintenance},
	}
	for _, j := range jobs {
		if err := container.Scheduler.AddJob(j.schedule, j.job); err != nil {
			return nil, fmt.Errorf("failed to register %s job: %w", j.job.Name(), err)
		}
	}

	return instances, nil
}
