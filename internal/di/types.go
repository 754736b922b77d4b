/**
 * Package di provides dependency injection type definitions.
 *
 * This package defines the Container type which holds all application dependencies.
 * The Container is the single source of truth for all service instances and is
 * passed to the server and the CLI for access to services.
 */
package di

import (
	"github.com/aristath/sentinel-insights/internal/database"
	"github.com/aristath/sentinel-insights/internal/domain"
	"github.com/aristath/sentinel-insights/internal/modules/changes"
	"github.com/aristath/sentinel-insights/internal/modules/cycles"
	"github.com/aristath/sentinel-insights/internal/modules/insights"
	"github.com/aristath/sentinel-insights/internal/modules/snapshots"
	"github.com/aristath/sentinel-insights/internal/reliability"
	"github.com/aristath/sentinel-insights/internal/scheduler"
)

/**
 * Container holds all dependencies for the application.
 *
 * Architecture:
 * - Databases: snapshots.db (ledger profile, append-only history) and insights.db (cycles and insights)
 * - Clients: the broker fetcher and the explainer behind the insight generator
 * - Repositories: snapshot history, insight history, cycle records
 * - Services: change detector, generator, monitor and its explicit state
 * - Scheduler: cron driver for the monitoring cycle and maintenance jobs
 */
type Container struct {
	// Databases
	SnapshotsDB *database.DB // Snapshot history
	InsightsDB  *database.DB // Cycle records and emitted insights

	// Clients
	Fetcher   domain.HoldingsFetcher // Broker holdings reader
	Explainer domain.Explainer       // Narrative provider

	// Repositories
	SnapshotRepo *snapshots.Repository
	InsightRepo  *insights.Repository
	CycleRepo    *cycles.Repository

	// Services
	Detector  *changes.Detector
	Generator *insights.Generator
	State     *scheduler.State
	Monitor   *scheduler.Monitor
	Scheduler *scheduler.Scheduler

	// Archiver uploads pruned snapshots, nil when no bucket is configured
	Archiver *reliability.SnapshotArchiver

	closers []func() error
}

// JobInstances holds the registered background jobs for manual triggering
type JobInstances struct {
	Retention        *scheduler.RetentionJob
	WALCheckpoints   *scheduler.CheckWALCheckpointsJob
	DailyMaintenance *reliability.DailyMaintenanceJob
}

// Databases returns the open databases by name
func (c *Container) Databases() map[string]*database.DB {
	dbs := make(map[string]*database.DB, 2)
	if c.SnapshotsDB != nil {
		dbs[database.NameSnapshots] = c.SnapshotsDB
	}
	if c.InsightsDB != nil {
		dbs[database.NameInsights] = c.InsightsDB
	}
	return dbs
}
