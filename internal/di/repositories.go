// Package di provides dependency injection for repository implementations.
package di

import (
	"fmt"

	"github.com/aristath/sentinel-insights/internal/config"
	"github.com/aristath/sentinel-insights/internal/modules/cycles"
	"github.com/aristath/sentinel-insights/internal/modules/insights"
	"github.com/aristath/sentinel-insights/internal/modules/snapshots"
	"github.com/rs/zerolog"
)

// InitializeRepositories creates all repositories
func InitializeRepositories(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil || container.SnapshotsDB == nil || container.InsightsDB == nil {
		return fmt.Errorf("databases must be initialized first")
	}

	container.SnapshotRepo = snapshots.NewRepository(container.SnapshotsDB.Conn(), cfg.Monitor.SnapshotHistory, log)
	container.InsightRepo = insights.NewRepository(container.InsightsDB.Conn(), log)
	container.CycleRepo = cycles.NewRepository(container.InsightsDB.Conn(), log)

	log.Info().Msg("Repositories initialized")
	return nil
}
