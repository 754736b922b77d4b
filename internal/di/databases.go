// Package di provides dependency injection for database connections.
package di

import (
	"fmt"
	"path/filepath"

	"github.com/aristath/sentinel-insights/internal/config"
	"github.com/aristath/sentinel-insights/internal/database"
	"github.com/rs/zerolog"
)

// InitializeDatabases opens both databases and applies their schemas
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// 1. snapshots.db - Append-only snapshot history
	snapshotsDB, err := openDatabase(filepath.Join(cfg.DataDir, "snapshots.db"), database.ProfileLedger, database.NameSnapshots)
	if err != nil {
		return nil, err
	}
	container.SnapshotsDB = snapshotsDB

	// 2. insights.db - Cycle records and emitted insights
	insightsDB, err := openDatabase(filepath.Join(cfg.DataDir, "insights.db"), database.ProfileStandard, database.NameInsights)
	if err != nil {
		snapshotsDB.Close()
		return nil, err
	}
	container.InsightsDB = insightsDB

	container.closers = append(container.closers, insightsDB.Close, snapshotsDB.Close)

	log.Info().Str("data_dir", cfg.DataDir).Msg("Databases initialized")
	return container, nil
}

func openDatabase(path string, profile database.DatabaseProfile, name string) (*database.DB, error) {
	db, err := database.New(database.Config{
		Path:    path,
		Profile: profile,
		Name:    name,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s database: %w", name, err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate %s database: %w", name, err)
	}
	return db, nil
}
