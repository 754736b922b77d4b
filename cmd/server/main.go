// Package main is the entry point for the portfolio insight monitor.
// It polls the brokerage for holdings on a fixed interval, detects material
// changes between snapshots and emits plain-language insights for them.
//
// The application follows the same layering as the rest of the module:
// - Domain layer is pure (no infrastructure dependencies)
// - Dependency injection via DI container
// - Repository pattern for data access
// - HTTP handlers for the read-only status API and the websocket stream
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/sentinel-insights/internal/config"
	"github.com/aristath/sentinel-insights/internal/di"
	"github.com/aristath/sentinel-insights/internal/server"
	"github.com/aristath/sentinel-insights/pkg/logger"
)

// main orchestrates startup and shutdown:
// 1. Loads configuration (.env then environment) and fails fast on invalid values
// 2. Wires databases, clients, repositories and the monitor via the DI container
// 3. Starts the HTTP server and subscribes its websocket hub to cycle records
// 4. Starts the scheduler, which runs a first cycle immediately
// 5. Waits for a shutdown signal, stops the scheduler, then the server
//
// Two databases are used:
// - snapshots.db: append-only holdings history (ledger profile)
// - insights.db: cycle records and emitted insights
func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Str("broker", cfg.Broker).
		Str("provider", cfg.Generation.Provider).
		Dur("interval", cfg.Monitor.PollInterval).
		Msg("Starting insight monitor")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	container, jobs, err := di.Wire(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer func() {
		if err := container.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close resources")
		}
	}()

	srv := server.New(server.Config{
		Log:       log,
		Config:    cfg,
		Container: container,
		Jobs:      jobs,
	})
	container.Monitor.AddSink(srv.Hub())

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	if err := container.Scheduler.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start scheduler")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	// Stop cancels any in-flight cycle; its record is still persisted
	container.Scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
