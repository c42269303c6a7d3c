// Package main is the entry point for the autotrader execution engine.
// It consumes trading signals, executes orders against the ledger and keeps
// the portfolio consistent, serving the REST API and event stream.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/autotrader/internal/config"
	"github.com/aristath/autotrader/internal/di"
	"github.com/aristath/autotrader/internal/server"
	"github.com/aristath/autotrader/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

// main orchestrates startup:
// 1. Loads configuration and initializes logging
// 2. Wires the ledger database, services and jobs via the DI container
// 3. Starts the HTTP server, the signal intake loop and the scheduler
// 4. Waits for SIGINT/SIGTERM and shuts everything down in reverse order
func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
		App:    "autotrader",
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Str("data_dir", cfg.DataDir).
		Str("driver", cfg.Ledger.Driver).
		Msg("Starting autotrader")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	container, err := di.Wire(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	srv := server.New(server.Config{
		Log:       log,
		Config:    cfg,
		Container: container,
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Signal intake processes queued signals one at a time until ctx is cancelled
	intakeDone := make(chan struct{})
	go func() {
		defer close(intakeDone)
		container.Intake.Run(ctx, container.SignalSources...)
	}()
	log.Info().Int("sources", len(container.SignalSources)).Msg("Signal intake started")

	container.Scheduler.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop intake before the scheduler so no order is created after the last job
	cancel()
	select {
	case <-intakeDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("Signal intake did not stop in time")
	}

	// Deferred Close stops the scheduler, waits for running jobs and closes the ledger
	log.Info().Msg("Server stopped")
}
