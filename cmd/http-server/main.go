package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ksred/schema-guard/internal/api"
	"github.com/ksred/schema-guard/internal/config"
	"github.com/ksred/schema-guard/internal/database"
	"github.com/ksred/schema-guard/internal/database/migrations"
	"github.com/ksred/schema-guard/internal/utils"
	"github.com/rs/zerolog"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := loadConfiguration(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogging(cfg)
	logger.Info().
		Int("port", cfg.HTTP.Port).
		Str("driver", cfg.Database.Driver).
		Bool("auto_migrate", cfg.Migrations.AutoMigrate).
		Bool("force_unlock", cfg.Migrations.ForceUnlock).
		Msg("Starting schema-guard admin server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := connectToDatabase(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close database connection")
		}
	}()

	runner, err := migrations.NewRunner(db.DB(), cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to configure migrations")
	}

	// Built before startup so a missing or weak JWT secret fails before any migration runs
	server, err := api.NewServer(cfg, db, runner, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create HTTP server")
	}

	// The startup path runs before the shutdown handler is installed so the
	// lock's own signal handling owns SIGINT/SIGTERM while a migration runs
	if _, err := database.Startup(ctx, runner, database.StartupOptions{
		AutoMigrate: cfg.Migrations.AutoMigrate,
		ForceUnlock: cfg.Migrations.ForceUnlock,
	}, logger); err != nil {
		logger.Fatal().Err(err).Msg("Startup migrations failed")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		if err := server.Start(cfg.HTTP.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- err
		}
	}()

	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case err := <-serverErrChan:
		logger.Error().Err(err).Msg("HTTP server error")
	}

	logger.Info().Msg("Starting graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to gracefully shutdown HTTP server")
	}

	logger.Info().Msg("Shutdown complete")
}

// loadConfiguration loads configuration from file or environment
func loadConfiguration(configPath string) (*config.Config, error) {
	// No fallback to defaults: a broken config must not start the admin API
	return config.LoadConfig(configPath)
}

// setupLogging logs to stderr unless LOG_FILE is set
func setupLogging(cfg *config.Config) zerolog.Logger {
	logConfig := utils.ConfigFor(cfg.Server.LogLevel, cfg.Server.Debug, os.Getenv("LOG_FILE"))

	utils.SetupGlobalLogger(logConfig)
	return utils.NewLogger(logConfig)
}

// connectToDatabase establishes database connection with retry logic
func connectToDatabase(cfg *config.Config, logger zerolog.Logger) (*database.Database, error) {
	logger.Info().Msg("Connecting to database")

	db := database.NewDatabaseFromConfig(cfg.Database)
	if err := db.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.Health(ctx); err != nil {
		return nil, fmt.Errorf("database health check failed: %w", err)
	}

	logger.Info().Msg("Database connection established")
	return db, nil
}
