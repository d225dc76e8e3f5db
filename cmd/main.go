package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ksred/schema-guard/internal/config"
	"github.com/ksred/schema-guard/internal/database"
	"github.com/ksred/schema-guard/internal/database/migrations"
	"github.com/ksred/schema-guard/internal/utils"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
)

var version = "dev"

// Process exit codes, one per error kind
const (
	exitError        = 1
	exitLocked       = 3
	exitInconsistent = 4
	exitMigration    = 5
	exitSetup        = 6
	exitValidation   = 64
)

// app holds what the subcommands share. The database is opened lazily so
// commands like token never touch it.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	db     *database.Database
}

func main() {
	a := &app{}
	cmd := a.command()

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		a.logger.Error().Err(err).Msg("Command failed")
		fmt.Fprintf(os.Stderr, "schema-guard: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func (a *app) command() *cli.Command {
	return &cli.Command{
		Name:    "schema-guard",
		Usage:   "Apply schema migrations safely from many processes",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the schema-guard config file",
				Sources: cli.EnvVars("SCHEMA_GUARD_CONFIG"),
			},
		},
		Before: a.before,
		After:  a.after,
		Commands: []*cli.Command{
			a.migrateCommand(),
			a.rollbackCommand(),
			a.statusCommand(),
			a.unlockCommand(),
			a.checkCommand(),
			a.tokenCommand(),
		},
	}
}

func (a *app) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := loadConfiguration(cmd.String("config"))
	if err != nil {
		return ctx, err
	}
	a.cfg = cfg
	a.logger = setupLogging(cfg)
	return ctx, nil
}

func (a *app) after(ctx context.Context, cmd *cli.Command) error {
	if a.db == nil {
		return nil
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error().Err(err).Msg("Failed to close database connection")
	}
	return nil
}

// runner connects to the database and builds the configured migration runner
func (a *app) runner() (*database.MigrationRunner, error) {
	if a.db == nil {
		db, err := connectToDatabase(a.cfg, a.logger)
		if err != nil {
			return nil, err
		}
		a.db = db
	}
	return migrations.NewRunner(a.db.DB(), a.cfg, a.logger)
}

// loadConfiguration loads configuration from file or environment. Unlike the
// HTTP server, the CLI refuses to fall back to defaults on a broken config.
func loadConfiguration(configPath string) (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// setupLogging logs to stderr unless LOG_FILE is set, keeping stdout for command output
func setupLogging(cfg *config.Config) zerolog.Logger {
	logConfig := utils.ConfigFor(cfg.Server.LogLevel, cfg.Server.Debug, os.Getenv("LOG_FILE"))

	utils.SetupGlobalLogger(logConfig)
	return utils.NewLogger(logConfig)
}

// connectToDatabase establishes the database connection with retry logic
func connectToDatabase(cfg *config.Config, logger zerolog.Logger) (*database.Database, error) {
	logger.Debug().
		Str("driver", cfg.Database.Driver).
		Str("host", cfg.Database.Host).
		Str("dbname", cfg.Database.DBName).
		Msg("Connecting to database")

	db := database.NewDatabaseFromConfig(cfg.Database)
	if err := db.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.Health(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database health check failed: %w", err)
	}

	return db, nil
}

func exitCode(err error) int {
	switch {
	case utils.IsAlreadyLocked(err):
		return exitLocked
	case utils.IsConsistencyError(err):
		return exitInconsistent
	case utils.IsMigrationError(err):
		return exitMigration
	case utils.IsSetupError(err):
		return exitSetup
	case utils.IsValidationError(err):
		return exitValidation
	default:
		return exitError
	}
}
