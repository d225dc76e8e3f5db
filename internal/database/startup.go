package database

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// StartupOptions controls what runs when a process boots against the database
type StartupOptions struct {
	AutoMigrate bool
	ForceUnlock bool
}

// Startup prepares the ledger and lock tables, clears a stale lock when asked
// and applies pending migrations when auto-migrate is on.
func Startup(ctx context.Context, runner *MigrationRunner, opts StartupOptions, logger zerolog.Logger) (*MigrateResult, error) {
	if err := runner.Setup(ctx); err != nil {
		return nil, err
	}

	if opts.ForceUnlock {
		if err := runner.LockManager().ForceUnlock(ctx); err != nil {
			return nil, fmt.Errorf("failed to force unlock: %w", err)
		}
	}

	if !opts.AutoMigrate {
		logger.Debug().Msg("Auto-migrate disabled, skipping migrations")
		return nil, nil
	}

	result, err := runner.Migrate(ctx)
	if err != nil {
		return result, err
	}

	logger.Info().
		Str("run_id", result.RunID).
		Int("applied", len(result.Applied)).
		Msg("Startup migrations complete")
	return result, nil
}
