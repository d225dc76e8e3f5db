package migrations

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/ksred/schema-guard/internal/associations"
	"github.com/ksred/schema-guard/internal/config"
	"github.com/ksred/schema-guard/internal/database"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// GetMigrations returns the migrations found in dir. A missing directory
// yields no migrations rather than an error.
func GetMigrations(dir string) ([]database.Migration, error) {
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []database.Migration{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open migrations dir %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("migrations path %s is not a directory", dir)
	}

	return Load(os.DirFS(dir))
}

// NewRunner builds a migration runner from configuration: migrations from the
// configured directory and, when a graph file is set, the association pre-flight.
func NewRunner(db *gorm.DB, cfg *config.Config, logger zerolog.Logger) (*database.MigrationRunner, error) {
	defs, err := GetMigrations(cfg.Migrations.Dir)
	if err != nil {
		return nil, err
	}

	runner := database.NewMigrationRunner(db, logger)
	runner.Register(defs...)

	if cfg.Models.GraphFile != "" {
		graph, err := associations.LoadFile(cfg.Models.GraphFile)
		if err != nil {
			return nil, err
		}
		runner.WithGraph(graph, cfg.Models.Strict)
	}

	logger.Debug().
		Str("dir", cfg.Migrations.Dir).
		Int("migrations", len(defs)).
		Str("graph_file", cfg.Models.GraphFile).
		Msg("Migration runner configured")

	return runner, nil
}
