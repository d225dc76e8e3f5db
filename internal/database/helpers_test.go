package database

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB opens a file-backed SQLite database. A single connection keeps
// goroutines in the concurrency tests from tripping over sqlite's file lock.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "schema-guard.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	return db
}

// setupRunner returns a runner whose ledger and lock tables already exist
func setupRunner(t *testing.T) (*MigrationRunner, *gorm.DB) {
	t.Helper()

	db := setupTestDB(t)
	runner := NewMigrationRunner(db, zerolog.Nop())
	runner.lock = newTestLockManager(db)
	require.NoError(t, runner.Setup(context.Background()))
	return runner, db
}

// tableMigration creates a table on up and drops it on down
func tableMigration(name, table string) Migration {
	return Migration{
		Name: name,
		Up: func(ctx context.Context, tx *gorm.DB, logger zerolog.Logger) error {
			return tx.Exec(fmt.Sprintf("CREATE TABLE %s (id INTEGER PRIMARY KEY)", table)).Error
		},
		Down: func(ctx context.Context, tx *gorm.DB, logger zerolog.Logger) error {
			return tx.Exec(fmt.Sprintf("DROP TABLE %s", table)).Error
		},
	}
}

func failingMigration(name string, err error) Migration {
	return Migration{
		Name: name,
		Up: func(ctx context.Context, tx *gorm.DB, logger zerolog.Logger) error {
			return err
		},
	}
}

func ledgerNames(t *testing.T, db *gorm.DB) []string {
	t.Helper()

	entries, err := NewLedgerStore(db).Entries(context.Background())
	require.NoError(t, err)

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names
}
