package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/ksred/schema-guard/internal/database"
	"github.com/ksred/schema-guard/internal/utils"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupCLIEnv points the CLI at a temp sqlite database and migrations dir
func setupCLIEnv(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	migrationsDir := filepath.Join(dir, "migrations")
	require.NoError(t, os.Mkdir(migrationsDir, 0o755))

	files := map[string]string{
		"001_widgets.up.sql":   "CREATE TABLE widgets (id INTEGER PRIMARY KEY);",
		"001_widgets.down.sql": "DROP TABLE widgets;",
		"002_gadgets.up.sql":   "CREATE TABLE gadgets (id INTEGER PRIMARY KEY);",
		"002_gadgets.down.sql": "DROP TABLE gadgets;",
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(migrationsDir, name), []byte(body), 0o600))
	}

	t.Setenv("DATABASE_URL", "")
	t.Setenv("SCHEMA_GUARD_DATABASE_DRIVER", "sqlite")
	t.Setenv("SCHEMA_GUARD_DATABASE_PATH", filepath.Join(dir, "cli.db"))
	t.Setenv("SCHEMA_GUARD_DATABASE_LOG_LEVEL", "silent")
	t.Setenv("MIGRATIONS_DIR", migrationsDir)
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("MODEL_GRAPH_FILE", "")

	return dir
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := (&app{}).command()
	cmd.Writer = &out
	cmd.ErrWriter = &out

	err := cmd.Run(context.Background(), append([]string{"schema-guard"}, args...))
	return out.String(), err
}

func TestCLI_MigrateStatusRollback(t *testing.T) {
	setupCLIEnv(t)

	out, err := runCLI(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "applied 001_widgets (batch 1)")
	assert.Contains(t, out, "applied 002_gadgets (batch 1)")

	out, err = runCLI(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "schema is up to date")

	out, err = runCLI(t, "status", "--json")
	require.NoError(t, err)

	var status database.Status
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.False(t, status.Locked)
	assert.Equal(t, 1, status.LastBatch)
	require.Len(t, status.Migrations, 2)
	assert.True(t, status.Migrations[1].Applied)

	out, err = runCLI(t, "rollback", "--steps", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "rolled back 002_gadgets")
	assert.Contains(t, out, "rolled back 001_widgets")

	out, err = runCLI(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "001_widgets")
	assert.Contains(t, out, "pending")
	assert.Contains(t, out, "lock: free")
}

func TestCLI_Unlock(t *testing.T) {
	dir := setupCLIEnv(t)

	_, err := runCLI(t, "status")
	require.NoError(t, err)

	// Simulate a runner that was killed while holding the lock
	db := database.NewDatabase(map[string]interface{}{
		"driver":    "sqlite",
		"path":      filepath.Join(dir, "cli.db"),
		"log_level": "silent",
	})
	require.NoError(t, db.Connect())
	lock := database.NewLockManager(db.DB(), zerolog.Nop())
	require.NoError(t, lock.Acquire(context.Background()))
	require.NoError(t, db.Close())

	_, err = runCLI(t, "migrate")
	require.Error(t, err)
	assert.True(t, utils.IsAlreadyLocked(err))
	assert.Equal(t, exitLocked, exitCode(err))

	out, err := runCLI(t, "unlock")
	require.NoError(t, err)
	assert.Contains(t, out, "migration lock released")

	_, err = runCLI(t, "migrate")
	require.NoError(t, err)
}

func TestCLI_Check(t *testing.T) {
	dir := setupCLIEnv(t)

	_, err := runCLI(t, "check")
	require.Error(t, err)

	graphFile := filepath.Join(dir, "models.yaml")
	require.NoError(t, os.WriteFile(graphFile, []byte(`
models:
  Order:
    table: orders
    associations:
      - kind: hasMany
        target: LineItem
  LineItem:
    table: line_items
`), 0o600))
	t.Setenv("MODEL_GRAPH_FILE", graphFile)

	out, err := runCLI(t, "check")
	require.Error(t, err)
	assert.True(t, utils.IsConsistencyError(err))
	assert.Equal(t, exitInconsistent, exitCode(err))
	assert.Contains(t, out, "line_items:")
}

func TestCLI_Token(t *testing.T) {
	setupCLIEnv(t)
	t.Setenv("SCHEMA_GUARD_JWT_SECRET", "cli-secret-0123456789abcdefghijkl")

	out, err := runCLI(t, "token", "--subject", "ops@example.com", "--ttl", "5m")
	require.NoError(t, err)
	assert.Regexp(t, `^[\w-]+\.[\w-]+\.[\w-]+\n$`, out)
}

func TestCLI_TokenRequiresStrongSecret(t *testing.T) {
	setupCLIEnv(t)
	t.Setenv("SCHEMA_GUARD_JWT_SECRET", "short")

	_, err := runCLI(t, "token", "--subject", "ops@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 32 bytes")
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err      error
		expected int
	}{
		{err: &utils.AlreadyLockedError{Table: "schema_migrations_lock"}, expected: exitLocked},
		{err: &utils.ConsistencyError{Messages: []string{"x"}}, expected: exitInconsistent},
		{err: utils.WrapMigrationError("001_init", "up", fmt.Errorf("boom")), expected: exitMigration},
		{err: utils.WrapSetupError("schema_migrations", true, fmt.Errorf("denied")), expected: exitSetup},
		{err: utils.RequiredFieldError("name"), expected: exitValidation},
		{err: fmt.Errorf("anything else"), expected: exitError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.expected, exitCode(tt.err))
		})
	}
}
