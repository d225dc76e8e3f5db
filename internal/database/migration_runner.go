package database

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ksred/schema-guard/internal/associations"
	"github.com/ksred/schema-guard/internal/models"
	"github.com/ksred/schema-guard/internal/utils"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Migration directions
const (
	DirectionUp   = "up"
	DirectionDown = "down"
)

// MigrationFunc is one direction of a migration, run inside a transaction
type MigrationFunc func(ctx context.Context, tx *gorm.DB, logger zerolog.Logger) error

// Migration represents a migration to be run. Down may be nil for
// migrations that cannot be reversed.
type Migration struct {
	Name string
	Up   MigrationFunc
	Down MigrationFunc
}

// MigrateResult describes one Migrate call
type MigrateResult struct {
	RunID   string   `json:"run_id"`
	Batch   int      `json:"batch"`
	Applied []string `json:"applied"`
}

// RollbackResult describes one Rollback call
type RollbackResult struct {
	RunID      string   `json:"run_id"`
	Batches    []int    `json:"batches"`
	RolledBack []string `json:"rolled_back"`
}

// MigrationStatus is the ledger view of one migration definition
type MigrationStatus struct {
	Name    string `json:"name"`
	Applied bool   `json:"applied"`
	Batch   int    `json:"batch,omitempty"`
}

// Status is a read-only snapshot of the ledger and lock
type Status struct {
	Locked     bool              `json:"locked"`
	LastBatch  int               `json:"last_batch"`
	Migrations []MigrationStatus `json:"migrations"`
	// Unknown lists ledger rows with no registered definition
	Unknown []string `json:"unknown,omitempty"`
}

// MigrationRunner handles running database migrations
type MigrationRunner struct {
	db         *gorm.DB
	logger     zerolog.Logger
	lock       *LockManager
	ledger     *LedgerStore
	migrations []Migration

	graph       *associations.Graph
	strictGraph bool
}

// NewMigrationRunner creates a new migration runner
func NewMigrationRunner(db *gorm.DB, logger zerolog.Logger) *MigrationRunner {
	return &MigrationRunner{
		db:         db,
		logger:     logger.With().Str("component", "migrator").Logger(),
		lock:       NewLockManager(db, logger),
		ledger:     NewLedgerStore(db),
		migrations: []Migration{},
	}
}

// Register adds migrations to the runner
func (r *MigrationRunner) Register(migrations ...Migration) {
	r.migrations = append(r.migrations, migrations...)
}

// WithGraph attaches the association graph checked before every migrate.
// When strict is set any violation aborts the run.
func (r *MigrationRunner) WithGraph(graph *associations.Graph, strict bool) *MigrationRunner {
	r.graph = graph
	r.strictGraph = strict
	return r
}

// Graph returns the attached association graph, or nil
func (r *MigrationRunner) Graph() *associations.Graph {
	return r.graph
}

// LockManager returns the lock manager the runner coordinates through
func (r *MigrationRunner) LockManager() *LockManager {
	return r.lock
}

// Setup ensures the ledger and lock tables exist
func (r *MigrationRunner) Setup(ctx context.Context) error {
	return r.lock.Setup(ctx)
}

// Definitions returns the registered migrations sorted by name
func (r *MigrationRunner) Definitions() ([]Migration, error) {
	defs := make([]Migration, len(r.migrations))
	copy(defs, r.migrations)

	sort.SliceStable(defs, func(i, j int) bool {
		return defs[i].Name < defs[j].Name
	})

	seen := make(map[string]bool, len(defs))
	for _, m := range defs {
		if m.Name == "" {
			return nil, utils.RequiredFieldError("name")
		}
		if m.Up == nil {
			return nil, utils.InvalidFieldError("up", fmt.Sprintf("migration %s has no up step", m.Name))
		}
		if seen[m.Name] {
			return nil, utils.InvalidFieldError("name", fmt.Sprintf("duplicate migration name %s", m.Name))
		}
		seen[m.Name] = true
	}

	return defs, nil
}

// Pending returns migrations that haven't been applied yet
func (r *MigrationRunner) Pending(ctx context.Context) ([]Migration, error) {
	defs, err := r.Definitions()
	if err != nil {
		return nil, err
	}

	entries, err := r.ledger.Entries(ctx)
	if err != nil {
		return nil, err
	}

	return PendingMigrations(defs, entries), nil
}

// CheckAssociations runs the consistency checker over the attached graph
func (r *MigrationRunner) CheckAssociations() associations.Violations {
	if r.graph == nil {
		return nil
	}
	return associations.Check(r.graph)
}

// Migrate applies every pending migration under the lock as a single batch.
// The first failure stops the batch; migrations applied before it stay applied.
func (r *MigrationRunner) Migrate(ctx context.Context) (*MigrateResult, error) {
	logger, runID := utils.WithRunID(r.logger)
	result := &MigrateResult{RunID: runID, Applied: []string{}}

	err := r.lock.RunWithLock(ctx, func(ctx context.Context, _ *Lock) error {
		return r.migrateLocked(ctx, logger, result)
	})
	return result, err
}

func (r *MigrationRunner) migrateLocked(ctx context.Context, logger zerolog.Logger, result *MigrateResult) error {
	if err := r.preflight(logger); err != nil {
		return err
	}

	defs, err := r.Definitions()
	if err != nil {
		return err
	}

	entries, err := r.ledger.Entries(ctx)
	if err != nil {
		return err
	}

	pending := PendingMigrations(defs, entries)
	if len(pending) == 0 {
		logger.Info().Msg("Schema is up to date")
		return nil
	}

	batch := NextBatch(entries)
	result.Batch = batch

	logger.Info().
		Int("batch", batch).
		Int("pending", len(pending)).
		Msg("Running pending migrations")

	for _, migration := range pending {
		mlog := utils.WithMigration(logger, migration.Name, DirectionUp)
		mlog.Info().Int("batch", batch).Msg("Running migration")
		start := time.Now()

		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := migration.Up(ctx, tx, mlog); err != nil {
				return err
			}
			return r.ledger.WithTx(tx).Record(ctx, migration.Name, batch)
		})
		if err != nil {
			mlog.Error().Err(err).Msg("Migration failed, halting batch")
			return utils.WrapMigrationError(migration.Name, DirectionUp, err)
		}

		result.Applied = append(result.Applied, migration.Name)
		mlog.Info().
			Dur("duration", time.Since(start)).
			Msg("Migration completed successfully")
	}

	return nil
}

// preflight checks the association graph before any schema change
func (r *MigrationRunner) preflight(logger zerolog.Logger) error {
	violations := r.CheckAssociations()
	if len(violations) == 0 {
		return nil
	}

	for _, v := range violations {
		logger.Warn().
			Str("table", v.TableName).
			Str("model", v.Model).
			Msg(v.Message)
	}

	if r.strictGraph {
		return violations.Err()
	}
	return nil
}

// Rollback reverts every migration in the most recent steps batches, newest first
func (r *MigrationRunner) Rollback(ctx context.Context, steps int) (*RollbackResult, error) {
	if steps <= 0 {
		return nil, utils.InvalidFieldError("steps", "must be greater than 0")
	}

	logger, runID := utils.WithRunID(r.logger)
	result := &RollbackResult{RunID: runID, Batches: []int{}, RolledBack: []string{}}

	err := r.lock.RunWithLock(ctx, func(ctx context.Context, _ *Lock) error {
		return r.rollbackLocked(ctx, logger, steps, result)
	})
	return result, err
}

func (r *MigrationRunner) rollbackLocked(ctx context.Context, logger zerolog.Logger, steps int, result *RollbackResult) error {
	defs, err := r.Definitions()
	if err != nil {
		return err
	}
	byName := make(map[string]Migration, len(defs))
	for _, m := range defs {
		byName[m.Name] = m
	}

	entries, err := r.ledger.Entries(ctx)
	if err != nil {
		return err
	}

	targets := rollbackTargets(entries, steps)
	if len(targets) == 0 {
		logger.Info().Msg("Nothing to roll back")
		return nil
	}

	for _, entry := range targets {
		batch := entry.BatchNumber()
		if len(result.Batches) == 0 || result.Batches[len(result.Batches)-1] != batch {
			result.Batches = append(result.Batches, batch)
		}

		mlog := utils.WithMigration(logger, entry.Name, DirectionDown)

		migration, ok := byName[entry.Name]
		if !ok {
			return utils.WrapMigrationError(entry.Name, DirectionDown, errors.New("no migration definition registered"))
		}
		if migration.Down == nil {
			return utils.WrapMigrationError(entry.Name, DirectionDown, errors.New("migration has no down step"))
		}

		mlog.Info().Int("batch", batch).Msg("Rolling back migration")

		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := migration.Down(ctx, tx, mlog); err != nil {
				return err
			}
			return r.ledger.WithTx(tx).Remove(ctx, entry.Name)
		})
		if err != nil {
			mlog.Error().Err(err).Msg("Rollback failed, halting")
			return utils.WrapMigrationError(entry.Name, DirectionDown, err)
		}

		result.RolledBack = append(result.RolledBack, entry.Name)
		mlog.Info().Msg("Migration rolled back")
	}

	return nil
}

// rollbackTargets selects the ledger rows of the most recent steps batches,
// newest first. Batch numbers need not be contiguous.
func rollbackTargets(entries []models.LedgerEntry, steps int) []models.LedgerEntry {
	seen := make(map[int]bool)
	var batches []int
	for _, e := range entries {
		if e.Batch != nil && !seen[*e.Batch] {
			seen[*e.Batch] = true
			batches = append(batches, *e.Batch)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(batches)))
	if steps < len(batches) {
		batches = batches[:steps]
	}

	selected := make(map[int]bool, len(batches))
	for _, b := range batches {
		selected[b] = true
	}

	var targets []models.LedgerEntry
	for _, e := range entries {
		if e.Batch != nil && selected[*e.Batch] {
			targets = append(targets, e)
		}
	}

	sort.SliceStable(targets, func(i, j int) bool {
		if targets[i].BatchNumber() != targets[j].BatchNumber() {
			return targets[i].BatchNumber() > targets[j].BatchNumber()
		}
		return targets[i].ID > targets[j].ID
	})
	return targets
}

// Status reports which definitions have run and whether the lock is held
func (r *MigrationRunner) Status(ctx context.Context) (*Status, error) {
	defs, err := r.Definitions()
	if err != nil {
		return nil, err
	}

	entries, err := r.ledger.Entries(ctx)
	if err != nil {
		return nil, err
	}

	locked, err := r.lock.IsLocked(ctx)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]models.LedgerEntry, len(entries))
	for _, e := range entries {
		byName[e.Name] = e
	}

	status := &Status{
		Locked:     locked,
		LastBatch:  lastBatch(entries),
		Migrations: make([]MigrationStatus, 0, len(defs)),
	}

	known := make(map[string]bool, len(defs))
	for _, m := range defs {
		known[m.Name] = true
		entry, applied := byName[m.Name]
		status.Migrations = append(status.Migrations, MigrationStatus{
			Name:    m.Name,
			Applied: applied,
			Batch:   entry.BatchNumber(),
		})
	}

	for _, e := range entries {
		if !known[e.Name] {
			status.Unknown = append(status.Unknown, e.Name)
		}
	}

	return status, nil
}
