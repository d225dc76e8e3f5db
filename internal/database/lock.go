package database

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ksred/schema-guard/internal/models"
	"github.com/ksred/schema-guard/internal/utils"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// terminationSignals release a held lock before the process goes away
var terminationSignals = []os.Signal{
	syscall.SIGINT,
	syscall.SIGTERM,
	syscall.SIGHUP,
	syscall.SIGQUIT,
}

// LockManager coordinates the persisted migration lock. Acquisition is a
// single attempt: callers that want to wait must retry Acquire themselves.
type LockManager struct {
	db     *gorm.DB
	logger zerolog.Logger

	notify func(c chan<- os.Signal, sig ...os.Signal)
	stop   func(c chan<- os.Signal)
	exit   func(code int)
}

// NewLockManager creates a lock manager for the lock table in db
func NewLockManager(db *gorm.DB, logger zerolog.Logger) *LockManager {
	return &LockManager{
		db:     db,
		logger: logger.With().Str("component", "lock").Logger(),
		notify: signal.Notify,
		stop:   signal.Stop,
		exit:   os.Exit,
	}
}

// Lock is the handle passed to code running under RunWithLock
type Lock struct {
	manager    *LockManager
	acquiredAt time.Time

	once sync.Once
	err  error
}

// AcquiredAt returns when the lock was taken
func (l *Lock) AcquiredAt() time.Time {
	return l.acquiredAt
}

// Release clears the lock. Only the first call reaches the database.
func (l *Lock) Release(ctx context.Context) error {
	l.once.Do(func() {
		l.err = l.manager.Release(ctx)
	})
	return l.err
}

// Setup creates the ledger and lock tables and the singleton lock row if missing
func (m *LockManager) Setup(ctx context.Context) error {
	db := m.db.WithContext(ctx)

	if err := m.ensureTable(db, &models.LedgerEntry{}, models.LedgerTable); err != nil {
		return err
	}
	if err := m.ensureTable(db, &models.LockState{}, models.LockTable); err != nil {
		return err
	}

	row := &models.LockState{ID: models.LockRowID}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error; err != nil {
		return utils.WrapSetupError(models.LockTable, isPermissionDenied(err), err)
	}

	m.logger.Debug().Msg("Migration ledger and lock tables ready")
	return nil
}

// ensureTable auto-migrates one table, tolerating a concurrent creator
func (m *LockManager) ensureTable(db *gorm.DB, model interface{}, table string) error {
	if err := db.AutoMigrate(model); err != nil {
		if db.Migrator().HasTable(model) && !isPermissionDenied(err) {
			m.logger.Warn().Err(err).Str("table", table).Msg("Table appeared during setup, continuing")
			return nil
		}
		return utils.WrapSetupError(table, isPermissionDenied(err), err)
	}
	return nil
}

// Acquire flips is_locked from false to true in one conditional update
func (m *LockManager) Acquire(ctx context.Context) error {
	result := m.db.WithContext(ctx).
		Model(&models.LockState{}).
		Where("is_locked = ?", false).
		Update("is_locked", true)

	if result.Error != nil {
		if isUniqueViolation(result.Error) {
			return &utils.AlreadyLockedError{Table: models.LockTable}
		}
		if !m.db.WithContext(ctx).Migrator().HasTable(&models.LockState{}) {
			return utils.WrapSetupError(models.LockTable, false, result.Error)
		}
		return fmt.Errorf("failed to acquire migration lock: %w", result.Error)
	}

	if result.RowsAffected == 1 {
		m.logger.Info().Msg("Migration lock acquired")
		return nil
	}

	var rows int64
	if err := m.db.WithContext(ctx).Model(&models.LockState{}).Count(&rows).Error; err != nil {
		return fmt.Errorf("failed to inspect migration lock: %w", err)
	}
	if rows == 0 {
		return utils.WrapSetupError(models.LockTable, false, fmt.Errorf("lock row missing, run setup first"))
	}

	return &utils.AlreadyLockedError{Table: models.LockTable}
}

// Release clears the lock. Releasing an unlocked state is not an error.
func (m *LockManager) Release(ctx context.Context) error {
	result := m.db.WithContext(ctx).
		Model(&models.LockState{}).
		Where("is_locked = ?", true).
		Update("is_locked", false)

	if result.Error != nil {
		return fmt.Errorf("failed to release migration lock: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		m.logger.Info().Msg("Migration lock released")
	}
	return nil
}

// ForceUnlock clears a lock left behind by a runner that died without releasing it
func (m *LockManager) ForceUnlock(ctx context.Context) error {
	m.logger.Warn().Msg("Forcing migration lock release")
	return m.Release(ctx)
}

// IsLocked reports whether any runner currently holds the lock
func (m *LockManager) IsLocked(ctx context.Context) (bool, error) {
	var count int64
	err := m.db.WithContext(ctx).
		Model(&models.LockState{}).
		Where("is_locked = ?", true).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to read migration lock: %w", err)
	}
	return count > 0, nil
}

// RunWithLock acquires the lock, runs fn and releases the lock whether fn
// returns, fails or panics. A termination signal received while fn runs
// releases the lock and exits the process.
func (m *LockManager) RunWithLock(ctx context.Context, fn func(ctx context.Context, lock *Lock) error) (err error) {
	if err := m.Acquire(ctx); err != nil {
		return err
	}

	lock := &Lock{manager: m, acquiredAt: time.Now()}

	// Release must still reach the database after ctx is cancelled
	releaseCtx := context.WithoutCancel(ctx)

	stopWatching := m.watchSignals(releaseCtx, lock)
	defer func() {
		stopWatching()
		if relErr := lock.Release(releaseCtx); relErr != nil {
			m.logger.Error().Err(relErr).Msg("Failed to release migration lock")
			if err == nil {
				err = relErr
			}
		}
	}()

	return fn(ctx, lock)
}

// watchSignals installs the exit handlers and returns the function that removes them
func (m *LockManager) watchSignals(ctx context.Context, lock *Lock) func() {
	sigCh := make(chan os.Signal, 1)
	done := make(chan struct{})

	m.notify(sigCh, terminationSignals...)

	go func() {
		select {
		case sig := <-sigCh:
			m.logger.Warn().
				Str("signal", sig.String()).
				Msg("Received signal while holding migration lock, releasing")
			if err := lock.Release(ctx); err != nil {
				m.logger.Error().Err(err).Msg("Failed to release migration lock on signal")
			}
			m.exit(signalExitCode(sig))
		case <-done:
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.stop(sigCh)
			close(done)
		})
	}
}

// signalExitCode follows the shell convention of 128 + signal number
func signalExitCode(sig os.Signal) int {
	if s, ok := sig.(syscall.Signal); ok {
		return 128 + int(s)
	}
	return 1
}
