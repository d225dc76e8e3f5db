package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/ksred/schema-guard/internal/models"
	"gorm.io/gorm"
)

// ErrAlreadyApplied is returned when a migration name is already in the ledger
var ErrAlreadyApplied = errors.New("migration already recorded in ledger")

// LedgerStore reads and writes the schema_migrations table
type LedgerStore struct {
	db *gorm.DB
}

// NewLedgerStore creates a ledger store on top of db
func NewLedgerStore(db *gorm.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

// WithTx returns a store bound to an open transaction
func (s *LedgerStore) WithTx(tx *gorm.DB) *LedgerStore {
	return &LedgerStore{db: tx}
}

// Entries returns every ledger row in the order it was written
func (s *LedgerStore) Entries(ctx context.Context) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to read migration ledger: %w", err)
	}
	return entries, nil
}

// Record inserts a ledger row for a migration that just ran
func (s *LedgerStore) Record(ctx context.Context, name string, batch int) error {
	entry := &models.LedgerEntry{
		Name:  name,
		Batch: &batch,
	}

	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", name, ErrAlreadyApplied)
		}
		return fmt.Errorf("failed to record migration %s: %w", name, err)
	}
	return nil
}

// Remove deletes the ledger row for a migration that was rolled back
func (s *LedgerStore) Remove(ctx context.Context, name string) error {
	result := s.db.WithContext(ctx).Where("name = ?", name).Delete(&models.LedgerEntry{})
	if result.Error != nil {
		return fmt.Errorf("failed to remove migration %s from ledger: %w", name, result.Error)
	}
	if result.RowsAffected != 1 {
		return fmt.Errorf("migration %s not found in ledger", name)
	}
	return nil
}

// NextBatch returns max(batch)+1 across the ledger, or 1 when nothing has run
func NextBatch(entries []models.LedgerEntry) int {
	return lastBatch(entries) + 1
}

func lastBatch(entries []models.LedgerEntry) int {
	last := 0
	for _, e := range entries {
		if b := e.BatchNumber(); b > last {
			last = b
		}
	}
	return last
}

// PendingMigrations returns the definitions whose name is not in the ledger, in input order
func PendingMigrations(definitions []Migration, entries []models.LedgerEntry) []Migration {
	applied := make(map[string]bool, len(entries))
	for _, e := range entries {
		applied[e.Name] = true
	}

	pending := make([]Migration, 0, len(definitions))
	for _, m := range definitions {
		if !applied[m.Name] {
			pending = append(pending, m)
		}
	}
	return pending
}
