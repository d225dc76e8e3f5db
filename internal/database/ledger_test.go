package database

import (
	"context"
	"errors"
	"testing"

	"github.com/ksred/schema-guard/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func batch(n int) *int {
	return &n
}

func TestLedgerStore_RecordAndEntries(t *testing.T) {
	_, db := setupRunner(t)
	store := NewLedgerStore(db)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, "001-init", 1))
	require.NoError(t, store.Record(ctx, "002-add-index", 2))

	entries, err := store.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "001-init", entries[0].Name)
	assert.Equal(t, 1, entries[0].BatchNumber())
	assert.Equal(t, "002-add-index", entries[1].Name)
	assert.Equal(t, 2, entries[1].BatchNumber())
}

func TestLedgerStore_RecordDuplicate(t *testing.T) {
	_, db := setupRunner(t)
	store := NewLedgerStore(db)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, "001-init", 1))

	err := store.Record(ctx, "001-init", 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAlreadyApplied))
}

func TestLedgerStore_Remove(t *testing.T) {
	_, db := setupRunner(t)
	store := NewLedgerStore(db)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, "001-init", 1))
	require.NoError(t, store.Remove(ctx, "001-init"))
	assert.Empty(t, ledgerNames(t, db))

	err := store.Remove(ctx, "001-init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestNextBatch(t *testing.T) {
	tests := []struct {
		name     string
		entries  []models.LedgerEntry
		expected int
	}{
		{name: "empty ledger", entries: nil, expected: 1},
		{
			name: "single batch",
			entries: []models.LedgerEntry{
				{Name: "001-init", Batch: batch(1)},
			},
			expected: 2,
		},
		{
			name: "null batches are ignored",
			entries: []models.LedgerEntry{
				{Name: "001-init", Batch: batch(3)},
				{Name: "002-add-index", Batch: nil},
				{Name: "003-seed", Batch: batch(1)},
			},
			expected: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NextBatch(tt.entries))
		})
	}
}

func TestPendingMigrations(t *testing.T) {
	defs := []Migration{
		{Name: "001-init"},
		{Name: "002-add-index"},
		{Name: "003-seed"},
	}
	entries := []models.LedgerEntry{
		{Name: "002-add-index", Batch: batch(1)},
		{Name: "999-unknown", Batch: batch(1)},
	}

	pending := PendingMigrations(defs, entries)
	require.Len(t, pending, 2)
	assert.Equal(t, "001-init", pending[0].Name)
	assert.Equal(t, "003-seed", pending[1].Name)

	assert.Len(t, PendingMigrations(defs, nil), 3)
	assert.Empty(t, PendingMigrations(nil, entries))
}

func TestRollbackTargets(t *testing.T) {
	entries := []models.LedgerEntry{
		{ID: 1, Name: "001", Batch: batch(1)},
		{ID: 2, Name: "002", Batch: batch(2)},
		{ID: 3, Name: "003", Batch: batch(2)},
		{ID: 4, Name: "004", Batch: nil},
		{ID: 5, Name: "005", Batch: batch(3)},
	}

	names := func(entries []models.LedgerEntry) []string {
		out := make([]string, len(entries))
		for i, e := range entries {
			out[i] = e.Name
		}
		return out
	}

	assert.Equal(t, []string{"005"}, names(rollbackTargets(entries, 1)))
	assert.Equal(t, []string{"005", "003", "002"}, names(rollbackTargets(entries, 2)))
	assert.Equal(t, []string{"005", "003", "002", "001"}, names(rollbackTargets(entries, 10)))
	assert.Empty(t, rollbackTargets(nil, 1))

	t.Run("gaps in batch numbers", func(t *testing.T) {
		gapped := []models.LedgerEntry{
			{ID: 1, Name: "a", Batch: batch(1)},
			{ID: 3, Name: "c", Batch: batch(3)},
		}
		assert.Equal(t, []string{"c"}, names(rollbackTargets(gapped, 1)))
		assert.Equal(t, []string{"c", "a"}, names(rollbackTargets(gapped, 2)))
	})
}
