package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTableNames(t *testing.T) {
	assert.Equal(t, "schema_migrations", LedgerEntry{}.TableName())
	assert.Equal(t, "schema_migrations_lock", LockState{}.TableName())
}

func TestLedgerEntry_BatchNumber(t *testing.T) {
	batch := 3

	assert.Equal(t, 0, LedgerEntry{Name: "001_init"}.BatchNumber())
	assert.Equal(t, 3, LedgerEntry{Name: "001_init", Batch: &batch}.BatchNumber())
}
