package models

// Table names for the ledger and the lock. Both are fixed so every process
// sharing a database coordinates through the same rows.
const (
	LedgerTable = "schema_migrations"
	LockTable   = "schema_migrations_lock"
)

// LedgerEntry records a migration that has been applied and the batch it ran in
type LedgerEntry struct {
	ID    uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Name  string `gorm:"uniqueIndex;not null" json:"name"`
	Batch *int   `json:"batch"`
}

// TableName ensures consistent table naming
func (LedgerEntry) TableName() string {
	return LedgerTable
}

// BatchNumber returns the batch or 0 when none has been assigned
func (e LedgerEntry) BatchNumber() int {
	if e.Batch == nil {
		return 0
	}
	return *e.Batch
}
