package models

// LockRowID is the id of the singleton lock row
const LockRowID = 1

// LockState is the persisted migration lock. The unique index on IsLocked
// keeps at most one row in the locked state.
type LockState struct {
	ID       uint `gorm:"primaryKey;autoIncrement:false" json:"id"`
	IsLocked bool `gorm:"uniqueIndex;not null;default:false" json:"is_locked"`
}

// TableName ensures consistent table naming
func (LockState) TableName() string {
	return LockTable
}
