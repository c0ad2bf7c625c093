package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Base provides a shared foundation for domain repositories.
type Base struct {
	db *gorm.DB
}

// NewBase constructs a Base repository backed by the provided GORM connection.
func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB returns the GORM connection bound to the supplied context (if any).
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// ForUpdate is DB with a row lock on the selected rows. Dialects without
// row locking (sqlite) drop the clause, so callers still need a transaction
// to serialize writers.
func (b Base) ForUpdate(ctx context.Context) *gorm.DB {
	return b.DB(ctx).Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
}

// Rebind returns a Base over tx, or b itself when tx is nil.
func (b Base) Rebind(tx *gorm.DB) Base {
	if tx == nil {
		return b
	}
	return Base{db: tx}
}
