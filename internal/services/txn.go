package services

import (
	"context"

	"gorm.io/gorm"
)

// runInTx wraps fn in a database transaction. A service constructed with a
// nil handle (unit tests drive the repos with fakes) runs fn directly with a
// nil tx; the repos fall back to their own handle in that case.
func runInTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	if db == nil {
		return fn(nil)
	}
	return db.WithContext(ctx).Transaction(fn)
}
