package db

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// IsPostgres reports whether the session is bound to the Postgres dialect.
func IsPostgres(tx *gorm.DB) bool {
	return tx != nil && tx.Dialector != nil && tx.Dialector.Name() == "postgres"
}

// ForUpdate adds a row lock to the next query. SQLite has no row locks; a write
// transaction there already holds the database lock, so the clause is skipped.
func ForUpdate(tx *gorm.DB) *gorm.DB {
	if tx == nil || tx.Dialector == nil || tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}
