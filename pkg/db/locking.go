package db

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ForUpdate scopes a query to take row write locks for the rest of the transaction.
// Dialects without row locking (sqlite) ignore the clause; callers must still
// run the query inside a transaction.
func ForUpdate(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}
