package repository

import "github.com/jmoiron/sqlx"

// pick returns the transaction when one is supplied, else the pool.
func pick(db *sqlx.DB, exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return db
}
