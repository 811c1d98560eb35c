package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// TxFunc runs statements against the open transaction.
type TxFunc func(ctx context.Context, tx sqlx.ExtContext) error

// Transactor runs a function inside a single database transaction.
type Transactor struct {
	db   *sqlx.DB
	opts *sql.TxOptions
}

// NewTransactor builds a Transactor. opts may be nil for the driver default
// (READ COMMITTED on PostgreSQL).
func NewTransactor(db *sqlx.DB, opts *sql.TxOptions) *Transactor {
	return &Transactor{db: db, opts: opts}
}

// WithinTx commits when fn returns nil and rolls back on error or panic. The
// connection is returned to the pool on every path.
func (t *Transactor) WithinTx(ctx context.Context, fn TxFunc) (err error) {
	tx, err := t.db.BeginTxx(ctx, t.opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(ctx, tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
