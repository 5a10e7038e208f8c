// Package dbx holds the database plumbing shared by the records, outbox and
// meta repositories: the handle they bind to (DBTX) and a transaction wrapper
// that lets a record mutation and its derived outbox entry commit atomically.
package dbx

import (
	"context"
	"database/sql"
)

// DBTX is the query surface repositories run against. Both *sql.DB and
// *sql.Tx implement it, so the same repository works standalone or composed
// into a WithTx transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx runs fn inside a transaction: commit on a nil return, rollback on
// error or panic (the panic is rethrown).
//
//	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
//	    if err := records.NewSQLiteRepository(tx).Insert(ctx, rec); err != nil {
//	        return err
//	    }
//	    return outbox.NewSQLiteRepository(tx).Enqueue(ctx, entry, capacity)
//	})
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(ctx, tx)
	return err
}
