package repository

import (
	"context"
	"database/sql"
	"fmt"
)

type scanner interface {
	Scan(dest ...any) error
}

// DB hands out the transactions that every ledger write joins.
type DB struct {
	pool *sql.DB
}

func NewDB(pool *sql.DB) *DB {
	return &DB{pool: pool}
}

// RunInTx runs fn in a read-committed transaction, committing when fn returns
// nil and rolling back otherwise. A panic in fn rolls back and re-panics.
func (d *DB) RunInTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := d.pool.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("RunInTx: begin: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("RunInTx: commit: %w", err)
	}
	return nil
}
