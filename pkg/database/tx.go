package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrStorage marks failures of the persistence layer. Callers classify with errors.Is.
var ErrStorage = errors.New("storage error")

// StorageErr wraps err as a storage failure. Nil stays nil.
func StorageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

// WithTx runs fn inside a transaction. fn's error rolls the transaction back and is returned
// unchanged, so domain errors pass through; begin/commit failures are wrapped as ErrStorage.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return StorageErr("begin tx", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return StorageErr("commit tx", err)
	}
	return nil
}
