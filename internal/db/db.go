// Package db is the execution primitive pgslice runs catalog queries and
// rendered statements through. The core packages depend only on Querier; the
// CLI owns the connection and its lifecycle.
package db

import (
	"context"
	"fmt"
)

// Row maps result column names to decoded values.
type Row map[string]any

// Querier runs a parameterized query and returns every row.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) ([]Row, error)
}

// DB is a single connection capable of queries, statements and transactions.
type DB interface {
	Querier
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
	BeginTx(ctx context.Context) (Tx, error)
	Close(ctx context.Context) error
}

// Tx is an open transaction on a DB.
type Tx interface {
	Querier
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// InTx runs fn inside a transaction. The transaction is committed when fn
// returns nil and rolled back otherwise.
func InTx(ctx context.Context, d DB, fn func(Tx) error) error {
	tx, err := d.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
