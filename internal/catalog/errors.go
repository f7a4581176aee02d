package catalog

import (
	"errors"
	"fmt"

	"github.com/cybernetics/pgslice/internal/table"
)

var (
	// ErrCatalogQueryFailed matches every *QueryError via errors.Is.
	ErrCatalogQueryFailed = errors.New("catalog query failed")
	// ErrColumnNotFound matches every *ColumnNotFoundError via errors.Is.
	ErrColumnNotFound = errors.New("column not found")
	// ErrNoPrimaryKey is returned when an operation needs a primary key and
	// the table has none.
	ErrNoPrimaryKey = errors.New("no primary key")
	// ErrCompositePrimaryKey is returned when range backfill would need a
	// single key column but the primary key spans several.
	ErrCompositePrimaryKey = errors.New("composite primary keys are not supported")
)

// QueryError carries the driver error of a failed catalog round trip.
// Unwrap returns it unchanged so *pgconn.PgError stays reachable.
type QueryError struct {
	Op  string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("catalog %s: %v", e.Op, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

func (e *QueryError) Is(target error) bool { return target == ErrCatalogQueryFailed }

// ColumnNotFoundError names the missing column and the table searched.
type ColumnNotFoundError struct {
	Table  table.Table
	Column string
}

func (e *ColumnNotFoundError) Error() string {
	return fmt.Sprintf("column not found: %s on %s", e.Column, e.Table)
}

func (e *ColumnNotFoundError) Is(target error) bool { return target == ErrColumnNotFound }
