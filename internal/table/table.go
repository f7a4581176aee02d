// Package table models a schema-qualified Postgres table reference and the
// sibling names pgslice derives from it (intermediate, retired, partitions,
// insert trigger).
//
// A Table never carries quoting. Quoting is applied at render time by the
// sqlfmt package, segment by segment.
package table

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedIdentifier is returned by Parse when the input does not resolve
// to exactly one (schema, name) pair.
var ErrMalformedIdentifier = errors.New("malformed identifier")

const (
	intermediateSuffix = "_intermediate"
	retiredSuffix      = "_retired"
	triggerSuffix      = "_insert_trigger"
)

// Table is an immutable (schema, name) pair.
type Table struct {
	Schema string
	Name   string
}

// New builds a Table from already separated parts. Either part may contain
// dots; they are treated as ordinary characters.
func New(schema, name string) Table {
	return Table{Schema: schema, Name: name}
}

// Parse splits a "schema.name" string. Unqualified names, names with more
// than one dot, and empty segments are rejected; no schema is ever assumed.
func Parse(qualified string) (Table, error) {
	parts := strings.Split(qualified, ".")
	if len(parts) != 2 {
		return Table{}, fmt.Errorf("%w: %q must be schema.table", ErrMalformedIdentifier, qualified)
	}
	if parts[0] == "" || parts[1] == "" {
		return Table{}, fmt.Errorf("%w: %q has an empty segment", ErrMalformedIdentifier, qualified)
	}
	return New(parts[0], parts[1]), nil
}

// String returns the unquoted "schema.name" form.
func (t Table) String() string {
	return t.Schema + "." + t.Name
}

// IntermediateTable is the partitioned copy built next to t before swap.
func (t Table) IntermediateTable() Table {
	return New(t.Schema, t.Name+intermediateSuffix)
}

// RetiredTable is the name t is moved to by swap.
func (t Table) RetiredTable() Table {
	return New(t.Schema, t.Name+retiredSuffix)
}

// TriggerName is unqualified; triggers live in the namespace of their table.
func (t Table) TriggerName() string {
	return t.Name + triggerSuffix
}

// Partition returns the child named "<name>_<suffix>" in the same schema.
func (t Table) Partition(suffix string) Table {
	return New(t.Schema, t.Name+"_"+suffix)
}

// ExistenceChecker answers exact (schema, name) lookups against the catalog.
type ExistenceChecker interface {
	Exists(ctx context.Context, t Table) (bool, error)
}

// Exists reports whether t is present. Errors from the checker are returned
// unchanged.
func (t Table) Exists(ctx context.Context, c ExistenceChecker) (bool, error) {
	return c.Exists(ctx, t)
}
