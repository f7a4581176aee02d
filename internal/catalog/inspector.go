// Package catalog reads the structural facts pgslice needs to replicate a
// table from the Postgres system catalogs: columns, primary key, foreign
// keys, indexes, sequences and comments.
//
// Every method issues exactly one round trip through the injected Querier.
// User-controlled values are bound as parameters; identifiers only reach the
// SQL text through sqlfmt.
package catalog

import (
	"context"
	"fmt"
	"sort"

	"github.com/cybernetics/pgslice/internal/db"
	"github.com/cybernetics/pgslice/internal/sqlfmt"
	"github.com/cybernetics/pgslice/internal/table"
)

// Column is one entry of information_schema.columns.
type Column struct {
	Name     string
	DataType string
}

// Cast is the literal cast used when this column bounds a partition.
func (c Column) Cast() sqlfmt.Cast {
	return sqlfmt.CastFor(c.DataType)
}

// Sequence is a sequence owned by a column of the inspected table.
type Sequence struct {
	RelatedColumn string
	Name          string
}

// Inspector runs catalog lookups on a single connection it does not own.
type Inspector struct {
	q db.Querier
}

// New returns an Inspector backed by q.
func New(q db.Querier) *Inspector {
	return &Inspector{q: q}
}

func (i *Inspector) query(ctx context.Context, op, sql string, args ...any) ([]db.Row, error) {
	rows, err := i.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, &QueryError{Op: op, Err: err}
	}
	return rows, nil
}

// Columns returns the table's columns in catalog order. A missing table
// yields an empty slice, not an error.
func (i *Inspector) Columns(ctx context.Context, t table.Table) ([]Column, error) {
	const q = `SELECT column_name, data_type FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2
ORDER BY ordinal_position`

	rows, err := i.query(ctx, "columns", q, t.Schema, t.Name)
	if err != nil {
		return nil, err
	}
	cols := make([]Column, 0, len(rows))
	for _, r := range rows {
		cols = append(cols, Column{
			Name:     mustString(r, "column_name"),
			DataType: mustString(r, "data_type"),
		})
	}
	return cols, nil
}

// ColumnNames is Columns reduced to names.
func (i *Inspector) ColumnNames(ctx context.Context, t table.Table) ([]string, error) {
	cols, err := i.Columns(ctx, t)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(cols))
	for n, c := range cols {
		names[n] = c.Name
	}
	return names, nil
}

// ColumnCast returns the literal cast for one column, or a
// *ColumnNotFoundError when the column is absent.
func (i *Inspector) ColumnCast(ctx context.Context, t table.Table, column string) (sqlfmt.Cast, error) {
	const q = `SELECT data_type FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2 AND column_name = $3`

	rows, err := i.query(ctx, "column cast", q, t.Schema, t.Name, column)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", &ColumnNotFoundError{Table: t, Column: column}
	}
	return sqlfmt.CastFor(mustString(rows[0], "data_type")), nil
}

// Sequences lists sequences that depend on a column of t.
func (i *Inspector) Sequences(ctx context.Context, t table.Table) ([]Sequence, error) {
	const q = `SELECT a.attname AS related_column, s.relname AS sequence_name
FROM pg_class s
  JOIN pg_depend d ON d.objid = s.oid
  JOIN pg_class t ON d.refobjid = t.oid
  JOIN pg_attribute a ON (d.refobjid, d.refobjsubid) = (a.attrelid, a.attnum)
  JOIN pg_namespace n ON n.oid = s.relnamespace
WHERE s.relkind = 'S'
  AND n.nspname = $1
  AND t.relname = $2
ORDER BY s.relname`

	rows, err := i.query(ctx, "sequences", q, t.Schema, t.Name)
	if err != nil {
		return nil, err
	}
	seqs := make([]Sequence, 0, len(rows))
	for _, r := range rows {
		seqs = append(seqs, Sequence{
			RelatedColumn: mustString(r, "related_column"),
			Name:          mustString(r, "sequence_name"),
		})
	}
	return seqs, nil
}

// ForeignKeys returns constraint definitions verbatim, ready to be replayed
// with ALTER TABLE ... ADD.
func (i *Inspector) ForeignKeys(ctx context.Context, t table.Table) ([]string, error) {
	q := `SELECT pg_get_constraintdef(oid) AS definition FROM pg_constraint
WHERE conrelid = ` + sqlfmt.Regclass(t) + ` AND contype = 'f'
ORDER BY conname`

	rows, err := i.query(ctx, "foreign keys", q)
	if err != nil {
		return nil, err
	}
	return column(rows, "definition"), nil
}

// PrimaryKey returns primary key columns in index key order. A table
// without a primary key yields an empty slice.
func (i *Inspector) PrimaryKey(ctx context.Context, t table.Table) ([]string, error) {
	const q = `SELECT a.attname
FROM pg_index i
  JOIN pg_class c ON c.oid = i.indrelid
  JOIN pg_namespace n ON n.oid = c.relnamespace
  JOIN pg_attribute a ON a.attrelid = c.oid AND a.attnum = ANY(i.indkey)
WHERE n.nspname = $1 AND c.relname = $2 AND i.indisprimary
ORDER BY array_position(i.indkey::int2[], a.attnum)`

	rows, err := i.query(ctx, "primary key", q, t.Schema, t.Name)
	if err != nil {
		return nil, err
	}
	return column(rows, "attname"), nil
}

// RequirePrimaryKey returns the single primary key column used to drive
// range backfill.
func (i *Inspector) RequirePrimaryKey(ctx context.Context, t table.Table) (string, error) {
	pk, err := i.PrimaryKey(ctx, t)
	if err != nil {
		return "", err
	}
	switch len(pk) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrNoPrimaryKey, t)
	case 1:
		return pk[0], nil
	default:
		return "", fmt.Errorf("%w: %s has %d key columns", ErrCompositePrimaryKey, t, len(pk))
	}
}

// IndexDefs returns CREATE INDEX statements for every non-primary index.
// They still reference t; see slice.RenameIndexDef to rebind them.
func (i *Inspector) IndexDefs(ctx context.Context, t table.Table) ([]string, error) {
	q := `SELECT pg_get_indexdef(indexrelid) AS definition FROM pg_index
WHERE indrelid = ` + sqlfmt.Regclass(t) + ` AND indisprimary = 'f'
ORDER BY indexrelid`

	rows, err := i.query(ctx, "index definitions", q)
	if err != nil {
		return nil, err
	}
	return column(rows, "definition"), nil
}

// Comment returns the table comment, if any.
func (i *Inspector) Comment(ctx context.Context, t table.Table) (string, bool, error) {
	q := `SELECT obj_description(` + sqlfmt.Regclass(t) + `, 'pg_class') AS comment`

	rows, err := i.query(ctx, "comment", q)
	if err != nil {
		return "", false, err
	}
	return optionalString(rows, "comment")
}

// TriggerComment returns the comment on trigger name of t, if any.
func (i *Inspector) TriggerComment(ctx context.Context, t table.Table, name string) (string, bool, error) {
	q := `SELECT obj_description(oid, 'pg_trigger') AS comment FROM pg_trigger
WHERE tgname = $1 AND tgrelid = ` + sqlfmt.Regclass(t)

	rows, err := i.query(ctx, "trigger comment", q, name)
	if err != nil {
		return "", false, err
	}
	return optionalString(rows, "comment")
}

// Exists reports an exact (schema, name) match in pg_tables.
func (i *Inspector) Exists(ctx context.Context, t table.Table) (bool, error) {
	const q = `SELECT 1 AS found FROM pg_catalog.pg_tables WHERE schemaname = $1 AND tablename = $2`

	rows, err := i.query(ctx, "exists", q, t.Schema, t.Name)
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// ExistingTablesLike lists tables in schema whose name matches the LIKE
// pattern, sorted ascending by qualified name.
func (i *Inspector) ExistingTablesLike(ctx context.Context, schema, pattern string) ([]table.Table, error) {
	const q = `SELECT schemaname, tablename FROM pg_catalog.pg_tables
WHERE schemaname = $1 AND tablename LIKE $2`

	rows, err := i.query(ctx, "tables like", q, schema, pattern)
	if err != nil {
		return nil, err
	}
	return sortedTables(rows), nil
}

// Partitions lists the direct children attached to t through pg_inherits,
// sorted ascending by qualified name.
func (i *Inspector) Partitions(ctx context.Context, t table.Table) ([]table.Table, error) {
	const q = `SELECT nc.nspname AS schemaname, c.relname AS tablename
FROM pg_inherits i
  JOIN pg_class p ON p.oid = i.inhparent
  JOIN pg_namespace np ON np.oid = p.relnamespace
  JOIN pg_class c ON c.oid = i.inhrelid
  JOIN pg_namespace nc ON nc.oid = c.relnamespace
WHERE np.nspname = $1 AND p.relname = $2`

	rows, err := i.query(ctx, "partitions", q, t.Schema, t.Name)
	if err != nil {
		return nil, err
	}
	return sortedTables(rows), nil
}

// mustString reads a text value. A missing key means the query and the
// decoder disagree, which is a bug rather than a runtime condition.
func mustString(r db.Row, key string) string {
	v, ok := r[key]
	if !ok {
		panic(fmt.Sprintf("catalog: result row has no %q column", key))
	}
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprint(s)
	}
}

func column(rows []db.Row, key string) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, mustString(r, key))
	}
	return out
}

func optionalString(rows []db.Row, key string) (string, bool, error) {
	if len(rows) == 0 {
		return "", false, nil
	}
	v, ok := rows[0][key]
	if !ok {
		panic(fmt.Sprintf("catalog: result row has no %q column", key))
	}
	if v == nil {
		return "", false, nil
	}
	return mustString(rows[0], key), true, nil
}

func sortedTables(rows []db.Row) []table.Table {
	out := make([]table.Table, 0, len(rows))
	for _, r := range rows {
		out = append(out, table.New(mustString(r, "schemaname"), mustString(r, "tablename")))
	}
	sort.Slice(out, func(a, b int) bool { return out[a].String() < out[b].String() })
	return out
}
