package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cybernetics/pgslice/internal/db"
	"github.com/cybernetics/pgslice/internal/db/dbtest"
	"github.com/cybernetics/pgslice/internal/sqlfmt"
	"github.com/cybernetics/pgslice/internal/table"
)

var events = table.New("public", "events")

func TestColumns(t *testing.T) {
	ctx := context.Background()

	t.Run("returns catalog order and derives cast", func(t *testing.T) {
		q := (&dbtest.Querier{}).OnArgs("information_schema.columns", []any{"public", "events"},
			db.Row{"column_name": "id", "data_type": "integer"},
			db.Row{"column_name": "created_at", "data_type": "timestamp with time zone"},
		)
		cols, err := New(q).Columns(ctx, events)
		require.NoError(t, err)
		require.Len(t, cols, 2)
		assert.Equal(t, Column{Name: "id", DataType: "integer"}, cols[0])
		assert.Equal(t, sqlfmt.CastDate, cols[0].Cast())
		assert.Equal(t, sqlfmt.CastTimestamptz, cols[1].Cast())

		names, err := New(q).ColumnNames(ctx, events)
		require.NoError(t, err)
		assert.Equal(t, []string{"id", "created_at"}, names)
	})

	t.Run("missing table is empty, not an error", func(t *testing.T) {
		cols, err := New(&dbtest.Querier{}).Columns(ctx, table.New("public", "nope"))
		require.NoError(t, err)
		assert.Empty(t, cols)
	})
}

func TestColumnCast(t *testing.T) {
	ctx := context.Background()

	q := (&dbtest.Querier{}).
		OnArgs("column_name = $3", []any{"public", "events", "created_at"},
			db.Row{"data_type": "timestamp with time zone"}).
		OnArgs("column_name = $3", []any{"public", "events", "day"},
			db.Row{"data_type": "date"})
	ins := New(q)

	c, err := ins.ColumnCast(ctx, events, "created_at")
	require.NoError(t, err)
	assert.Equal(t, sqlfmt.CastTimestamptz, c)

	c, err = ins.ColumnCast(ctx, events, "day")
	require.NoError(t, err)
	assert.Equal(t, sqlfmt.CastDate, c)

	_, err = ins.ColumnCast(ctx, events, "renamed")
	require.ErrorIs(t, err, ErrColumnNotFound)
	var cnf *ColumnNotFoundError
	require.True(t, errors.As(err, &cnf))
	assert.Equal(t, "renamed", cnf.Column)
	assert.Equal(t, events, cnf.Table)
}

func TestPrimaryKey(t *testing.T) {
	ctx := context.Background()

	t.Run("single", func(t *testing.T) {
		q := (&dbtest.Querier{}).On("indisprimary", db.Row{"attname": "id"})
		pk, err := New(q).PrimaryKey(ctx, events)
		require.NoError(t, err)
		assert.Equal(t, []string{"id"}, pk)

		col, err := New(q).RequirePrimaryKey(ctx, events)
		require.NoError(t, err)
		assert.Equal(t, "id", col)

		assert.Contains(t, q.LastCall().SQL, "array_position")
		assert.Equal(t, []any{"public", "events"}, q.LastCall().Args)
	})

	t.Run("none", func(t *testing.T) {
		ins := New(&dbtest.Querier{})
		pk, err := ins.PrimaryKey(ctx, events)
		require.NoError(t, err)
		assert.Empty(t, pk)

		_, err = ins.RequirePrimaryKey(ctx, events)
		assert.ErrorIs(t, err, ErrNoPrimaryKey)
	})

	t.Run("composite keeps key order and is rejected for ranges", func(t *testing.T) {
		q := (&dbtest.Querier{}).On("indisprimary",
			db.Row{"attname": "tenant_id"}, db.Row{"attname": "id"})
		pk, err := New(q).PrimaryKey(ctx, events)
		require.NoError(t, err)
		assert.Equal(t, []string{"tenant_id", "id"}, pk)

		_, err = New(q).RequirePrimaryKey(ctx, events)
		assert.ErrorIs(t, err, ErrCompositePrimaryKey)
	})
}

func TestForeignKeysAndIndexesUseRegclass(t *testing.T) {
	ctx := context.Background()

	q := (&dbtest.Querier{}).
		On("pg_get_constraintdef",
			db.Row{"definition": "FOREIGN KEY (user_id) REFERENCES users(id)"}).
		On("pg_get_indexdef",
			db.Row{"definition": "CREATE INDEX events_user_id_idx ON public.events USING btree (user_id)"})
	ins := New(q)

	fks, err := ins.ForeignKeys(ctx, events)
	require.NoError(t, err)
	assert.Equal(t, []string{"FOREIGN KEY (user_id) REFERENCES users(id)"}, fks)
	assert.Contains(t, q.LastCall().SQL, `conrelid = '"public"."events"'::regclass`)

	idx, err := ins.IndexDefs(ctx, events)
	require.NoError(t, err)
	assert.Equal(t, []string{"CREATE INDEX events_user_id_idx ON public.events USING btree (user_id)"}, idx)
	assert.Contains(t, q.LastCall().SQL, "indisprimary = 'f'")
}

func TestSequences(t *testing.T) {
	q := (&dbtest.Querier{}).OnArgs("pg_depend", []any{"public", "events"},
		db.Row{"related_column": "id", "sequence_name": "events_id_seq"})
	seqs, err := New(q).Sequences(context.Background(), events)
	require.NoError(t, err)
	assert.Equal(t, []Sequence{{RelatedColumn: "id", Name: "events_id_seq"}}, seqs)
}

func TestComments(t *testing.T) {
	ctx := context.Background()

	t.Run("present", func(t *testing.T) {
		q := (&dbtest.Querier{}).
			On("'pg_class'", db.Row{"comment": "column:created_at,period:day,cast:date,version:3"}).
			OnArgs("pg_trigger", []any{"events_insert_trigger"}, db.Row{"comment": "column:created_at,period:month"})
		ins := New(q)

		c, ok, err := ins.Comment(ctx, events)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "column:created_at,period:day,cast:date,version:3", c)

		c, ok, err = ins.TriggerComment(ctx, events, "events_insert_trigger")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "column:created_at,period:month", c)
	})

	t.Run("absent", func(t *testing.T) {
		q := (&dbtest.Querier{}).On("'pg_class'", db.Row{"comment": nil})
		ins := New(q)

		_, ok, err := ins.Comment(ctx, events)
		require.NoError(t, err)
		assert.False(t, ok)

		_, ok, err = ins.TriggerComment(ctx, events, "events_insert_trigger")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestExistsIsExact(t *testing.T) {
	ctx := context.Background()

	q := (&dbtest.Querier{}).OnArgs("pg_tables", []any{"public", "events"}, db.Row{"found": int32(1)})
	ins := New(q)

	ok, err := ins.Exists(ctx, events)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotContains(t, q.LastCall().SQL, "LIKE")

	ok, err = events.Exists(ctx, ins)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ins.Exists(ctx, table.New("public", "events1"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExistingTablesLikeSorted(t *testing.T) {
	q := (&dbtest.Querier{}).OnArgs("LIKE $2", []any{"public", "p_%"},
		db.Row{"schemaname": "public", "tablename": "p_20230102"},
		db.Row{"schemaname": "public", "tablename": "p_weird"},
		db.Row{"schemaname": "public", "tablename": "p_20230101"},
	)
	got, err := New(q).ExistingTablesLike(context.Background(), "public", "p_%")
	require.NoError(t, err)
	assert.Equal(t, []table.Table{
		table.New("public", "p_20230101"),
		table.New("public", "p_20230102"),
		table.New("public", "p_weird"),
	}, got)
}

func TestPartitions(t *testing.T) {
	q := (&dbtest.Querier{}).OnArgs("pg_inherits", []any{"public", "events_intermediate"},
		db.Row{"schemaname": "public", "tablename": "events_20230102"},
		db.Row{"schemaname": "public", "tablename": "events_20230101"},
	)
	got, err := New(q).Partitions(context.Background(), events.IntermediateTable())
	require.NoError(t, err)
	assert.Equal(t, []table.Table{
		table.New("public", "events_20230101"),
		table.New("public", "events_20230102"),
	}, got)
}

func TestQueryFailuresPropagate(t *testing.T) {
	ctx := context.Background()
	pgErr := &pgconn.PgError{Code: "42501", Message: "permission denied for table pg_authid"}
	ins := New((&dbtest.Querier{}).OnErr("", pgErr))

	checks := map[string]func() error{
		"columns":     func() error { _, err := ins.Columns(ctx, events); return err },
		"cast":        func() error { _, err := ins.ColumnCast(ctx, events, "id"); return err },
		"sequences":   func() error { _, err := ins.Sequences(ctx, events); return err },
		"foreignKeys": func() error { _, err := ins.ForeignKeys(ctx, events); return err },
		"primaryKey":  func() error { _, err := ins.PrimaryKey(ctx, events); return err },
		"indexes":     func() error { _, err := ins.IndexDefs(ctx, events); return err },
		"comment":     func() error { _, _, err := ins.Comment(ctx, events); return err },
		"trigger":     func() error { _, _, err := ins.TriggerComment(ctx, events, "x"); return err },
		"exists":      func() error { _, err := ins.Exists(ctx, events); return err },
		"like":        func() error { _, err := ins.ExistingTablesLike(ctx, "public", "e%"); return err },
		"snapshot":    func() error { _, err := ins.Snapshot(ctx, events); return err },
		"partitions":  func() error { _, err := ins.Partitions(ctx, events); return err },
	}
	for name, fn := range checks {
		err := fn()
		assert.ErrorIs(t, err, ErrCatalogQueryFailed, name)
		var got *pgconn.PgError
		if assert.True(t, errors.As(err, &got), name) {
			assert.Same(t, pgErr, got, name)
		}
	}
}

func TestMalformedRowPanics(t *testing.T) {
	q := (&dbtest.Querier{}).On("information_schema.columns", db.Row{"name": "id"})
	assert.Panics(t, func() { _, _ = New(q).Columns(context.Background(), events) })
}
