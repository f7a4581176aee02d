package main

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cybernetics/pgslice/internal/db"
	"github.com/cybernetics/pgslice/internal/db/dbtest"
	"github.com/cybernetics/pgslice/internal/slice"
	"github.com/cybernetics/pgslice/internal/table"
)

const testURL = "postgres://localhost/app"

func exists(d *dbtest.DB, names ...string) {
	for _, n := range names {
		t, _ := table.Parse(n)
		d.OnArgs("tablename = $2", []any{t.Schema, t.Name}, db.Row{"found": int32(1)})
	}
}

// run executes the CLI against d and returns what it printed.
func run(t *testing.T, d *dbtest.DB, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	a := newApp(&out)
	a.now = func() time.Time { return time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC) }
	a.connect = func(_ context.Context, url string) (db.DB, error) {
		assert.Equal(t, testURL, url)
		return d, nil
	}
	root := newRootCmd(a)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestPrepDryRun(t *testing.T) {
	d := &dbtest.DB{}
	exists(d, "public.events")
	d.OnArgs("column_name = $3", []any{"public", "events", "created_at"}, db.Row{"data_type": "date"})

	out, err := run(t, d, "prep", "events", "created_at", "month", "--url", testURL, "--dry-run")
	require.NoError(t, err)

	assert.Equal(t, "BEGIN;\n\n"+
		`CREATE TABLE "public"."events_intermediate" (LIKE "public"."events" INCLUDING DEFAULTS INCLUDING CONSTRAINTS INCLUDING STORAGE INCLUDING COMMENTS INCLUDING STATISTICS) PARTITION BY RANGE ("created_at");`+"\n\n"+
		`COMMENT ON TABLE "public"."events_intermediate" IS 'column:created_at,period:month,cast:date,version:3';`+"\n\n"+
		"COMMIT;\n\n", out)
	assert.Empty(t, d.Execs())
	assert.True(t, d.Closed())
}

func TestSchemaFlagQualifiesTables(t *testing.T) {
	d := &dbtest.DB{}
	exists(d, "app.events_intermediate")

	out, err := run(t, d, "unprep", "events", "--schema", "app", "--url", testURL)
	require.NoError(t, err)
	assert.Contains(t, out, `DROP TABLE "app"."events_intermediate" CASCADE`)

	execs := d.Execs()
	require.Len(t, execs, 2)
	assert.Equal(t, `DROP TABLE "app"."events_intermediate" CASCADE`, execs[1].SQL)
}

func TestSwapUsesLockTimeout(t *testing.T) {
	d := &dbtest.DB{}
	exists(d, "public.events", "public.events_intermediate")

	_, err := run(t, d, "swap", "public.events", "--lock-timeout", "2s", "--url", testURL)
	require.NoError(t, err)

	txs := d.Txs()
	require.Len(t, txs, 1)
	assert.True(t, txs[0].Committed)
	assert.Equal(t, []string{
		"SET LOCAL client_min_messages TO warning",
		"SET LOCAL lock_timeout = '2s'",
		`ALTER TABLE "public"."events" RENAME TO "events_retired"`,
		`ALTER TABLE "public"."events_intermediate" RENAME TO "events"`,
	}, txs[0].Statements)
}

func TestUnswapRefusesWithoutRetiredTable(t *testing.T) {
	d := &dbtest.DB{}
	exists(d, "public.events")

	_, err := run(t, d, "unswap", "events", "--url", testURL)
	require.ErrorIs(t, err, slice.ErrTableNotFound)
	assert.Empty(t, d.Execs())
}

func TestFillNothingToDo(t *testing.T) {
	d := &dbtest.DB{}
	exists(d, "public.events", "public.events_intermediate")
	d.OnArgs("AND i.indisprimary", []any{"public", "events"}, db.Row{"attname": "id"})

	out, err := run(t, d, "fill", "events", "--batch-size", "50", "--sleep", "1ms", "--url", testURL)
	require.NoError(t, err)
	assert.Equal(t, "/* nothing to fill */\n\n", out)
}

func TestAddPartitionsRejectsNegativeCounts(t *testing.T) {
	_, err := run(t, &dbtest.DB{}, "add_partitions", "events", "--past", "-1", "--url", testURL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must not be negative")
}

func TestArgumentErrors(t *testing.T) {
	for name, args := range map[string][]string{
		"missing table":         {"unprep", "--url", testURL},
		"column without period": {"prep", "events", "created_at", "--url", testURL},
		"too many dots":         {"analyze", "a.b.c", "--url", testURL},
		"missing url":           {"analyze", "events"},
		"bad url":               {"analyze", "events", "--url", "mysql://x"},
	} {
		t.Run(name, func(t *testing.T) {
			d := &dbtest.DB{}
			_, err := run(t, d, args...)
			require.Error(t, err)
			assert.Empty(t, d.Execs())
		})
	}
}

func TestConnectFailure(t *testing.T) {
	var out bytes.Buffer
	a := newApp(&out)
	a.connect = func(context.Context, string) (db.DB, error) { return nil, errors.New("connection refused") }
	root := newRootCmd(a)
	root.SetArgs([]string{"analyze", "events", "--url", testURL})

	err := root.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}
