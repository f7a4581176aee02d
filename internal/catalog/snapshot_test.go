package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cybernetics/pgslice/internal/db"
	"github.com/cybernetics/pgslice/internal/db/dbtest"
)

func snapshotQuerier() *dbtest.Querier {
	return (&dbtest.Querier{}).
		On("information_schema.columns",
			db.Row{"column_name": "id", "data_type": "bigint"},
			db.Row{"column_name": "created_at", "data_type": "date"}).
		On("AND i.indisprimary", db.Row{"attname": "id"}).
		On("pg_get_constraintdef", db.Row{"definition": "FOREIGN KEY (user_id) REFERENCES users(id)"}).
		On("pg_get_indexdef").
		On("pg_depend", db.Row{"related_column": "id", "sequence_name": "events_id_seq"}).
		On("'pg_class'", db.Row{"comment": "audit log"})
}

func TestSnapshot(t *testing.T) {
	s, err := New(snapshotQuerier()).Snapshot(context.Background(), events)
	require.NoError(t, err)

	assert.Equal(t, events, s.Table)
	assert.Len(t, s.Columns, 2)
	assert.Equal(t, []string{"id"}, s.PrimaryKey)
	assert.Equal(t, []string{"FOREIGN KEY (user_id) REFERENCES users(id)"}, s.ForeignKeys)
	assert.Empty(t, s.IndexDefs)
	assert.Equal(t, []Sequence{{RelatedColumn: "id", Name: "events_id_seq"}}, s.Sequences)
	require.NotNil(t, s.Comment)
	assert.Equal(t, "audit log", *s.Comment)
}

func TestFingerprint(t *testing.T) {
	base := &Snapshot{
		Columns:    []Column{{"id", "bigint"}, {"created_at", "date"}},
		PrimaryKey: []string{"id"},
	}
	reordered := &Snapshot{
		Columns:    []Column{{"created_at", "date"}, {"id", "bigint"}},
		PrimaryKey: []string{"id"},
		IndexDefs:  []string{"CREATE INDEX ..."},
	}
	assert.Equal(t, base.Fingerprint(), reordered.Fingerprint(), "column order and indexes do not matter")

	added := &Snapshot{
		Columns:    []Column{{"id", "bigint"}, {"created_at", "date"}, {"note", "text"}},
		PrimaryKey: []string{"id"},
	}
	assert.NotEqual(t, base.Fingerprint(), added.Fingerprint())

	retyped := &Snapshot{
		Columns:    []Column{{"id", "integer"}, {"created_at", "date"}},
		PrimaryKey: []string{"id"},
	}
	assert.NotEqual(t, base.Fingerprint(), retyped.Fingerprint())

	noPK := &Snapshot{Columns: base.Columns}
	assert.Equal(t, base.Fingerprint(), noPK.Fingerprint(), "partitioned parents have no primary key")

	renamed := &Snapshot{Columns: []Column{{"id", "bigint"}, {"created", "date"}}}
	assert.NotEqual(t, base.Fingerprint(), renamed.Fingerprint())
}
