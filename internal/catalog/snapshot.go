package catalog

import (
	"context"
	"sort"
	"strconv"

	"github.com/zeebo/xxh3"

	"github.com/cybernetics/pgslice/internal/table"
)

// Snapshot is a point-in-time read of a table's structure. Reads are not
// consistent with each other unless the Querier is a transaction.
type Snapshot struct {
	Table       table.Table
	Columns     []Column
	PrimaryKey  []string
	ForeignKeys []string
	IndexDefs   []string
	Sequences   []Sequence
	Comment     *string
}

// Snapshot collects every structural fact of t, one round trip each.
func (i *Inspector) Snapshot(ctx context.Context, t table.Table) (*Snapshot, error) {
	s := &Snapshot{Table: t}
	var err error

	if s.Columns, err = i.Columns(ctx, t); err != nil {
		return nil, err
	}
	if s.PrimaryKey, err = i.PrimaryKey(ctx, t); err != nil {
		return nil, err
	}
	if s.ForeignKeys, err = i.ForeignKeys(ctx, t); err != nil {
		return nil, err
	}
	if s.IndexDefs, err = i.IndexDefs(ctx, t); err != nil {
		return nil, err
	}
	if s.Sequences, err = i.Sequences(ctx, t); err != nil {
		return nil, err
	}
	comment, ok, err := i.Comment(ctx, t)
	if err != nil {
		return nil, err
	}
	if ok {
		s.Comment = &comment
	}
	return s, nil
}

// Fingerprint hashes the column set (name and type, order-insensitive).
// Two tables with equal fingerprints accept the same INSERT ... SELECT column
// list. Keys and indexes are left out: a partitioned parent carries neither
// until partitions are attached.
func (s *Snapshot) Fingerprint() uint64 {
	cols := make([]string, len(s.Columns))
	for n, c := range s.Columns {
		cols[n] = c.Name + "\x00" + c.DataType
	}
	sort.Strings(cols)

	h := xxh3.New()
	writeField(h, "columns:"+strconv.Itoa(len(cols)))
	for _, c := range cols {
		writeField(h, c)
	}
	return h.Sum64()
}

// writeField length-prefixes v so adjacent fields cannot collide.
func writeField(h *xxh3.Hasher, v string) {
	_, _ = h.Write([]byte(strconv.Itoa(len(v)) + ":" + v))
}
