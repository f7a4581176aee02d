// Package slice plans the statements behind each pgslice command. Planners
// read the catalog through the core packages and return SQL text; running
// it is the caller's business.
package slice

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/cybernetics/pgslice/internal/catalog"
	"github.com/cybernetics/pgslice/internal/db"
	"github.com/cybernetics/pgslice/internal/partition"
	"github.com/cybernetics/pgslice/internal/ranges"
	"github.com/cybernetics/pgslice/internal/sqlfmt"
	"github.com/cybernetics/pgslice/internal/table"
)

var (
	// ErrTableExists is returned when a table the command would create is
	// already there.
	ErrTableExists = errors.New("table already exists")
	// ErrTableNotFound is returned when a table the command needs is missing.
	ErrTableNotFound = errors.New("table not found")
	// ErrSchemaDrift is returned by Swap and Unswap when the two tables no
	// longer share a column set.
	ErrSchemaDrift = errors.New("column sets differ")
	// ErrUnsupported covers options and legacy layouts the planners refuse.
	ErrUnsupported = errors.New("unsupported")
)

// Plan is an ordered list of statements.
type Plan struct {
	Statements []string
	// Transactional plans run in a single transaction; others run one
	// statement at a time.
	Transactional bool
}

// Planner gathers facts through one Querier.
type Planner struct {
	catalog    *catalog.Inspector
	ranges     *ranges.Finder
	partitions *partition.Resolver
}

func New(q db.Querier) *Planner {
	ins := catalog.New(q)
	return &Planner{
		catalog:    ins,
		ranges:     ranges.New(q),
		partitions: partition.NewResolver(ins),
	}
}

func (p *Planner) assertTable(ctx context.Context, t table.Table) error {
	ok, err := t.Exists(ctx, p.catalog)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrTableNotFound, t)
	}
	return nil
}

func (p *Planner) assertNoTable(ctx context.Context, t table.Table) error {
	ok, err := t.Exists(ctx, p.catalog)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%w: %s", ErrTableExists, t)
	}
	return nil
}

var (
	indexTarget = regexp.MustCompile(` ON \S+ USING `)
	indexName   = regexp.MustCompile(` INDEX .+ ON `)
)

// RenameIndexDef rebinds a pg_get_indexdef statement to t and drops the
// index name so Postgres picks one.
//
//	CREATE INDEX events_user_id_idx ON public.events USING btree (user_id)
//	=> CREATE INDEX ON "public"."events_20230101" USING btree (user_id)
func RenameIndexDef(def string, t table.Table) string {
	def = replaceFirst(indexTarget, def, " ON "+sqlfmt.QuoteTable(t)+" USING ")
	return replaceFirst(indexName, def, " INDEX ON ")
}

func replaceFirst(re *regexp.Regexp, s, repl string) string {
	loc := re.FindStringIndex(s)
	if loc == nil {
		return s
	}
	return s[:loc[0]] + repl + s[loc[1]:]
}
