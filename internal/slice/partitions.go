package slice

import (
	"context"
	"fmt"
	"time"

	"github.com/cybernetics/pgslice/internal/partition"
	"github.com/cybernetics/pgslice/internal/sqlfmt"
	"github.com/cybernetics/pgslice/internal/table"
)

// AddPartitionsOptions controls which periods get a partition.
type AddPartitionsOptions struct {
	// Intermediate targets t's intermediate table instead of t.
	Intermediate bool
	// Past and Future count periods before and after the current one.
	Past   int
	Future int
	// Tablespace is optional.
	Tablespace string
	// Now overrides the clock; zero means time.Now.
	Now time.Time
}

// AddPartitions creates the missing partitions in [now-Past, now+Future]
// periods. Partitions that already exist are skipped.
func (p *Planner) AddPartitions(ctx context.Context, t table.Table, opts AddPartitionsOptions) (Plan, error) {
	target := t
	if opts.Intermediate {
		target = t.IntermediateTable()
	}
	if err := p.assertTable(ctx, target); err != nil {
		return Plan{}, err
	}

	settings, err := partition.FetchSettings(ctx, p.catalog, target, t.TriggerName())
	if err != nil {
		return Plan{}, err
	}
	if !settings.Declarative() {
		return Plan{}, fmt.Errorf("%w: %s uses trigger-based partitioning (version %d)", ErrUnsupported, target, settings.Version)
	}

	var stmts []string
	if settings.NeedsComment {
		stmts = append(stmts, fmt.Sprintf("COMMENT ON TABLE %s IS %s",
			sqlfmt.QuoteTable(target), sqlfmt.QuoteLiteral(settings.Comment())))
	}

	// Partitions are named after t whichever table they attach to.
	existing, err := p.partitions.ExistingPartitions(ctx, t, settings.Period)
	if err != nil {
		return Plan{}, err
	}
	have := make(map[table.Table]bool, len(existing))
	for _, e := range existing {
		have[e] = true
	}

	// Structure to copy comes from the original table while it is still
	// the live one, and from the newest partition once swapped.
	schemaTable := t
	if !opts.Intermediate && len(existing) > 0 {
		schemaTable = existing[len(existing)-1]
	}
	pk, err := p.catalog.PrimaryKey(ctx, schemaTable)
	if err != nil {
		return Plan{}, err
	}
	var indexDefs, fks []string
	if settings.Version < partition.CurrentVersion {
		if indexDefs, err = p.catalog.IndexDefs(ctx, schemaTable); err != nil {
			return Plan{}, err
		}
		if fks, err = p.catalog.ForeignKeys(ctx, schemaTable); err != nil {
			return Plan{}, err
		}
	}

	tablespace := ""
	if opts.Tablespace != "" {
		tablespace = " TABLESPACE " + sqlfmt.QuoteIdent(opts.Tablespace)
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	period := settings.Period
	today := period.Round(now)

	for n := -opts.Past; n <= opts.Future; n++ {
		day := period.Advance(today, n)
		part := t.Partition(day.Format(period.NameFormat()))
		if have[part] {
			continue
		}

		stmts = append(stmts, fmt.Sprintf("CREATE TABLE %s PARTITION OF %s FOR VALUES FROM (%s) TO (%s)%s",
			sqlfmt.QuoteTable(part), sqlfmt.QuoteTable(target),
			sqlfmt.TimeValue(day, settings.Cast), sqlfmt.TimeValue(period.Advance(day, 1), settings.Cast),
			tablespace))
		if len(pk) > 0 {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ADD PRIMARY KEY (%s)",
				sqlfmt.QuoteTable(part), sqlfmt.QuoteIdents(pk)))
		}
		for _, def := range indexDefs {
			stmts = append(stmts, RenameIndexDef(def, part))
		}
		for _, fk := range fks {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ADD %s", sqlfmt.QuoteTable(part), fk))
		}
	}
	return Plan{Statements: stmts, Transactional: true}, nil
}
