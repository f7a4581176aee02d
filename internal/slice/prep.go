package slice

import (
	"context"
	"fmt"

	"github.com/cybernetics/pgslice/internal/partition"
	"github.com/cybernetics/pgslice/internal/sqlfmt"
	"github.com/cybernetics/pgslice/internal/table"
)

// PrepOptions selects the partition key and width. NoPartition builds a
// plain copy instead and forbids Column and Period.
type PrepOptions struct {
	Column      string
	Period      string
	NoPartition bool
}

const likeOptions = "INCLUDING DEFAULTS INCLUDING CONSTRAINTS INCLUDING STORAGE INCLUDING COMMENTS INCLUDING STATISTICS"

// Prep creates the intermediate table next to t.
func (p *Planner) Prep(ctx context.Context, t table.Table, opts PrepOptions) (Plan, error) {
	intermediate := t.IntermediateTable()
	if err := p.assertTable(ctx, t); err != nil {
		return Plan{}, err
	}
	if err := p.assertNoTable(ctx, intermediate); err != nil {
		return Plan{}, err
	}

	var stmts []string
	var comment string
	if opts.NoPartition {
		if opts.Column != "" || opts.Period != "" {
			return Plan{}, fmt.Errorf("%w: column and period are not allowed with no-partition", ErrUnsupported)
		}
		stmts = append(stmts, fmt.Sprintf("CREATE TABLE %s (LIKE %s INCLUDING ALL)",
			sqlfmt.QuoteTable(intermediate), sqlfmt.QuoteTable(t)))
	} else {
		if opts.Column == "" {
			return Plan{}, fmt.Errorf("%w: a partition column is required", ErrUnsupported)
		}
		period, err := partition.ParsePeriod(opts.Period)
		if err != nil {
			return Plan{}, err
		}
		cast, err := p.catalog.ColumnCast(ctx, t, opts.Column)
		if err != nil {
			return Plan{}, err
		}
		settings := partition.Settings{
			Column:  opts.Column,
			Period:  period,
			Cast:    cast,
			Version: partition.CurrentVersion,
		}
		stmts = append(stmts, fmt.Sprintf("CREATE TABLE %s (LIKE %s %s) PARTITION BY RANGE (%s)",
			sqlfmt.QuoteTable(intermediate), sqlfmt.QuoteTable(t), likeOptions, sqlfmt.QuoteIdent(opts.Column)))
		comment = settings.Comment()
	}

	fks, err := p.catalog.ForeignKeys(ctx, t)
	if err != nil {
		return Plan{}, err
	}
	for _, fk := range fks {
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ADD %s", sqlfmt.QuoteTable(intermediate), fk))
	}
	if comment != "" {
		stmts = append(stmts, fmt.Sprintf("COMMENT ON TABLE %s IS %s",
			sqlfmt.QuoteTable(intermediate), sqlfmt.QuoteLiteral(comment)))
	}
	return Plan{Statements: stmts, Transactional: true}, nil
}

// Unprep drops the intermediate table of t and its partitions.
func (p *Planner) Unprep(ctx context.Context, t table.Table) (Plan, error) {
	intermediate := t.IntermediateTable()
	if err := p.assertTable(ctx, intermediate); err != nil {
		return Plan{}, err
	}
	return Plan{
		Statements:    []string{"DROP TABLE " + sqlfmt.QuoteTable(intermediate) + " CASCADE"},
		Transactional: true,
	}, nil
}
