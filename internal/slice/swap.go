package slice

import (
	"context"
	"fmt"

	"github.com/cybernetics/pgslice/internal/sqlfmt"
	"github.com/cybernetics/pgslice/internal/table"
)

// DefaultLockTimeout bounds how long the renames wait for locks.
const DefaultLockTimeout = "5s"

// SwapOptions tunes Swap and Unswap.
type SwapOptions struct {
	LockTimeout string
	// Force skips the column set comparison.
	Force bool
}

// Swap retires t and renames its intermediate table into place. Sequences
// owned by t move to the new table.
func (p *Planner) Swap(ctx context.Context, t table.Table, opts SwapOptions) (Plan, error) {
	intermediate, retired := t.IntermediateTable(), t.RetiredTable()
	if err := p.assertTable(ctx, t); err != nil {
		return Plan{}, err
	}
	if err := p.assertTable(ctx, intermediate); err != nil {
		return Plan{}, err
	}
	if err := p.assertNoTable(ctx, retired); err != nil {
		return Plan{}, err
	}
	return p.renames(ctx, t, opts, [][2]table.Table{
		{t, retired},
		{intermediate, t},
	})
}

// Unswap reverses Swap.
func (p *Planner) Unswap(ctx context.Context, t table.Table, opts SwapOptions) (Plan, error) {
	intermediate, retired := t.IntermediateTable(), t.RetiredTable()
	if err := p.assertTable(ctx, t); err != nil {
		return Plan{}, err
	}
	if err := p.assertTable(ctx, retired); err != nil {
		return Plan{}, err
	}
	if err := p.assertNoTable(ctx, intermediate); err != nil {
		return Plan{}, err
	}
	return p.renames(ctx, t, opts, [][2]table.Table{
		{t, intermediate},
		{retired, t},
	})
}

// renames checks the two tables trading places share a column set, then
// plans the renames in order. moves[1][0] is the table that ends up as t.
func (p *Planner) renames(ctx context.Context, t table.Table, opts SwapOptions, moves [][2]table.Table) (Plan, error) {
	outgoing, incoming := moves[0][0], moves[1][0]
	if !opts.Force {
		if err := p.checkDrift(ctx, outgoing, incoming); err != nil {
			return Plan{}, err
		}
	}

	seqs, err := p.catalog.Sequences(ctx, outgoing)
	if err != nil {
		return Plan{}, err
	}

	timeout := opts.LockTimeout
	if timeout == "" {
		timeout = DefaultLockTimeout
	}
	stmts := []string{"SET LOCAL lock_timeout = " + sqlfmt.QuoteLiteral(timeout)}
	for _, m := range moves {
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s RENAME TO %s",
			sqlfmt.QuoteTable(m[0]), sqlfmt.QuoteNoSchema(m[1])))
	}
	for _, s := range seqs {
		stmts = append(stmts, fmt.Sprintf("ALTER SEQUENCE %s OWNED BY %s.%s",
			sqlfmt.QuoteTable(table.New(t.Schema, s.Name)), sqlfmt.QuoteTable(t), sqlfmt.QuoteIdent(s.RelatedColumn)))
	}
	return Plan{Statements: stmts, Transactional: true}, nil
}

func (p *Planner) checkDrift(ctx context.Context, a, b table.Table) error {
	sa, err := p.catalog.Snapshot(ctx, a)
	if err != nil {
		return err
	}
	sb, err := p.catalog.Snapshot(ctx, b)
	if err != nil {
		return err
	}
	if sa.Fingerprint() != sb.Fingerprint() {
		return fmt.Errorf("%w: %s and %s", ErrSchemaDrift, a, b)
	}
	return nil
}
