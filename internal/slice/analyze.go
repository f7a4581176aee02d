package slice

import (
	"context"

	"github.com/cybernetics/pgslice/internal/sqlfmt"
	"github.com/cybernetics/pgslice/internal/table"
)

// AnalyzeOptions picks the parent.
type AnalyzeOptions struct {
	// Swapped analyzes t itself rather than its intermediate table.
	Swapped bool
}

// Analyze refreshes planner statistics for every partition and then the
// parent. ANALYZE VERBOSE cannot share a transaction with the others.
func (p *Planner) Analyze(ctx context.Context, t table.Table, opts AnalyzeOptions) (Plan, error) {
	parent := t.IntermediateTable()
	if opts.Swapped {
		parent = t
	}
	if err := p.assertTable(ctx, parent); err != nil {
		return Plan{}, err
	}
	parts, err := p.catalog.Partitions(ctx, parent)
	if err != nil {
		return Plan{}, err
	}

	stmts := make([]string, 0, len(parts)+1)
	for _, part := range append(parts, parent) {
		stmts = append(stmts, "ANALYZE VERBOSE "+sqlfmt.QuoteTable(part))
	}
	return Plan{Statements: stmts}, nil
}
