package slice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cybernetics/pgslice/internal/partition"
	"github.com/cybernetics/pgslice/internal/ranges"
	"github.com/cybernetics/pgslice/internal/sqlfmt"
	"github.com/cybernetics/pgslice/internal/table"
)

// DefaultBatchSize is used when FillOptions.BatchSize is zero.
const DefaultBatchSize int64 = 10000

// FillOptions selects what to copy.
type FillOptions struct {
	// Swapped copies from the retired table into t.
	Swapped bool
	// SourceTable and DestTable override the defaults.
	SourceTable *table.Table
	DestTable   *table.Table
	BatchSize   int64
	// Start resumes after this key instead of the destination's maximum.
	Start *int64
	// Where is an extra predicate applied to every batch.
	Where string
}

// FillBatch is one INSERT ... SELECT of a FillPlan.
type FillBatch struct {
	ranges.Batch
	SQL string
}

// FillPlan copies rows from Source to Dest in key order. Each batch is its
// own statement and commits on its own.
type FillPlan struct {
	Source     table.Table
	Dest       table.Table
	PrimaryKey string
	// From is the last key already present in Dest; To is the source's
	// maximum key.
	From    int64
	To      int64
	Batches []FillBatch
}

// Empty reports that nothing is left to copy.
func (f FillPlan) Empty() bool { return len(f.Batches) == 0 }

// Fill plans the backfill of t's destination from its source.
func (p *Planner) Fill(ctx context.Context, t table.Table, opts FillOptions) (FillPlan, error) {
	source, dest := t, t.IntermediateTable()
	if opts.Swapped {
		source, dest = t.RetiredTable(), t
	}
	if opts.SourceTable != nil {
		source = *opts.SourceTable
	}
	if opts.DestTable != nil {
		dest = *opts.DestTable
	}
	if err := p.assertTable(ctx, source); err != nil {
		return FillPlan{}, err
	}
	if err := p.assertTable(ctx, dest); err != nil {
		return FillPlan{}, err
	}
	batchSize := opts.BatchSize
	if batchSize == 0 {
		batchSize = DefaultBatchSize
	}

	// A destination without settings was prepped without partitioning;
	// rows are then copied without time bounds.
	settings, err := partition.FetchSettings(ctx, p.catalog, dest, t.TriggerName())
	hasSettings := err == nil
	if err != nil && !errors.Is(err, partition.ErrNoSettings) {
		return FillPlan{}, err
	}

	var (
		startTime, endTime *time.Time
		schemaTable        = t
	)
	if hasSettings {
		existing, err := p.partitions.ExistingPartitions(ctx, t, settings.Period)
		if err != nil {
			return FillPlan{}, err
		}
		if len(existing) > 0 {
			first, err := partition.PartitionTime(existing[0], t, settings.Period)
			if err != nil {
				return FillPlan{}, err
			}
			last, err := partition.PartitionTime(existing[len(existing)-1], t, settings.Period)
			if err != nil {
				return FillPlan{}, err
			}
			end := settings.Period.Advance(last, 1)
			startTime, endTime = &first, &end
			if settings.Declarative() {
				schemaTable = existing[len(existing)-1]
			}
		}
	}

	pk, err := p.catalog.RequirePrimaryKey(ctx, schemaTable)
	if err != nil {
		return FillPlan{}, err
	}

	maxSource, err := p.ranges.MaxID(ctx, source, pk, ranges.MaxOptions{})
	if err != nil {
		return FillPlan{}, err
	}

	var maxDest int64
	switch {
	case opts.Start != nil:
		maxDest = *opts.Start
	case opts.Swapped:
		maxDest, err = p.ranges.MaxID(ctx, dest, pk, ranges.MaxOptions{Below: &maxSource, Where: opts.Where})
	default:
		maxDest, err = p.ranges.MaxID(ctx, dest, pk, ranges.MaxOptions{Where: opts.Where})
	}
	if err != nil {
		return FillPlan{}, err
	}
	if maxDest == ranges.EmptyMax && !opts.Swapped {
		minOpts := ranges.MinOptions{Start: startTime, Where: opts.Where}
		minSource, err := p.ranges.MinID(ctx, source, pk, settings.Column, settings.Cast, minOpts)
		if err != nil {
			return FillPlan{}, err
		}
		maxDest = minSource - 1
	}

	batches, err := ranges.Batches(maxDest, maxSource, batchSize)
	if err != nil {
		return FillPlan{}, err
	}

	cols, err := p.catalog.ColumnNames(ctx, source)
	if err != nil {
		return FillPlan{}, err
	}
	fields := sqlfmt.QuoteIdents(cols)
	key := sqlfmt.QuoteIdent(pk)

	plan := FillPlan{Source: source, Dest: dest, PrimaryKey: pk, From: maxDest, To: maxSource}
	for _, b := range batches {
		where := fmt.Sprintf("%s > %d AND %s <= %d", key, b.Lo, key, b.Hi)
		if startTime != nil {
			col := sqlfmt.QuoteIdent(settings.Column)
			where += fmt.Sprintf(" AND %s >= %s AND %s < %s",
				col, sqlfmt.TimeLiteral(*startTime, settings.Cast),
				col, sqlfmt.TimeLiteral(*endTime, settings.Cast))
		}
		if opts.Where != "" {
			where += " AND (" + opts.Where + ")"
		}
		plan.Batches = append(plan.Batches, FillBatch{
			Batch: b,
			SQL: fmt.Sprintf("/* %d of %d */\nINSERT INTO %s (%s)\n    SELECT %s FROM %s\n    WHERE %s",
				b.Index, b.Count, sqlfmt.QuoteTable(dest), fields, fields, sqlfmt.QuoteTable(source), where),
		})
	}
	return plan, nil
}
