// Package ranges computes primary key bounds for backfill and splits them
// into batches.
package ranges

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/cybernetics/pgslice/internal/db"
	"github.com/cybernetics/pgslice/internal/sqlfmt"
	"github.com/cybernetics/pgslice/internal/table"
)

var (
	// ErrNonNumericKey is returned when MIN/MAX of the key is not an integer.
	ErrNonNumericKey = errors.New("primary key is not numeric")
	// ErrInvalidBatchSize is returned by Batches for a non-positive size.
	ErrInvalidBatchSize = errors.New("batch size must be positive")
)

const (
	// EmptyMax is what MaxID returns when no row qualifies.
	EmptyMax int64 = 0
	// EmptyMin is what MinID returns when no row qualifies.
	EmptyMin int64 = 1
)

// MaxOptions narrows MaxID.
type MaxOptions struct {
	// Below bounds the key inclusively (pk <= Below). Bound as a parameter.
	Below *int64
	// Where is an extra predicate, inlined verbatim.
	Where string
}

// MinOptions narrows MinID.
type MinOptions struct {
	// Start keeps rows whose time column is >= Start.
	Start *time.Time
	// Where is an extra predicate, inlined verbatim.
	Where string
}

// Finder issues MIN/MAX aggregate queries over a primary key.
type Finder struct {
	q db.Querier
}

func New(q db.Querier) *Finder {
	return &Finder{q: q}
}

// MaxID returns the largest key of t, or EmptyMax when nothing qualifies.
func (f *Finder) MaxID(ctx context.Context, t table.Table, pk string, opts MaxOptions) (int64, error) {
	var (
		conds []string
		args  []any
	)
	if opts.Below != nil {
		args = append(args, *opts.Below)
		conds = append(conds, fmt.Sprintf("%s <= $%d", sqlfmt.QuoteIdent(pk), len(args)))
	}
	if opts.Where != "" {
		conds = append(conds, "("+opts.Where+")")
	}

	q := "SELECT MAX(" + sqlfmt.QuoteIdent(pk) + ") AS max_id FROM " + sqlfmt.QuoteTable(t) + where(conds)
	v, ok, err := f.aggregate(ctx, "max id", q, "max_id", args...)
	if err != nil || !ok {
		return EmptyMax, err
	}
	return v, nil
}

// MinID returns the smallest key of t whose timeColumn is at or after
// opts.Start, or EmptyMin when nothing qualifies.
func (f *Finder) MinID(ctx context.Context, t table.Table, pk, timeColumn string, cast sqlfmt.Cast, opts MinOptions) (int64, error) {
	var conds []string
	if opts.Start != nil {
		conds = append(conds, sqlfmt.QuoteIdent(timeColumn)+" >= "+sqlfmt.TimeLiteral(*opts.Start, cast))
	}
	if opts.Where != "" {
		conds = append(conds, "("+opts.Where+")")
	}

	q := "SELECT MIN(" + sqlfmt.QuoteIdent(pk) + ") AS min_id FROM " + sqlfmt.QuoteTable(t) + where(conds)
	v, ok, err := f.aggregate(ctx, "min id", q, "min_id")
	if err != nil || !ok {
		return EmptyMin, err
	}
	return v, nil
}

// Range returns [MinID, MaxID] for t. See Range.Empty.
func (f *Finder) Range(ctx context.Context, t table.Table, pk, timeColumn string, cast sqlfmt.Cast, minOpts MinOptions, maxOpts MaxOptions) (Range, error) {
	lo, err := f.MinID(ctx, t, pk, timeColumn, cast, minOpts)
	if err != nil {
		return Range{}, err
	}
	hi, err := f.MaxID(ctx, t, pk, maxOpts)
	if err != nil {
		return Range{}, err
	}
	return Range{Min: lo, Max: hi}, nil
}

func (f *Finder) aggregate(ctx context.Context, op, q, col string, args ...any) (int64, bool, error) {
	rows, err := f.q.Query(ctx, q, args...)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", op, err)
	}
	if len(rows) == 0 || rows[0][col] == nil {
		return 0, false, nil
	}
	v, err := toInt64(rows[0][col])
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", op, err)
	}
	return v, true, nil
}

func where(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int:
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%w: %v", ErrNonNumericKey, n)
		}
		return int64(n), nil
	case pgtype.Numeric:
		i, err := n.Int64Value()
		if err != nil || !i.Valid {
			return 0, fmt.Errorf("%w: numeric value out of range", ErrNonNumericKey)
		}
		return i.Int64, nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrNonNumericKey, n)
		}
		return i, nil
	case []byte:
		return toInt64(string(n))
	default:
		return 0, fmt.Errorf("%w: %T", ErrNonNumericKey, v)
	}
}

// Range is an inclusive key interval. An empty table yields {1, 0}, which
// is Empty rather than a one-element range.
type Range struct {
	Min int64
	Max int64
}

// Empty reports Min > Max.
func (r Range) Empty() bool { return r.Min > r.Max }

// Batch is the half-open window (Lo, Hi] of keys copied by one statement.
type Batch struct {
	Index int
	Count int
	Lo    int64
	Hi    int64
}

// Batches splits (start, max] into windows of size keys. The last window
// may extend past max; the key filter is what bounds the copy. Nothing is
// returned when start >= max.
func Batches(start, max, size int64) ([]Batch, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBatchSize, size)
	}
	if start >= max {
		return []Batch{}, nil
	}
	count := int((max - start + size - 1) / size)
	out := make([]Batch, 0, count)
	for i, lo := 0, start; lo < max; i, lo = i+1, lo+size {
		out = append(out, Batch{Index: i + 1, Count: count, Lo: lo, Hi: lo + size})
	}
	return out, nil
}
