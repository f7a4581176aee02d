// Package sqlfmt renders quoted identifiers, regclass references and typed
// time literals into SQL text.
//
// This is the only place pgslice interpolates raw text into statements.
// Values that can travel as bind parameters never pass through here.
package sqlfmt

import (
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/cybernetics/pgslice/internal/table"
)

// Cast is the Postgres type used for partition-bound literals.
type Cast string

const (
	CastDate        Cast = "date"
	CastTimestamptz Cast = "timestamptz"
)

const (
	dateLayout        = "2006-01-02"
	timestamptzLayout = "2006-01-02 15:04:05"
)

// CastFor maps a catalog data_type to the cast used for its literals.
func CastFor(dataType string) Cast {
	if dataType == "timestamp with time zone" {
		return CastTimestamptz
	}
	return CastDate
}

// QuoteIdent quotes a single identifier segment.
//
//	QuoteIdent(`events`)     => `"events"`
//	QuoteIdent(`weird"name`) => `"weird""name"`
func QuoteIdent(s string) string {
	return pq.QuoteIdentifier(s)
}

// QuoteTable quotes schema and name independently and joins them with a bare
// dot, e.g. `"My.Schema"."Weird Name"`.
func QuoteTable(t table.Table) string {
	return QuoteIdent(t.Schema) + "." + QuoteIdent(t.Name)
}

// QuoteNoSchema quotes only the name, as required by ALTER TABLE ... RENAME TO.
func QuoteNoSchema(t table.Table) string {
	return QuoteIdent(t.Name)
}

// QuoteIdents quotes each element and joins with ", ".
func QuoteIdents(names []string) string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = QuoteIdent(n)
	}
	return strings.Join(out, ", ")
}

// QuoteLiteral quotes a string constant.
func QuoteLiteral(s string) string {
	return pq.QuoteLiteral(s)
}

// Regclass renders t as a regclass constant so catalog joins can filter by
// relation without resolving the oid first.
func Regclass(t table.Table) string {
	return QuoteLiteral(QuoteTable(t)) + "::regclass"
}

// TimeValue renders the quoted literal text for tm without the cast suffix.
// The value is normalized to UTC first.
func TimeValue(tm time.Time, cast Cast) string {
	tm = tm.UTC()
	if cast == CastTimestamptz {
		return "'" + tm.Format(timestamptzLayout) + " UTC'"
	}
	return "'" + tm.Format(dateLayout) + "'"
}

// TimeLiteral renders tm as a typed constant, e.g.
// '2023-06-01 15:04:05 UTC'::timestamptz or '2023-06-01'::date.
func TimeLiteral(tm time.Time, cast Cast) string {
	return TimeValue(tm, cast) + "::" + string(cast)
}
