package partition

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cybernetics/pgslice/internal/table"
)

// Matcher returns the pattern a child of parent must fully match to count
// as a partition: the literal "<name>_" followed by exactly Digits() digits,
// or by 6 or 8 digits when p is None.
func Matcher(parent table.Table, p Period) *regexp.Regexp {
	digits := `(?:\d{6}|\d{8})`
	if n := p.Digits(); n > 0 {
		digits = `\d{` + strconv.Itoa(n) + `}`
	}
	return regexp.MustCompile(`^` + regexp.QuoteMeta(parent.Name+"_") + digits + `$`)
}

// TableLister lists tables of one schema by LIKE pattern, ascending.
type TableLister interface {
	ExistingTablesLike(ctx context.Context, schema, pattern string) ([]table.Table, error)
}

// Resolver finds the partitions that already exist for a parent.
type Resolver struct {
	lister TableLister
}

func NewResolver(l TableLister) *Resolver {
	return &Resolver{lister: l}
}

// ExistingPartitions returns the children of parent whose names carry a
// period suffix, in the lister's ascending order. LIKE only narrows the
// candidates; the Matcher decides.
func (r *Resolver) ExistingPartitions(ctx context.Context, parent table.Table, p Period) ([]table.Table, error) {
	candidates, err := r.lister.ExistingTablesLike(ctx, parent.Schema, likePrefix(parent.Name)+"%")
	if err != nil {
		return nil, err
	}
	re := Matcher(parent, p)
	out := make([]table.Table, 0, len(candidates))
	for _, c := range candidates {
		if c.Schema == parent.Schema && re.MatchString(c.Name) {
			out = append(out, c)
		}
	}
	return out, nil
}

// likePrefix escapes LIKE wildcards in name and appends the "_" separator.
func likePrefix(name string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(name) + `\_`
}

// PartitionTime parses the period start encoded in the name of p. With
// None the width is taken from the suffix length.
func PartitionTime(p, parent table.Table, period Period) (time.Time, error) {
	suffix, ok := strings.CutPrefix(p.Name, parent.Name+"_")
	if !ok {
		return time.Time{}, fmt.Errorf("%s is not a partition of %s", p, parent)
	}
	layout := period.NameFormat()
	if period == None {
		switch len(suffix) {
		case Day.Digits():
			layout = Day.NameFormat()
		case Month.Digits():
			layout = Month.NameFormat()
		}
	}
	if layout == "" || len(suffix) != len(layout) {
		return time.Time{}, fmt.Errorf("%s: suffix %q does not encode a %s", p, suffix, periodName(period))
	}
	t, err := time.ParseInLocation(layout, suffix, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", p, err)
	}
	return t, nil
}

func periodName(p Period) string {
	if p == None {
		return "day or month"
	}
	return string(p)
}
