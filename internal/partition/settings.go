package partition

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cybernetics/pgslice/internal/sqlfmt"
	"github.com/cybernetics/pgslice/internal/table"
)

// ErrNoSettings is returned when neither the insert trigger nor the table
// carries a settings comment.
var ErrNoSettings = errors.New("no partitioning settings found")

// CurrentVersion is written by prep. Versions 2 and up are declarative;
// below 3, partitions also receive copies of the parent's indexes and
// foreign keys.
const CurrentVersion = 3

// Settings is what prep records on the intermediate table, in a comment of
// the form "column:created_at,period:day,cast:date,version:3".
type Settings struct {
	Column  string
	Period  Period
	Cast    sqlfmt.Cast
	Version int

	// NeedsComment is set when the stored comment was incomplete and
	// should be rewritten with Comment().
	NeedsComment bool
}

// Declarative reports native (non-trigger) partitioning.
func (s Settings) Declarative() bool { return s.Version > 1 }

// Comment renders the settings comment.
func (s Settings) Comment() string {
	return fmt.Sprintf("column:%s,period:%s,cast:%s,version:%d", s.Column, s.Period, s.Cast, s.Version)
}

// ParseSettings reads a settings comment. Keys may appear in any order;
// unknown keys are ignored. Version is 0 when absent.
func ParseSettings(comment string) (Settings, error) {
	var s Settings
	for _, part := range strings.Split(comment, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			continue
		}
		switch k {
		case "column":
			s.Column = v
		case "period":
			p, err := ParsePeriod(v)
			if err != nil {
				return Settings{}, err
			}
			s.Period = p
		case "cast":
			s.Cast = sqlfmt.Cast(v)
		case "version":
			n, err := strconv.Atoi(v)
			if err != nil {
				return Settings{}, fmt.Errorf("settings version %q: %w", v, err)
			}
			s.Version = n
		}
	}
	if s.Column == "" || s.Period == None {
		return Settings{}, fmt.Errorf("%w: comment %q lacks column or period", ErrNoSettings, comment)
	}
	return s, nil
}

// CommentReader is the part of the catalog FetchSettings needs.
type CommentReader interface {
	Comment(ctx context.Context, t table.Table) (string, bool, error)
	TriggerComment(ctx context.Context, t table.Table, trigger string) (string, bool, error)
}

// FetchSettings reads settings from the comment on trigger, falling back to
// the table comment. A comment without a cast predates timestamptz support
// and is read as date. A missing version is 1 for trigger comments and 2
// for table comments.
func FetchSettings(ctx context.Context, r CommentReader, t table.Table, trigger string) (Settings, error) {
	comment, fromTrigger, err := r.TriggerComment(ctx, t, trigger)
	if err != nil {
		return Settings{}, err
	}
	if !fromTrigger {
		var ok bool
		comment, ok, err = r.Comment(ctx, t)
		if err != nil {
			return Settings{}, err
		}
		if !ok {
			return Settings{}, fmt.Errorf("%w on %s", ErrNoSettings, t)
		}
	}

	s, err := ParseSettings(comment)
	if err != nil {
		return Settings{}, fmt.Errorf("%s: %w", t, err)
	}
	if s.Cast == "" {
		s.Cast = sqlfmt.CastDate
		s.NeedsComment = true
	}
	if s.Version == 0 {
		s.Version = 2
		if fromTrigger {
			s.Version = 1
		}
	}
	return s, nil
}
