// Package runner prints planned statements and, unless dry-running,
// executes them.
package runner

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/cybernetics/pgslice/internal/db"
	"github.com/cybernetics/pgslice/internal/logging"
	"github.com/cybernetics/pgslice/internal/metrics"
	"github.com/cybernetics/pgslice/internal/slice"
)

// quietNotices keeps NOTICE chatter out of transactional runs.
const quietNotices = "SET LOCAL client_min_messages TO warning"

// Options configures a Runner.
type Options struct {
	Logger *zap.Logger
	DryRun bool
	// Job labels metrics; usually the table being sliced.
	Job string
}

// Runner owns no connection; the caller closes db.
type Runner struct {
	db     db.DB
	out    io.Writer
	log    *zap.Logger
	dryRun bool
	job    string
}

func New(d db.DB, out io.Writer, opts Options) *Runner {
	return &Runner{
		db:     d,
		out:    out,
		log:    logging.OrNop(opts.Logger),
		dryRun: opts.DryRun,
		job:    opts.Job,
	}
}

func (r *Runner) print(sql string) {
	fmt.Fprintf(r.out, "%s;\n\n", sql)
}

// Run prints every statement of plan and executes it, in one transaction
// when the plan asks for it.
func (r *Runner) Run(ctx context.Context, plan slice.Plan) error {
	if !plan.Transactional {
		for _, stmt := range plan.Statements {
			r.print(stmt)
			if r.dryRun {
				continue
			}
			if _, err := r.db.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("execute: %w", err)
			}
		}
		return nil
	}

	r.print("BEGIN")
	if r.dryRun {
		for _, stmt := range plan.Statements {
			r.print(stmt)
		}
		r.print("COMMIT")
		return nil
	}

	err := db.InTx(ctx, r.db, func(tx db.Tx) error {
		if _, err := tx.Exec(ctx, quietNotices); err != nil {
			return fmt.Errorf("execute: %w", err)
		}
		for _, stmt := range plan.Statements {
			r.print(stmt)
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("execute: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.print("COMMIT")
	return nil
}

// RunFill runs each batch as its own autocommit statement, at most one
// batch per sleep. Progress survives interruption: rerunning fill resumes
// after the destination's maximum key.
func (r *Runner) RunFill(ctx context.Context, plan slice.FillPlan, sleep time.Duration) error {
	if plan.Empty() {
		fmt.Fprint(r.out, "/* nothing to fill */\n\n")
		return nil
	}

	var limiter *rate.Limiter
	if sleep > 0 && !r.dryRun {
		limiter = rate.NewLimiter(rate.Every(sleep), 1)
	}

	for _, b := range plan.Batches {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		}
		r.print(b.SQL)
		if r.dryRun {
			continue
		}

		start := time.Now()
		n, err := r.db.Exec(ctx, b.SQL)
		if err != nil {
			return fmt.Errorf("batch %d of %d: %w", b.Index, b.Count, err)
		}
		metrics.RecordRows(r.job, "copied", n)
		metrics.RecordBatches(r.job, 1)
		r.log.Debug("batch copied",
			zap.Int("batch", b.Index),
			zap.Int("of", b.Count),
			zap.Int64("rows", n),
			zap.Duration("took", time.Since(start)))
	}
	return nil
}
