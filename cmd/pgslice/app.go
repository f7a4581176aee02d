package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/cybernetics/pgslice/internal/config"
	"github.com/cybernetics/pgslice/internal/db"
	"github.com/cybernetics/pgslice/internal/logging"
	"github.com/cybernetics/pgslice/internal/metrics"
	"github.com/cybernetics/pgslice/internal/metrics/datadog"
	"github.com/cybernetics/pgslice/internal/metrics/prompush"
	"github.com/cybernetics/pgslice/internal/runner"
	"github.com/cybernetics/pgslice/internal/slice"
	"github.com/cybernetics/pgslice/internal/table"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	v       *viper.Viper
	out     io.Writer
	connect func(ctx context.Context, url string) (db.DB, error)
	now     func() time.Time

	cfg   *config.Config
	log   *zap.Logger
	runID string
}

func newApp(out io.Writer) *app {
	return &app{
		v:       config.NewViper(),
		out:     out,
		connect: db.NewPgDB,
		now:     time.Now,
		log:     zap.NewNop(),
	}
}

// setup loads configuration, validates it and installs logging and
// metrics. It runs before every subcommand.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.v, cmd.Flags())
	if err != nil {
		return err
	}
	issues := config.Validate(*cfg)
	if errs := config.Errors(issues); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return fmt.Errorf("invalid configuration:\n  %s", strings.Join(msgs, "\n  "))
	}

	log, err := logging.New(cfg.Verbose)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	a.cfg = cfg
	a.runID = uuid.NewString()
	a.log = log.With(zap.String("run_id", a.runID))
	for _, iss := range issues {
		a.log.Warn("config", zap.String("path", iss.Path), zap.String("message", iss.Message))
	}
	a.setupMetrics()
	return nil
}

func (a *app) setupMetrics() {
	m := a.cfg.Metrics
	switch m.Backend {
	case "prometheus":
		b, err := prompush.NewBackend(m.Job, m.PushgatewayURL)
		if err != nil {
			a.log.Warn("metrics: prometheus backend unavailable; metrics disabled", zap.Error(err))
			return
		}
		metrics.SetBackend(b)
	case "datadog":
		b, err := datadog.NewBackend(datadog.Config{Addr: m.DatadogAddr})
		if err != nil {
			a.log.Warn("metrics: datadog backend unavailable; metrics disabled", zap.Error(err))
			return
		}
		metrics.SetBackend(b)
	default:
		return
	}
	a.log.Debug("metrics enabled", zap.String("backend", m.Backend))
}

// table qualifies an argument with the configured schema when it has none.
func (a *app) table(arg string) (table.Table, error) {
	if !strings.Contains(arg, ".") {
		arg = a.cfg.Schema + "." + arg
	}
	return table.Parse(arg)
}

// step connects, runs fn and records the outcome. Metrics are flushed
// whether or not fn succeeds.
func (a *app) step(ctx context.Context, name string, t table.Table, fn func(ctx context.Context, p *slice.Planner, r *runner.Runner) error) error {
	log := a.log.With(zap.String("step", name), zap.Stringer("table", t))
	start := a.now()

	err := a.withDB(ctx, func(d db.DB) error {
		r := runner.New(d, a.out, runner.Options{Logger: log, DryRun: a.cfg.DryRun, Job: t.String()})
		return fn(ctx, slice.New(d), r)
	})

	took := a.now().Sub(start)
	metrics.RecordStep(t.String(), name, err, took)
	if ferr := metrics.Flush(); ferr != nil {
		log.Warn("metrics flush failed", zap.Error(ferr))
	}
	_ = a.log.Sync()

	if err != nil {
		log.Error("step failed", zap.Error(err), zap.Duration("took", took))
		return err
	}
	log.Info("step finished", zap.Bool("dry_run", a.cfg.DryRun), zap.Duration("took", took))
	return nil
}

func (a *app) withDB(ctx context.Context, fn func(db.DB) error) error {
	d, err := a.connect(ctx, a.cfg.URL)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := d.Close(context.WithoutCancel(ctx)); cerr != nil {
			a.log.Warn("close connection", zap.Error(cerr))
		}
	}()
	return fn(d)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "pgslice",
		Short:         "Postgres partitioning as easy as pie",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	root.SetOut(a.out)
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		newPrepCmd(a),
		newUnprepCmd(a),
		newAddPartitionsCmd(a),
		newFillCmd(a),
		newAnalyzeCmd(a),
		newSwapCmd(a, "swap", "Swap the intermediate table with the original table"),
		newSwapCmd(a, "unswap", "Undo a swap"),
	)
	return root
}

func newPrepCmd(a *app) *cobra.Command {
	var noPartition bool
	cmd := &cobra.Command{
		Use:   "prep TABLE [COLUMN PERIOD]",
		Short: "Create an intermediate table for partitioning",
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.RangeArgs(1, 3)(cmd, args); err != nil {
				return err
			}
			if len(args) == 2 {
				return fmt.Errorf("column and period must be given together")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.table(args[0])
			if err != nil {
				return err
			}
			opts := slice.PrepOptions{NoPartition: noPartition}
			if len(args) == 3 {
				opts.Column, opts.Period = args[1], args[2]
			}
			return a.step(cmd.Context(), "prep", t, func(ctx context.Context, p *slice.Planner, r *runner.Runner) error {
				plan, err := p.Prep(ctx, t, opts)
				if err != nil {
					return err
				}
				return r.Run(ctx, plan)
			})
		},
	}
	cmd.Flags().BoolVar(&noPartition, "no-partition", false, "Don't partition the intermediate table")
	return cmd
}

func newUnprepCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "unprep TABLE",
		Short: "Undo prep",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.table(args[0])
			if err != nil {
				return err
			}
			return a.step(cmd.Context(), "unprep", t, func(ctx context.Context, p *slice.Planner, r *runner.Runner) error {
				plan, err := p.Unprep(ctx, t)
				if err != nil {
					return err
				}
				return r.Run(ctx, plan)
			})
		},
	}
}

func newAddPartitionsCmd(a *app) *cobra.Command {
	var opts slice.AddPartitionsOptions
	cmd := &cobra.Command{
		Use:   "add_partitions TABLE",
		Short: "Add partitions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.table(args[0])
			if err != nil {
				return err
			}
			if opts.Past < 0 || opts.Future < 0 {
				return fmt.Errorf("--past and --future must not be negative")
			}
			opts.Now = a.now()
			return a.step(cmd.Context(), "add_partitions", t, func(ctx context.Context, p *slice.Planner, r *runner.Runner) error {
				plan, err := p.AddPartitions(ctx, t, opts)
				if err != nil {
					return err
				}
				return r.Run(ctx, plan)
			})
		},
	}
	f := cmd.Flags()
	f.BoolVar(&opts.Intermediate, "intermediate", false, "Add to intermediate table")
	f.IntVar(&opts.Past, "past", 0, "Number of past partitions to add")
	f.IntVar(&opts.Future, "future", 0, "Number of future partitions to add")
	f.StringVar(&opts.Tablespace, "tablespace", "", "Tablespace to use")
	return cmd
}

func newFillCmd(a *app) *cobra.Command {
	var (
		swapped           bool
		sourceArg, dstArg string
		start             int64
		where             string
	)
	cmd := &cobra.Command{
		Use:   "fill TABLE",
		Short: "Fill the partitions in batches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.table(args[0])
			if err != nil {
				return err
			}
			opts := slice.FillOptions{Swapped: swapped, BatchSize: a.cfg.BatchSize, Where: where}
			if sourceArg != "" {
				src, err := a.table(sourceArg)
				if err != nil {
					return err
				}
				opts.SourceTable = &src
			}
			if dstArg != "" {
				dst, err := a.table(dstArg)
				if err != nil {
					return err
				}
				opts.DestTable = &dst
			}
			if cmd.Flags().Changed("start") {
				opts.Start = &start
			}
			return a.step(cmd.Context(), "fill", t, func(ctx context.Context, p *slice.Planner, r *runner.Runner) error {
				plan, err := p.Fill(ctx, t, opts)
				if err != nil {
					return err
				}
				return r.RunFill(ctx, plan, a.cfg.Sleep)
			})
		},
	}
	f := cmd.Flags()
	f.BoolVar(&swapped, "swapped", false, "Use swapped table")
	f.StringVar(&sourceArg, "source-table", "", "Source table")
	f.StringVar(&dstArg, "dest-table", "", "Destination table")
	f.Int64("batch-size", 10000, "Batch size")
	f.Int64Var(&start, "start", 0, "Primary key to start after")
	f.StringVar(&where, "where", "", "Conditions to filter")
	f.Duration("sleep", 0, "Time to sleep between batches")
	return cmd
}

func newAnalyzeCmd(a *app) *cobra.Command {
	var opts slice.AnalyzeOptions
	cmd := &cobra.Command{
		Use:   "analyze TABLE",
		Short: "Analyze tables",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.table(args[0])
			if err != nil {
				return err
			}
			return a.step(cmd.Context(), "analyze", t, func(ctx context.Context, p *slice.Planner, r *runner.Runner) error {
				plan, err := p.Analyze(ctx, t, opts)
				if err != nil {
					return err
				}
				return r.Run(ctx, plan)
			})
		},
	}
	cmd.Flags().BoolVar(&opts.Swapped, "swapped", false, "Use swapped table")
	return cmd
}

func newSwapCmd(a *app, name, short string) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   name + " TABLE",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.table(args[0])
			if err != nil {
				return err
			}
			opts := slice.SwapOptions{LockTimeout: a.cfg.LockTimeout, Force: force}
			return a.step(cmd.Context(), name, t, func(ctx context.Context, p *slice.Planner, r *runner.Runner) error {
				swap := p.Swap
				if name == "unswap" {
					swap = p.Unswap
				}
				plan, err := swap(ctx, t, opts)
				if err != nil {
					return err
				}
				return r.Run(ctx, plan)
			})
		},
	}
	cmd.Flags().String("lock-timeout", "5s", "Lock timeout")
	cmd.Flags().BoolVar(&force, "force", false, "Swap even if the column sets differ")
	return cmd
}
