// Package dbtest provides scripted in-memory doubles of db.Querier and db.DB
// for hermetic tests of packages that talk to Postgres.
package dbtest

import (
	"context"
	"reflect"
	"strings"
	"sync"

	"github.com/cybernetics/pgslice/internal/db"
)

// Call is one recorded Query or Exec.
type Call struct {
	SQL  string
	Args []any
}

type handler struct {
	contains string
	args     []any
	rows     []db.Row
	err      error
}

func (h handler) matches(sql string, args []any) bool {
	if !strings.Contains(sql, h.contains) {
		return false
	}
	return h.args == nil || reflect.DeepEqual(h.args, args)
}

// Querier answers queries from handlers registered with On/OnArgs/OnErr.
// The first handler whose substring occurs in the SQL (and whose args, when
// set, are equal) wins. Unmatched queries return no rows.
type Querier struct {
	mu       sync.Mutex
	handlers []handler
	calls    []Call
}

// On answers any query containing substr with rows.
func (q *Querier) On(substr string, rows ...db.Row) *Querier {
	return q.add(handler{contains: substr, rows: rows})
}

// OnArgs answers queries containing substr and bound exactly with args.
func (q *Querier) OnArgs(substr string, args []any, rows ...db.Row) *Querier {
	if args == nil {
		args = []any{}
	}
	return q.add(handler{contains: substr, args: args, rows: rows})
}

// OnErr fails queries containing substr with err.
func (q *Querier) OnErr(substr string, err error) *Querier {
	return q.add(handler{contains: substr, err: err})
}

func (q *Querier) add(h handler) *Querier {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers = append(q.handlers, h)
	return q
}

func (q *Querier) Query(_ context.Context, sql string, args ...any) ([]db.Row, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if args == nil {
		args = []any{}
	}
	q.calls = append(q.calls, Call{SQL: sql, Args: args})
	for _, h := range q.handlers {
		if h.matches(sql, args) {
			return h.rows, h.err
		}
	}
	return nil, nil
}

// Calls returns a copy of the recorded queries.
func (q *Querier) Calls() []Call {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Call(nil), q.calls...)
}

// LastCall returns the most recent query, or a zero Call.
func (q *Querier) LastCall() Call {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.calls) == 0 {
		return Call{}
	}
	return q.calls[len(q.calls)-1]
}

// DB is a db.DB whose queries are scripted by the embedded Querier and
// whose statements are recorded.
type DB struct {
	Querier

	// ExecErr fails every Exec whose SQL contains the key.
	ExecErr map[string]error
	// RowsAffected is returned by every successful Exec.
	RowsAffected int64
	// BeginErr fails BeginTx.
	BeginErr error

	execMu sync.Mutex
	execs  []Call
	txs    []*Tx
	closed bool
}

func (d *DB) Exec(_ context.Context, sql string, args ...any) (int64, error) {
	d.execMu.Lock()
	defer d.execMu.Unlock()
	d.execs = append(d.execs, Call{SQL: sql, Args: args})
	for k, err := range d.ExecErr {
		if strings.Contains(sql, k) {
			return 0, err
		}
	}
	return d.RowsAffected, nil
}

func (d *DB) BeginTx(context.Context) (db.Tx, error) {
	if d.BeginErr != nil {
		return nil, d.BeginErr
	}
	tx := &Tx{parent: d}
	d.execMu.Lock()
	d.txs = append(d.txs, tx)
	d.execMu.Unlock()
	return tx, nil
}

func (d *DB) Close(context.Context) error {
	d.closed = true
	return nil
}

// Execs returns every statement executed, inside or outside transactions,
// in order.
func (d *DB) Execs() []Call {
	d.execMu.Lock()
	defer d.execMu.Unlock()
	return append([]Call(nil), d.execs...)
}

// Txs returns the transactions opened so far.
func (d *DB) Txs() []*Tx {
	d.execMu.Lock()
	defer d.execMu.Unlock()
	return append([]*Tx(nil), d.txs...)
}

// Closed reports whether Close was called.
func (d *DB) Closed() bool { return d.closed }

// Tx records its statements on the parent DB.
type Tx struct {
	parent     *DB
	Statements []string
	Committed  bool
	RolledBack bool
}

func (t *Tx) Query(ctx context.Context, sql string, args ...any) ([]db.Row, error) {
	return t.parent.Query(ctx, sql, args...)
}

func (t *Tx) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	t.Statements = append(t.Statements, sql)
	return t.parent.Exec(ctx, sql, args...)
}

func (t *Tx) Commit(context.Context) error {
	t.Committed = true
	return nil
}

func (t *Tx) Rollback(context.Context) error {
	if !t.Committed {
		t.RolledBack = true
	}
	return nil
}
