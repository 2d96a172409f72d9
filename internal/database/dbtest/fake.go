// Package dbtest provides in-memory fakes of the database contracts for
// tests that must not touch a live warehouse.
package dbtest

import (
	"context"
	"strings"
	"sync"

	"github.com/koustreak/saudedash/internal/database"
)

// Call records one statement issued through a fake connection.
type Call struct {
	SQL  string
	Args []any
	InTx bool
}

// Handler produces the result of a Query or QueryRow call.
type Handler func(sql string, args []any) (*Rows, error)

// Provider is a fake database.Provider. Every Acquire returns a Conn that
// shares the provider's handler and call log.
type Provider struct {
	Handler    Handler
	AcquireErr error
	PingErr    error

	mu       sync.Mutex
	calls    []Call
	acquired int
	released int
}

// NewProvider returns a Provider answering queries with h.
func NewProvider(h Handler) *Provider {
	return &Provider{Handler: h}
}

func (p *Provider) Acquire(ctx context.Context) (database.Conn, error) {
	if p.AcquireErr != nil {
		return nil, p.AcquireErr
	}
	p.mu.Lock()
	p.acquired++
	p.mu.Unlock()
	return &Conn{p: p}, nil
}

func (p *Provider) Ping(ctx context.Context) error { return p.PingErr }
func (p *Provider) Close()                         {}

// Calls returns every statement seen so far.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

// Queries returns the Query calls only, skipping Exec statements.
func (p *Provider) Queries() []Call {
	var out []Call
	for _, c := range p.Calls() {
		if !strings.HasPrefix(c.SQL, "SET ") && c.SQL != "BEGIN READ ONLY" && c.SQL != "COMMIT" && c.SQL != "ROLLBACK" {
			out = append(out, c)
		}
	}
	return out
}

// Balanced reports whether every acquired connection was released.
func (p *Provider) Balanced() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquired == p.released
}

// Acquired returns how many connections were handed out.
func (p *Provider) Acquired() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquired
}

func (p *Provider) record(c Call) {
	p.mu.Lock()
	p.calls = append(p.calls, c)
	p.mu.Unlock()
}

// Conn is a fake database.Conn.
type Conn struct {
	p    *Provider
	inTx bool
}

func (c *Conn) Query(ctx context.Context, sql string, args ...any) (database.Rows, error) {
	c.p.record(Call{SQL: sql, Args: args, InTx: c.inTx})
	if c.p.Handler == nil {
		return &Rows{}, nil
	}
	rows, err := c.p.Handler(sql, args)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = &Rows{}
	}
	return rows, nil
}

func (c *Conn) QueryRow(ctx context.Context, sql string, args ...any) database.Row {
	rows, err := c.Query(ctx, sql, args...)
	return &row{rows: rows, err: err}
}

func (c *Conn) Exec(ctx context.Context, sql string, args ...any) error {
	c.p.record(Call{SQL: sql, Args: args, InTx: c.inTx})
	return nil
}

func (c *Conn) BeginReadOnly(ctx context.Context) (database.Tx, error) {
	c.p.record(Call{SQL: "BEGIN READ ONLY"})
	return &Tx{Conn: &Conn{p: c.p, inTx: true}}, nil
}

func (c *Conn) Close(ctx context.Context) error {
	c.p.mu.Lock()
	c.p.released++
	c.p.mu.Unlock()
	return nil
}

// Tx is a fake database.Tx.
type Tx struct {
	*Conn
}

func (t *Tx) Commit(ctx context.Context) error {
	t.p.record(Call{SQL: "COMMIT"})
	return nil
}

func (t *Tx) Rollback(ctx context.Context) error {
	t.p.record(Call{SQL: "ROLLBACK"})
	return nil
}

// Rows is a fake result set backed by a slice.
type Rows struct {
	Cols    []string
	Data    [][]any
	IterErr error

	pos int
}

// NewRows builds a result set with the given columns and rows.
func NewRows(cols []string, data ...[]any) *Rows {
	return &Rows{Cols: cols, Data: data}
}

func (r *Rows) Next() bool {
	if r.pos >= len(r.Data) {
		return false
	}
	r.pos++
	return true
}

func (r *Rows) Scan(dest ...any) error {
	cur := r.Data[r.pos-1]
	for i, d := range dest {
		assign(d, cur[i])
	}
	return nil
}

func (r *Rows) Columns() ([]string, error) { return r.Cols, nil }
func (r *Rows) Close()                     {}
func (r *Rows) Err() error                 { return r.IterErr }

type row struct {
	rows database.Rows
	err  error
}

func (r *row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	defer r.rows.Close()
	if !r.rows.Next() {
		return ErrNoRows
	}
	return r.rows.Scan(dest...)
}

// ErrNoRows is returned by QueryRow scans on an empty result set.
var ErrNoRows = noRows{}

type noRows struct{}

func (noRows) Error() string { return "no rows in result set" }

func assign(dest, v any) {
	switch d := dest.(type) {
	case *any:
		*d = v
	case *string:
		if v != nil {
			*d = v.(string)
		}
	case **string:
		if v == nil {
			*d = nil
		} else {
			s := v.(string)
			*d = &s
		}
	case **int:
		if v == nil {
			*d = nil
		} else {
			n := v.(int)
			*d = &n
		}
	case *bool:
		*d = v.(bool)
	case *int:
		*d = v.(int)
	case *int64:
		*d = v.(int64)
	case *[]byte:
		switch b := v.(type) {
		case []byte:
			*d = b
		case string:
			*d = []byte(b)
		}
	}
}
