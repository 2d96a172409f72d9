package database

import "context"

// Querier is the read surface shared by connections and transactions.
type Querier interface {
	// Query executes a SQL statement that returns multiple rows.
	Query(ctx context.Context, sql string, args ...any) (Rows, error)

	// QueryRow executes a SQL statement that returns at most one row.
	QueryRow(ctx context.Context, sql string, args ...any) Row

	// Exec runs a statement that returns no rows (SET, SET LOCAL).
	Exec(ctx context.Context, sql string, args ...any) error
}

// Conn is one live connection with session settings already applied.
// Callers must always call Close, which releases it unconditionally.
type Conn interface {
	Querier

	// BeginReadOnly starts a READ ONLY transaction. SET LOCAL issued inside
	// it ends with the transaction.
	BeginReadOnly(ctx context.Context) (Tx, error)

	Close(ctx context.Context) error
}

// Tx is a read-only transaction on a Conn.
type Tx interface {
	Querier
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Provider yields connections. All layers above this package talk only to
// this interface; they never import the postgres package directly.
type Provider interface {
	// Acquire returns a connection scoped to the caller's unit of work.
	Acquire(ctx context.Context) (Conn, error)

	// Ping verifies the database is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the provider.
	Close()
}

// Rows is an abstraction over a database result set.
// Callers must always call Close() when done, even on error.
type Rows interface {
	// Next advances to the next row.
	// Returns false when no more rows exist or on error.
	Next() bool

	// Scan copies the current row's columns into the provided destinations.
	Scan(dest ...any) error

	// Columns returns the column names of the result set.
	Columns() ([]string, error)

	// Close releases resources held by the result set.
	Close()

	// Err returns any error encountered during iteration.
	Err() error
}

// Row is an abstraction over a single database row.
type Row interface {
	Scan(dest ...any) error
}

// WithConn acquires a connection from p, runs fn and releases the
// connection whatever fn returns.
func WithConn(ctx context.Context, p Provider, fn func(Conn) error) error {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Close(context.WithoutCancel(ctx))
	return fn(conn)
}

// ReadOnly runs fn inside a read-only transaction on conn. The transaction
// is rolled back when fn fails and committed otherwise.
func ReadOnly(ctx context.Context, conn Conn, fn func(Tx) error) error {
	tx, err := conn.BeginReadOnly(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(context.WithoutCancel(ctx))
		return err
	}
	return tx.Commit(ctx)
}

// Unavailable returns a Provider whose Acquire and Ping always fail with
// err. It stands in when the warehouse is not configured so the rest of
// the API can still start.
func Unavailable(err error) Provider {
	return unavailable{err: err}
}

type unavailable struct {
	err error
}

func (u unavailable) Acquire(context.Context) (Conn, error) { return nil, u.err }
func (u unavailable) Ping(context.Context) error            { return u.err }
func (u unavailable) Close()                                {}
