package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/koustreak/saudedash/internal/database"
)

// pgxQuerier is satisfied by *pgx.Conn, *pgxpool.Conn and pgx.Tx.
type pgxQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type pgxBeginner interface {
	pgxQuerier
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// querier adapts a pgxQuerier to database.Querier.
type querier struct {
	q pgxQuerier
}

func (q querier) Query(ctx context.Context, sql string, args ...any) (database.Rows, error) {
	rows, err := q.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(err, "query failed")
	}
	return &pgxRows{rows: rows}, nil
}

func (q querier) QueryRow(ctx context.Context, sql string, args ...any) database.Row {
	return &pgxRow{row: q.q.QueryRow(ctx, sql, args...)}
}

func (q querier) Exec(ctx context.Context, sql string, args ...any) error {
	if _, err := q.q.Exec(ctx, sql, args...); err != nil {
		return mapError(err, "statement failed")
	}
	return nil
}

// conn wraps a per-request *pgx.Conn or a pooled *pgxpool.Conn.
type conn struct {
	q       pgxBeginner
	release func(context.Context) error
}

func (c *conn) Query(ctx context.Context, sql string, args ...any) (database.Rows, error) {
	return querier{c.q}.Query(ctx, sql, args...)
}

func (c *conn) QueryRow(ctx context.Context, sql string, args ...any) database.Row {
	return querier{c.q}.QueryRow(ctx, sql, args...)
}

func (c *conn) Exec(ctx context.Context, sql string, args ...any) error {
	return querier{c.q}.Exec(ctx, sql, args...)
}

func (c *conn) BeginReadOnly(ctx context.Context) (database.Tx, error) {
	t, err := c.q.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, mapError(err, "failed to begin transaction")
	}
	return &tx{querier: querier{t}, t: t}, nil
}

func (c *conn) Close(ctx context.Context) error {
	if c.release == nil {
		return nil
	}
	release := c.release
	c.release = nil
	return mapError(release(ctx), "failed to release connection")
}

type tx struct {
	querier
	t pgx.Tx
}

func (t *tx) Commit(ctx context.Context) error {
	return mapError(t.t.Commit(ctx), "commit failed")
}

func (t *tx) Rollback(ctx context.Context) error {
	return mapError(t.t.Rollback(ctx), "rollback failed")
}

// --- pgx type wrappers ---

// pgxRows wraps pgx.Rows to satisfy database.Rows.
type pgxRows struct {
	rows pgx.Rows
}

func (r *pgxRows) Next() bool { return r.rows.Next() }
func (r *pgxRows) Close()     { r.rows.Close() }
func (r *pgxRows) Err() error { return mapError(r.rows.Err(), "error during row iteration") }

// Scan copies the current row and turns numeric values into plain Go
// numbers for *any destinations.
func (r *pgxRows) Scan(dest ...any) error {
	if err := r.rows.Scan(dest...); err != nil {
		return mapError(err, "failed to scan row")
	}
	for _, d := range dest {
		if p, ok := d.(*any); ok {
			*p = normalizeValue(*p)
		}
	}
	return nil
}

func (r *pgxRows) Columns() ([]string, error) {
	descs := r.rows.FieldDescriptions()
	cols := make([]string, len(descs))
	for i, d := range descs {
		cols[i] = d.Name
	}
	return cols, nil
}

// pgxRow wraps pgx.Row to satisfy database.Row.
type pgxRow struct {
	row pgx.Row
}

func (r *pgxRow) Scan(dest ...any) error {
	return mapError(r.row.Scan(dest...), "failed to scan row")
}

// normalizeValue converts pgtype.Numeric to int64 when exact and to
// float64 otherwise.
func normalizeValue(v any) any {
	n, ok := v.(pgtype.Numeric)
	if !ok {
		return v
	}
	if !n.Valid || n.NaN {
		return nil
	}
	if i, err := n.Int64Value(); err == nil && i.Valid {
		return i.Int64
	}
	if f, err := n.Float64Value(); err == nil && f.Valid {
		return f.Float64
	}
	return v
}
