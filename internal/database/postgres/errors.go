package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/koustreak/saudedash/internal/errs"
)

// PostgreSQL SQLSTATE error codes (read-relevant only)
// Full list: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgErrQueryCanceled    = "57014" // also raised by statement_timeout
	pgErrUndefinedColumn  = "42703"
	pgErrInsufficientPriv = "42501"
)

// mapError translates pgx / pgconn native errors into *errs.Error.
// Server errors keep their SQLSTATE in Code.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	var e *errs.Error
	if errors.As(err, &e) {
		return err
	}

	// Context cancellation / deadline exceeded
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	// Postgres server-side error (SQLSTATE codes)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		kind := errs.ErrKindQueryFailed
		switch {
		case len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08":
			// Class 08 — connection exceptions
			kind = errs.ErrKindConnectionFailed
		case pgErr.Code == pgErrQueryCanceled:
			kind = errs.ErrKindTimeout
		case pgErr.Code == pgErrInsufficientPriv:
			kind = errs.ErrKindPermissionDenied
		}
		return errs.Wrap(kind, msg, errors.New(pgErr.Message)).WithCode(pgErr.Code)
	}

	if pgconn.Timeout(err) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	// Fallthrough: connection-level errors (TLS, network, auth)
	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

// connectError maps a failure to open a connection. A network failure to a
// hosted endpoint carries a remediation hint instead of the driver text.
func connectError(ep *Endpoint, err error) error {
	mapped := mapError(err, "failed to connect to database")
	if !ep.Hosted || !isNetworkError(err) {
		return mapped
	}
	var e *errs.Error
	if errors.As(mapped, &e) {
		e.WithHint(hostedHint(ep))
	}
	return mapped
}

func hostedHint(ep *Endpoint) string {
	pooler := "<ref>.pooler.supabase.com"
	if ep.Pooling != PoolingNone {
		pooler = ep.Host
	}
	return fmt.Sprintf(
		"Falha de rede ao conectar em %s:%d. Conexões diretas (db.<ref>.supabase.co) exigem IPv6; "+
			"use o pooler em modo transação: %s porta 6543.",
		ep.Host, ep.Port, pooler,
	)
}

func isNetworkError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return false
	}
	var netErr net.Error
	var opErr *net.OpError
	var dnsErr *net.DNSError
	return errors.As(err, &netErr) || errors.As(err, &opErr) || errors.As(err, &dnsErr)
}
