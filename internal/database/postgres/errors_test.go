package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/saudedash/internal/errs"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind errs.ErrKind
		code string
	}{
		{"deadline", context.DeadlineExceeded, errs.ErrKindTimeout, ""},
		{"canceled", fmt.Errorf("read: %w", context.Canceled), errs.ErrKindTimeout, ""},
		{"no rows", pgx.ErrNoRows, errs.ErrKindNotFound, ""},
		{"statement timeout", &pgconn.PgError{Code: pgErrQueryCanceled, Message: "canceling statement due to statement timeout"}, errs.ErrKindTimeout, "57014"},
		{"connection class", &pgconn.PgError{Code: "08006", Message: "connection failure"}, errs.ErrKindConnectionFailed, "08006"},
		{"undefined column", &pgconn.PgError{Code: pgErrUndefinedColumn, Message: `column lo.local_desc does not exist`}, errs.ErrKindQueryFailed, "42703"},
		{"permission", &pgconn.PgError{Code: pgErrInsufficientPriv, Message: "permission denied"}, errs.ErrKindPermissionDenied, "42501"},
		{"other", errors.New("tls: handshake failure"), errs.ErrKindConnectionFailed, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapError(tt.err, "query failed")
			require.Error(t, err)
			assert.Equal(t, tt.kind, errs.KindOf(err))
			assert.Equal(t, tt.code, errs.CodeOf(err))
		})
	}

	assert.NoError(t, mapError(nil, "ignored"))
}

func TestMapError_ServerMessageIsUserVisible(t *testing.T) {
	err := mapError(&pgconn.PgError{Code: pgErrUndefinedColumn, Message: "column c.titulo does not exist"}, "query failed")
	assert.Equal(t, "query failed: column c.titulo does not exist", errs.UserMessage(err))
	assert.True(t, errs.IsUndefinedColumn(err))
}

func TestMapError_KeepsMappedErrors(t *testing.T) {
	inner := errs.New(errs.ErrKindConfig, "DATABASE_URL is not set")
	assert.Same(t, inner, mapError(inner, "outer"))
}

func TestConnectError_HostedHint(t *testing.T) {
	netErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("network is unreachable")}

	t.Run("hosted direct host", func(t *testing.T) {
		ep, err := ParseEndpoint("postgresql://postgres:pw@db.abcd.supabase.co:5432/postgres")
		require.NoError(t, err)

		mapped := connectError(ep, netErr)
		assert.True(t, errs.IsConnectionFailed(mapped))
		msg := errs.UserMessage(mapped)
		assert.Contains(t, msg, "6543")
		assert.NotContains(t, msg, "network is unreachable")
	})

	t.Run("local host keeps driver text", func(t *testing.T) {
		ep, err := ParseEndpoint("postgres://localhost:5432/db")
		require.NoError(t, err)

		mapped := connectError(ep, netErr)
		assert.Contains(t, errs.UserMessage(mapped), "network is unreachable")
	})

	t.Run("server error is not a network failure", func(t *testing.T) {
		ep, err := ParseEndpoint("postgresql://postgres:pw@db.abcd.supabase.co:5432/postgres")
		require.NoError(t, err)

		mapped := connectError(ep, &pgconn.PgError{Code: "28P01", Message: "password authentication failed"})
		assert.Contains(t, errs.UserMessage(mapped), "password authentication failed")
	})
}

func TestNormalizeValue(t *testing.T) {
	assert.Equal(t, int64(120), normalizeValue(pgtype.Numeric{Int: big.NewInt(120), Valid: true}))
	assert.Equal(t, int64(1200), normalizeValue(pgtype.Numeric{Int: big.NewInt(12), Exp: 2, Valid: true}))
	assert.InDelta(t, 123.45, normalizeValue(pgtype.Numeric{Int: big.NewInt(12345), Exp: -2, Valid: true}), 1e-9)
	assert.Nil(t, normalizeValue(pgtype.Numeric{}))
	assert.Equal(t, "SP", normalizeValue("SP"))
	assert.Equal(t, int32(7), normalizeValue(int32(7)))
}
