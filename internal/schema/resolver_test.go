package schema

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/saudedash/internal/database/dbtest"
	"github.com/koustreak/saudedash/internal/errs"
	"github.com/koustreak/saudedash/internal/logger"
)

var localTarget = Target{
	Table:      "dim_local_ocorrencia",
	Candidates: []string{"local_desc", "local_ocorrencia_desc", "descricao", "local_ocor_desc", "nome"},
}

func quietLogger() *logger.Logger {
	return logger.New(&logger.Config{Level: "error", Output: io.Discard})
}

func columnsHandler(cols map[string][]string, lookups *int32) dbtest.Handler {
	return func(sql string, args []any) (*dbtest.Rows, error) {
		if !strings.Contains(sql, "information_schema.columns") {
			return nil, errors.New("unexpected query")
		}
		if lookups != nil {
			atomic.AddInt32(lookups, 1)
		}
		var data [][]any
		for _, c := range cols[args[1].(string)] {
			data = append(data, []any{c})
		}
		return dbtest.NewRows([]string{"column_name"}, data...), nil
	}
}

func TestResolver_PicksFirstCandidatePresent(t *testing.T) {
	var lookups int32
	p := dbtest.NewProvider(columnsHandler(map[string][]string{
		"dim_local_ocorrencia": {"id_local_ocor", "nome", "descricao"},
	}, &lookups))
	r := NewResolver(quietLogger(), localTarget)

	conn, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer conn.Close(context.Background())

	col, err := r.Column(context.Background(), conn, "dim_local_ocorrencia")
	require.NoError(t, err)
	assert.Equal(t, "descricao", col)

	// cached
	col, err = r.Column(context.Background(), conn, "dim_local_ocorrencia")
	require.NoError(t, err)
	assert.Equal(t, "descricao", col)
	assert.Equal(t, int32(1), atomic.LoadInt32(&lookups))

	calls := p.Queries()
	require.Len(t, calls, 1)
	assert.Equal(t, []any{DefaultSchema, "dim_local_ocorrencia"}, calls[0].Args)
}

func TestResolver_InvalidateResolvesAgain(t *testing.T) {
	cols := map[string][]string{"dim_local_ocorrencia": {"local_desc"}}
	p := dbtest.NewProvider(columnsHandler(cols, nil))
	r := NewResolver(quietLogger(), localTarget)
	conn, _ := p.Acquire(context.Background())

	col, err := r.Column(context.Background(), conn, "dim_local_ocorrencia")
	require.NoError(t, err)
	assert.Equal(t, "local_desc", col)

	cols["dim_local_ocorrencia"] = []string{"local_ocor_desc"}
	r.Invalidate("dim_local_ocorrencia")

	col, err = r.Column(context.Background(), conn, "dim_local_ocorrencia")
	require.NoError(t, err)
	assert.Equal(t, "local_ocor_desc", col)
}

func TestResolver_NoCandidate(t *testing.T) {
	p := dbtest.NewProvider(columnsHandler(map[string][]string{
		"dim_local_ocorrencia": {"id_local_ocor"},
	}, nil))
	r := NewResolver(quietLogger(), localTarget)
	conn, _ := p.Acquire(context.Background())

	_, err := r.Column(context.Background(), conn, "dim_local_ocorrencia")
	require.Error(t, err)
	assert.Equal(t, "no description column found in dim_local_ocorrencia", errs.UserMessage(err))
	assert.Equal(t, CodeNoDescriptionColumn, errs.CodeOf(err))
	assert.Empty(t, r.Resolved())
}

func TestResolver_UnknownTable(t *testing.T) {
	r := NewResolver(quietLogger(), localTarget)
	_, err := r.Column(context.Background(), nil, "dim_sexo")
	assert.True(t, errs.IsInvalidInput(err))
}

func TestResolver_Warm(t *testing.T) {
	p := dbtest.NewProvider(columnsHandler(map[string][]string{
		"dim_local_ocorrencia": {"local_ocorrencia_desc"},
		"dim_cid10_capitulo":   {"capitulo_cod", "titulo"},
	}, nil))
	r := NewResolver(quietLogger(), localTarget, Target{
		Table:      "dim_cid10_capitulo",
		Candidates: []string{"titulo", "capitulo_desc", "capitulo_nome", "descricao", "nome"},
	})

	require.NoError(t, r.Warm(context.Background(), p))
	assert.Equal(t, map[string]string{
		"dim_local_ocorrencia": "local_ocorrencia_desc",
		"dim_cid10_capitulo":   "titulo",
	}, r.Resolved())
	assert.True(t, p.Balanced())
}

func TestResolver_WarmFailureLeavesLazyPath(t *testing.T) {
	down := dbtest.NewProvider(nil)
	down.AcquireErr = errs.New(errs.ErrKindConnectionFailed, "unreachable")
	r := NewResolver(quietLogger(), localTarget)

	assert.Error(t, r.Warm(context.Background(), down))

	up := dbtest.NewProvider(columnsHandler(map[string][]string{
		"dim_local_ocorrencia": {"nome"},
	}, nil))
	conn, _ := up.Acquire(context.Background())
	col, err := r.Column(context.Background(), conn, "dim_local_ocorrencia")
	require.NoError(t, err)
	assert.Equal(t, "nome", col)
}
