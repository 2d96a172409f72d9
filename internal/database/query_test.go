package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/saudedash/internal/errs"
)

func TestStatement_PlaceholdersFollowAppendOrder(t *testing.T) {
	st := NewStatement().
		Write("SELECT id_tempo FROM dim_tempo WHERE id_tempo IS NOT NULL").
		AndIf(true, "ano", ">=", 2019).
		AndIf(false, "ano", "<=", 2020).
		AndIf(true, "mes", "=", 3)
	st.Write(" LIMIT ").Write(st.Placeholder(10))

	sql, args, err := st.Build()
	require.NoError(t, err)
	assert.Equal(t, "SELECT id_tempo FROM dim_tempo WHERE id_tempo IS NOT NULL AND ano >= $1 AND mes = $2 LIMIT $3", sql)
	assert.Equal(t, []any{2019, 3, 10}, args)
}

func TestStatement_AbsentFiltersLeaveBaseUntouched(t *testing.T) {
	base := "SELECT 1 FROM fato_saude_mensal f WHERE f.id_tipo_evento = 5"
	sql, args, err := NewStatement().Write(base).AndIf(false, "f.id_localidade", "=", 0).Build()

	require.NoError(t, err)
	assert.Equal(t, base, sql)
	assert.Empty(t, args)
}

func TestStatement_RejectsBadInput(t *testing.T) {
	tests := []struct {
		name   string
		column string
		op     string
	}{
		{"operator", "ano", "; DROP TABLE x; --"},
		{"like is not allowed", "ano", "LIKE"},
		{"column with spaces", "ano OR 1=1", "="},
		{"three part column", "a.b.c", "="},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := NewStatement().Write("SELECT 1 WHERE true").And(tt.column, tt.op, 1).Build()
			require.Error(t, err)
			assert.True(t, errs.IsInvalidInput(err))
		})
	}
}

func TestStatement_FirstErrorSticks(t *testing.T) {
	st := NewStatement().And("ano", "~", 1).And("mes", "=", 2)
	_, args, err := st.Build()
	require.Error(t, err)
	assert.Nil(t, args)
	assert.Contains(t, err.Error(), `"~"`)
}

func TestQuoting(t *testing.T) {
	assert.Equal(t, `"titulo"`, QuoteIdent("titulo"))
	assert.Equal(t, `"we""ird"`, QuoteIdent(`we"ird`))
	assert.Equal(t, `'256MB'`, QuoteLiteral("256MB"))
	assert.Equal(t, `'it''s'`, QuoteLiteral("it's"))
}
