package warehouse

import (
	"github.com/koustreak/saudedash/internal/database"
)

const localitiesSQL = `SELECT id_localidade, municipio, uf
FROM dim_localidade
ORDER BY municipio`

const periodSQL = `WITH tempos_com_dados AS (
  SELECT DISTINCT t.ano, t.mes
  FROM dim_tempo t
  WHERE EXISTS (
    SELECT 1
    FROM fato_saude_mensal f
    WHERE f.id_tempo = t.id_tempo
      AND f.id_tempo IS NOT NULL
      AND f.id_tempo != 0
    LIMIT 1
  )
)
SELECT
  MIN(ano) AS ano_inicio,
  MAX(ano) AS ano_fim,
  MIN(CASE WHEN ano = (SELECT MIN(ano) FROM tempos_com_dados) THEN mes END) AS mes_inicio,
  MAX(CASE WHEN ano = (SELECT MAX(ano) FROM tempos_com_dados) THEN mes END) AS mes_fim
FROM tempos_com_dados`

const stateTotalsSQL = `SELECT
  COALESCE(i.uf, o.uf) AS uf,
  COALESCE(i.total_internacoes, 0) AS total_internacoes,
  COALESCE(o.total_obitos, 0) AS total_obitos
FROM (
  SELECT l.uf, SUM(f.qtd_internacoes)::bigint AS total_internacoes
  FROM fato_saude_mensal f
  INNER JOIN dim_localidade l ON f.id_localidade = l.id_localidade
  WHERE l.uf IS NOT NULL
    AND f.id_tipo_evento = 3
    AND f.qtd_internacoes > 0
  GROUP BY l.uf
) i
FULL OUTER JOIN (
  SELECT l.uf, SUM(f.qtd_obitos)::bigint AS total_obitos
  FROM fato_saude_mensal f
  INNER JOIN dim_localidade l ON f.id_localidade = l.id_localidade
  WHERE l.uf IS NOT NULL
    AND f.id_tipo_evento = 4
    AND f.qtd_obitos > 0
  GROUP BY l.uf
) o ON i.uf = o.uf
ORDER BY COALESCE(i.uf, o.uf)`

const admissionsByStateSQL = `SELECT l.uf, SUM(f.qtd_internacoes)::bigint AS total_internacoes
FROM fato_saude_mensal f
INNER JOIN dim_localidade l ON f.id_localidade = l.id_localidade
WHERE f.id_tipo_evento = 10
  AND f.id_capitulo IS NOT NULL
  AND l.uf IS NOT NULL
  AND f.qtd_internacoes > 0
GROUP BY l.uf
HAVING SUM(f.qtd_internacoes) > 0
ORDER BY l.uf`

const factIndexesSQL = `SELECT indexname, indexdef
FROM pg_indexes
WHERE tablename = $1
  AND indexname LIKE $2
ORDER BY indexname`

// buildSeries renders the monthly admissions/deaths series: event 3 and
// event 4 aggregated per (ano, mes) and joined with FULL OUTER JOIN so a
// month with only one of the two still appears.
func buildSeries(f SeriesFilter) (string, []any, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultSeriesLimit
	}

	st := database.NewStatement().
		Write("WITH tempo_filtrado AS (").
		Write("\n  SELECT id_tempo, ano, mes").
		Write("\n  FROM dim_tempo").
		Write("\n  WHERE id_tempo IS NOT NULL AND id_tempo != 0").
		AndIf(f.YearFrom > 0, "ano", ">=", f.YearFrom).
		AndIf(f.YearTo > 0, "ano", "<=", f.YearTo).
		AndIf(f.Month > 0, "mes", "=", f.Month).
		Write("\n)").
		Write("\nSELECT").
		Write("\n  COALESCE(i.ano, o.ano) AS ano,").
		Write("\n  COALESCE(i.mes, o.mes) AS mes,").
		Write("\n  CONCAT(COALESCE(i.ano, o.ano), '-', LPAD(COALESCE(i.mes, o.mes)::text, 2, '0')) AS ano_mes,").
		Write("\n  COALESCE(i.internacoes, 0) AS internacoes,").
		Write("\n  COALESCE(o.obitos, 0) AS obitos").
		Write("\nFROM (")
	seriesLeg(st, Admissions, "internacoes", f.Locality)
	st.Write("\n) i\nFULL OUTER JOIN (")
	seriesLeg(st, Deaths, "obitos", f.Locality)
	st.Write("\n) o ON i.ano = o.ano AND i.mes = o.mes").
		Write("\nORDER BY COALESCE(i.ano, o.ano), COALESCE(i.mes, o.mes)")
	st.Write("\nLIMIT " + st.Placeholder(limit))
	return st.Build()
}

func seriesLeg(st *database.Statement, m Measure, alias string, locality int) {
	st.Writef("\n  SELECT t.ano, t.mes, SUM(f.%s)::bigint AS %s", m.Column, alias).
		Writef("\n  FROM %s f", FactTable).
		Write("\n  INNER JOIN tempo_filtrado t ON f.id_tempo = t.id_tempo").
		Write("\n  WHERE f.id_tempo IS NOT NULL").
		Write("\n    AND f.id_tempo != 0").
		Writef("\n    AND f.id_tipo_evento = %d", int(m.Monthly)).
		Writef("\n    AND f.%s > 0", m.Column).
		AndIf(locality > 0, "f.id_localidade", "=", locality).
		Write("\n  GROUP BY t.ano, t.mes")
}

// buildTopChapters renders the top-10 ICD-10 chapter ranking for m. With no
// filter the fact rows are aggregated and ranked before the dimension
// join; with any filter a time CTE narrows the fact rows first.
func buildTopChapters(m Measure, f ChapterFilter, column string) (string, []any, error) {
	desc := "c." + database.QuoteIdent(column)

	if f.empty() {
		return database.NewStatement().
			Write("WITH capitulos_agregados AS (").
			Writef("\n  SELECT f.id_capitulo, SUM(f.%s)::bigint AS %s", m.Column, m.Total).
			Writef("\n  FROM %s f", FactTable).
			Writef("\n  WHERE f.id_tipo_evento = %d", int(m.ChapterEvent)).
			Write("\n    AND f.id_capitulo IS NOT NULL").
			Writef("\n    AND f.%s > 0", m.Column).
			Write("\n  GROUP BY f.id_capitulo").
			Writef("\n  HAVING SUM(f.%s) > 0", m.Column).
			Writef("\n  ORDER BY %s DESC", m.Total).
			Writef("\n  LIMIT %d", topChaptersLimit).
			Write("\n)").
			Writef("\nSELECT c.capitulo_cod, %s AS capitulo_nome, ca.%s", desc, m.Total).
			Write("\nFROM capitulos_agregados ca").
			Writef("\nINNER JOIN %s c ON ca.id_capitulo = c.id_capitulo", ChapterTable).
			Writef("\nORDER BY ca.%s DESC", m.Total).
			Build()
	}

	return database.NewStatement().
		Write("WITH tempo_filtrado AS (").
		Write("\n  SELECT id_tempo").
		Write("\n  FROM dim_tempo").
		Write("\n  WHERE id_tempo IS NOT NULL AND id_tempo != 0").
		AndIf(f.Year > 0, "ano", "=", f.Year).
		AndIf(f.Month > 0, "mes", "=", f.Month).
		Write("\n),").
		Write("\ndados_filtrados AS (").
		Writef("\n  SELECT f.id_capitulo, f.%s", m.Column).
		Writef("\n  FROM %s f", FactTable).
		Write("\n  INNER JOIN tempo_filtrado t ON f.id_tempo = t.id_tempo").
		Writef("\n  WHERE f.id_tipo_evento = %d", int(m.ChapterEvent)).
		Write("\n    AND f.id_capitulo IS NOT NULL").
		Write("\n    AND f.id_tempo IS NOT NULL").
		Write("\n    AND f.id_tempo != 0").
		Writef("\n    AND f.%s > 0", m.Column).
		AndIf(f.Locality > 0, "f.id_localidade", "=", f.Locality).
		Write("\n)").
		Writef("\nSELECT c.capitulo_cod, %s AS capitulo_nome, SUM(df.%s)::bigint AS %s", desc, m.Column, m.Total).
		Write("\nFROM dados_filtrados df").
		Writef("\nINNER JOIN %s c ON df.id_capitulo = c.id_capitulo", ChapterTable).
		Writef("\nGROUP BY c.capitulo_cod, %s", desc).
		Writef("\nHAVING SUM(df.%s) > 0", m.Column).
		Writef("\nORDER BY %s DESC", m.Total).
		Writef("\nLIMIT %d", topChaptersLimit).
		Build()
}

// buildChapterByState renders admissions of one ICD-10 chapter per state.
func buildChapterByState(code, column string) (string, []any, error) {
	desc := "c." + database.QuoteIdent(column)
	return database.NewStatement().
		Writef("SELECT l.uf, c.capitulo_cod, %s AS capitulo_nome, SUM(f.qtd_internacoes)::bigint AS total_internacoes", desc).
		Writef("\nFROM %s f", FactTable).
		Writef("\nINNER JOIN %s l ON f.id_localidade = l.id_localidade", LocalityTable).
		Writef("\nINNER JOIN %s c ON f.id_capitulo = c.id_capitulo", ChapterTable).
		Writef("\nWHERE f.id_tipo_evento = %d", int(EventAdmissionsByChapter)).
		Write("\n  AND f.id_capitulo IS NOT NULL").
		Write("\n  AND l.uf IS NOT NULL").
		And("c.capitulo_cod", "=", code).
		Writef("\nGROUP BY l.uf, c.capitulo_cod, %s", desc).
		Write("\nORDER BY l.uf").
		Build()
}
