package warehouse

import (
	"sort"

	"github.com/koustreak/saudedash/internal/database"
)

// Ordering of a breakdown's rows.
type Ordering int

const (
	ByLabel     Ordering = iota // label ascending
	ByRank                      // dimension rank column ascending
	ByTotalDesc                 // total descending
)

// Breakdown is a report that sums one measure of one event type per value
// of one dimension.
type Breakdown struct {
	Key     string
	Event   EventType
	Measure Measure

	Table string // dimension table
	Join  string // key column shared by fact and dimension

	// Label is the output column. LabelColumn is the dimension column it is
	// read from; empty means the column is resolved at runtime and NULLs
	// are reported as "Não Informado".
	Label       string
	LabelColumn string

	Order      Ordering
	RankColumn string
}

// Breakdowns holds every dimension breakdown report by key.
var Breakdowns = map[string]Breakdown{
	"internacoes-sexo": {
		Key: "internacoes-sexo", Event: EventAdmissionsBySex, Measure: Admissions,
		Table: SexTable, Join: "id_sexo",
		Label: "sexo_desc", LabelColumn: "sexo_desc",
		Order: ByLabel,
	},
	"internacoes-faixa": {
		Key: "internacoes-faixa", Event: EventAdmissionsByAge, Measure: Admissions,
		Table: AgeBracketTable, Join: "id_faixa",
		Label: "faixa_desc", LabelColumn: "faixa_desc",
		Order: ByRank, RankColumn: "faixa_ordem",
	},
	"obitos-raca": {
		Key: "obitos-raca", Event: EventDeathsByRace, Measure: Deaths,
		Table: RaceTable, Join: "id_raca_cor",
		Label: "raca_desc", LabelColumn: "raca_desc",
		Order: ByTotalDesc,
	},
	"obitos-estado-civil": {
		Key: "obitos-estado-civil", Event: EventDeathsByMaritalStatus, Measure: Deaths,
		Table: MaritalStatusTable, Join: "id_estado_civil",
		Label: "estado_civil_desc", LabelColumn: "estado_civil_desc",
		Order: ByTotalDesc,
	},
	"obitos-local": {
		Key: "obitos-local", Event: EventDeathsByPlace, Measure: Deaths,
		Table: PlaceOfDeathTable, Join: "id_local_ocor",
		Label: "local_ocorrencia_desc",
		Order: ByTotalDesc,
	},
}

// BreakdownKeys returns the breakdown keys in sorted order.
func BreakdownKeys() []string {
	keys := make([]string, 0, len(Breakdowns))
	for k := range Breakdowns {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// resolved reports whether the label column comes from the resolver.
func (b Breakdown) resolved() bool {
	return b.LabelColumn == ""
}

// labelExpr is the SELECT and GROUP BY expression of the label.
func (b Breakdown) labelExpr(column string) string {
	if b.resolved() {
		return "COALESCE(d." + database.QuoteIdent(column) + ", " + database.QuoteLiteral(notInformed) + ")"
	}
	return "d." + b.LabelColumn
}

// build renders the breakdown. column is the resolved label column and is
// ignored for breakdowns with a fixed LabelColumn.
func (b Breakdown) build(f Filter, column string) (string, []any, error) {
	m := b.Measure
	label := b.labelExpr(column)

	st := database.NewStatement().
		Write("WITH dados_filtrados AS (").
		Writef("\n  SELECT f.%s, f.%s", b.Join, m.Column).
		Writef("\n  FROM %s f", FactTable).
		Writef("\n  WHERE f.id_tipo_evento = %d", int(b.Event)).
		Writef("\n    AND f.%s > 0", m.Column).
		AndIf(f.Locality > 0, "f.id_localidade", "=", f.Locality).
		Write("\n)").
		Writef("\nSELECT %s AS %s, SUM(df.%s)::bigint AS %s", label, b.Label, m.Column, m.Total).
		Write("\nFROM dados_filtrados df").
		Writef("\nINNER JOIN %s d ON df.%s = d.%s", b.Table, b.Join, b.Join)

	switch b.Order {
	case ByRank:
		st.Writef("\nGROUP BY %s, d.%s", label, b.RankColumn)
	default:
		st.Writef("\nGROUP BY %s", label)
	}
	st.Writef("\nHAVING SUM(df.%s) > 0", m.Column)

	switch b.Order {
	case ByLabel:
		st.Writef("\nORDER BY %s", label)
	case ByRank:
		st.Writef("\nORDER BY d.%s", b.RankColumn)
	case ByTotalDesc:
		st.Writef("\nORDER BY %s DESC", m.Total)
	}
	return st.Build()
}
