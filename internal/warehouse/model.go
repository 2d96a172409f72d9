// Package warehouse builds and runs the report queries over the public
// health star schema: fact table fato_saude_mensal plus its dimensions.
//
// Every row of the fact table belongs to exactly one pre-aggregated slice
// selected by id_tipo_evento. A report that filters on the wrong event type
// silently returns nothing, so event codes live here as constants and are
// never taken from callers.
package warehouse

import "github.com/koustreak/saudedash/internal/schema"

// Star schema tables.
const (
	FactTable          = "fato_saude_mensal"
	TimeTable          = "dim_tempo"
	LocalityTable      = "dim_localidade"
	SexTable           = "dim_sexo"
	AgeBracketTable    = "dim_faixa_etaria"
	RaceTable          = "dim_raca_cor"
	MaritalStatusTable = "dim_estado_civil"
	PlaceOfDeathTable  = "dim_local_ocorrencia"
	ChapterTable       = "dim_cid10_capitulo"
)

const (
	notInformed        = "Não Informado"
	defaultSeriesLimit = 5000
	topChaptersLimit   = 10
	factIndexPrefix    = "idx_fato"
)

// Tables lists every table the reports read.
var Tables = []string{
	FactTable, TimeTable, LocalityTable, SexTable, AgeBracketTable,
	RaceTable, MaritalStatusTable, PlaceOfDeathTable, ChapterTable,
}

// EventType is the id_tipo_evento discriminator of the fact table.
type EventType int

const (
	EventAdmissionsMonthly     EventType = 3
	EventDeathsMonthly         EventType = 4
	EventAdmissionsBySex       EventType = 5
	EventAdmissionsByAge       EventType = 6
	EventDeathsByRace          EventType = 7
	EventDeathsByMaritalStatus EventType = 8
	EventDeathsByPlace         EventType = 9
	EventAdmissionsByChapter   EventType = 10
	EventDeathsByChapter       EventType = 11
)

// Measure is one of the two count columns of the fact table.
type Measure struct {
	Name         string // report prefix: internacoes, obitos
	Column       string // fact column
	Total        string // output column of SUM(Column)
	Monthly      EventType
	ChapterEvent EventType
}

var (
	Admissions = Measure{
		Name:         "internacoes",
		Column:       "qtd_internacoes",
		Total:        "total_internacoes",
		Monthly:      EventAdmissionsMonthly,
		ChapterEvent: EventAdmissionsByChapter,
	}
	Deaths = Measure{
		Name:         "obitos",
		Column:       "qtd_obitos",
		Total:        "total_obitos",
		Monthly:      EventDeathsMonthly,
		ChapterEvent: EventDeathsByChapter,
	}
)

// MeasureByName returns Admissions or Deaths.
func MeasureByName(name string) (Measure, bool) {
	switch name {
	case Admissions.Name:
		return Admissions, true
	case Deaths.Name:
		return Deaths, true
	}
	return Measure{}, false
}

// CriticalIndexes are the partial indexes the heavy reports depend on.
var CriticalIndexes = []string{
	"idx_fato_cid_cap_internacoes",
	"idx_fato_cid_cap_obitos",
	"idx_fato_series_internacoes",
	"idx_fato_series_obitos",
}

// DescriptionTargets are the dimensions whose label column is resolved at
// runtime.
func DescriptionTargets() []schema.Target {
	return []schema.Target{
		{
			Table:      PlaceOfDeathTable,
			Candidates: []string{"local_desc", "local_ocorrencia_desc", "descricao", "local_ocor_desc", "nome"},
		},
		{
			Table:      ChapterTable,
			Candidates: []string{"titulo", "capitulo_desc", "capitulo_nome", "descricao", "nome"},
		},
	}
}

// Filter narrows a breakdown report. Zero means absent.
type Filter struct {
	Locality int
}

// SeriesFilter narrows the monthly series. Zero means absent; a zero Limit
// means the default of 5000 rows.
type SeriesFilter struct {
	Locality int
	YearFrom int
	YearTo   int
	Month    int
	Limit    int
}

// ChapterFilter narrows the ICD-10 chapter ranking. Zero means absent.
type ChapterFilter struct {
	Locality int
	Year     int
	Month    int
}

func (f ChapterFilter) empty() bool {
	return f.Locality == 0 && f.Year == 0 && f.Month == 0
}
