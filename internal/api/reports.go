package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/koustreak/saudedash/internal/database"
	"github.com/koustreak/saudedash/internal/errs"
	"github.com/koustreak/saudedash/internal/schema"
	"github.com/koustreak/saudedash/internal/warehouse"
)

const checkLogs = ". Verifique os logs do backend. Erro: "

// Failure details by report.
var reportFailures = map[string]string{
	"localidades":                "Erro ao buscar localidades: ",
	"periodo-dados":              "Erro ao buscar período dos dados: ",
	"series-mensal":              "Erro ao buscar dados de série mensal" + checkLogs,
	"internacoes-sexo":           "Erro ao buscar dados de internações por sexo" + checkLogs,
	"internacoes-faixa":          "Erro ao buscar dados de internações por faixa etária" + checkLogs,
	"obitos-raca":                "Erro ao buscar dados de óbitos por raça" + checkLogs,
	"obitos-estado-civil":        "Erro ao buscar dados de óbitos por estado civil" + checkLogs,
	"obitos-local":               "Erro ao buscar dados de local de ocorrência" + checkLogs,
	"internacoes-cid-cap":        "Erro ao buscar dados de CID-10 (internações)" + checkLogs,
	"obitos-cid-cap":             "Erro ao buscar dados de CID-10 (óbitos)" + checkLogs,
	"dados-por-estado":           "Erro ao buscar dados por estado: ",
	"internacoes-cid-por-estado": "Erro ao buscar dados de internação por CID-10 e estado: ",
}

const msgNoDescriptionColumn = "Não foi possível encontrar coluna de descrição na tabela "

func (s *Server) localities(w http.ResponseWriter, r *http.Request) {
	s.serveRecords(w, r, "localidades", func(ctx context.Context) ([]database.Record, error) {
		return s.deps.Reports.Localities(ctx)
	})
}

func (s *Server) dataPeriod(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Reports.DataPeriod(r.Context())
	if err != nil {
		s.reportError(w, r, "periodo-dados", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) monthlySeries(w http.ResponseWriter, r *http.Request) {
	var f warehouse.SeriesFilter
	if err := queryInts(r, map[string]*int{
		"id_localidade": &f.Locality,
		"ano_inicio":    &f.YearFrom,
		"ano_fim":       &f.YearTo,
		"mes":           &f.Month,
		"limit":         &f.Limit,
	}); err != nil {
		s.reportError(w, r, "series-mensal", err)
		return
	}
	s.serveRecords(w, r, "series-mensal", func(ctx context.Context) ([]database.Record, error) {
		return s.deps.Reports.MonthlySeries(ctx, f)
	})
}

func (s *Server) breakdown(key string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var f warehouse.Filter
		if err := queryInts(r, map[string]*int{"id_localidade": &f.Locality}); err != nil {
			s.reportError(w, r, key, err)
			return
		}
		s.serveRecords(w, r, key, func(ctx context.Context) ([]database.Record, error) {
			return s.deps.Reports.Breakdown(ctx, key, f)
		})
	}
}

func (s *Server) topChapters(m warehouse.Measure) http.HandlerFunc {
	report := m.Name + "-cid-cap"
	return func(w http.ResponseWriter, r *http.Request) {
		var f warehouse.ChapterFilter
		if err := queryInts(r, map[string]*int{
			"id_localidade": &f.Locality,
			"ano":           &f.Year,
			"mes":           &f.Month,
		}); err != nil {
			s.reportError(w, r, report, err)
			return
		}
		s.serveRecords(w, r, report, func(ctx context.Context) ([]database.Record, error) {
			return s.deps.Reports.TopChapters(ctx, m, f)
		})
	}
}

func (s *Server) stateTotals(w http.ResponseWriter, r *http.Request) {
	s.serveRecords(w, r, "dados-por-estado", func(ctx context.Context) ([]database.Record, error) {
		return s.deps.Reports.StateTotals(ctx)
	})
}

func (s *Server) chapterByState(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("capitulo_cod")
	s.serveRecords(w, r, "internacoes-cid-por-estado", func(ctx context.Context) ([]database.Record, error) {
		return s.deps.Reports.ChapterByState(ctx, code)
	})
}

// serveRecords writes the rows of fn as a JSON array, never null.
func (s *Server) serveRecords(w http.ResponseWriter, r *http.Request, report string, fn func(context.Context) ([]database.Record, error)) {
	recs, err := fn(r.Context())
	if err != nil {
		s.reportError(w, r, report, err)
		return
	}
	if recs == nil {
		recs = []database.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) reportError(w http.ResponseWriter, r *http.Request, report string, err error) {
	var bad *invalidInput
	if errors.As(err, &bad) {
		writeError(w, http.StatusUnprocessableEntity, bad.msg)
		return
	}

	s.log.ErrorWith("report failed", err, map[string]any{"report": report})

	if b, ok := warehouse.Breakdowns[report]; ok && errs.CodeOf(err) == schema.CodeNoDescriptionColumn {
		writeError(w, http.StatusInternalServerError, msgNoDescriptionColumn+b.Table)
		return
	}
	writeError(w, statusOf(err), reportFailures[report]+errs.UserMessage(err))
}

func statusOf(err error) int {
	switch {
	case errs.IsNotFound(err):
		return http.StatusNotFound
	case errs.IsUnauthenticated(err):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
