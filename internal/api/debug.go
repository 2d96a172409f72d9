package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/koustreak/saudedash/internal/errs"
	"github.com/koustreak/saudedash/internal/warehouse"
)

func (s *Server) factIndexes(w http.ResponseWriter, r *http.Request) {
	rep, err := s.deps.Diagnostics.FactIndexes(r.Context())
	if err != nil {
		s.debugError(w, "Erro ao verificar índices: ", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) tableColumns(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	cols, err := s.deps.Diagnostics.TableColumns(r.Context(), table)
	if err != nil {
		s.debugError(w, "Erro ao listar colunas da tabela "+table+": ", err)
		return
	}
	writeJSON(w, http.StatusOK, cols)
}

// queryPlan explains the chapter ranking of the measure named by the
// "medida" parameter, admissions by default.
func (s *Server) queryPlan(w http.ResponseWriter, r *http.Request) {
	m := warehouse.Admissions
	if name := r.URL.Query().Get("medida"); name != "" {
		var ok bool
		if m, ok = warehouse.MeasureByName(name); !ok {
			writeError(w, http.StatusUnprocessableEntity, "medida must be internacoes or obitos")
			return
		}
	}
	plan, err := s.deps.Diagnostics.QueryPlan(r.Context(), m)
	if err != nil {
		s.debugError(w, "Erro ao gerar plano de execução: ", err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (s *Server) debugError(w http.ResponseWriter, prefix string, err error) {
	s.log.ErrorWith("debug request failed", err, nil)
	status := statusOf(err)
	if errs.IsInvalidInput(err) {
		status = http.StatusUnprocessableEntity
	}
	writeError(w, status, prefix+errs.UserMessage(err))
}
