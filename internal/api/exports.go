package api

import (
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"

	"github.com/koustreak/saudedash/internal/errs"
	"github.com/koustreak/saudedash/internal/filestore"
	"github.com/koustreak/saudedash/internal/warehouse"
)

const msgExportFailed = "Erro ao exportar relatório: "

type exportList struct {
	Success bool                   `json:"success"`
	Report  string                 `json:"report"`
	Exports []filestore.ObjectInfo `json:"exports"`
}

func (s *Server) createExport(w http.ResponseWriter, r *http.Request) {
	report := chi.URLParam(r, "report")
	var p warehouse.Params
	if err := queryInts(r, map[string]*int{
		"id_localidade": &p.Locality,
		"ano_inicio":    &p.YearFrom,
		"ano_fim":       &p.YearTo,
		"ano":           &p.Year,
		"mes":           &p.Month,
		"limit":         &p.Limit,
	}); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	p.Chapter = r.URL.Query().Get("capitulo_cod")

	res, err := s.deps.Exports.Export(r.Context(), report, p)
	if err != nil {
		s.log.ErrorWith("export failed", err, map[string]any{"report": report})
		writeError(w, statusOf(err), msgExportFailed+errs.UserMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) listExports(w http.ResponseWriter, r *http.Request) {
	report := chi.URLParam(r, "report")
	if !slices.Contains(warehouse.ReportNames(), report) {
		writeError(w, http.StatusNotFound, msgExportFailed+"unknown report: "+report)
		return
	}
	objs, err := s.deps.Exports.List(r.Context(), report)
	if err != nil {
		s.log.ErrorWith("export listing failed", err, map[string]any{"report": report})
		writeError(w, statusOf(err), msgExportFailed+errs.UserMessage(err))
		return
	}
	if objs == nil {
		objs = []filestore.ObjectInfo{}
	}
	writeJSON(w, http.StatusOK, exportList{Success: true, Report: report, Exports: objs})
}
