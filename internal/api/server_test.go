package api

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/saudedash/internal/auth"
	"github.com/koustreak/saudedash/internal/database"
	"github.com/koustreak/saudedash/internal/errs"
	"github.com/koustreak/saudedash/internal/schema"
	"github.com/koustreak/saudedash/internal/warehouse"
)

func detailOf(t *testing.T, body []byte) string {
	t.Helper()
	var e errorBody
	require.NoError(t, json.Unmarshal(body, &e))
	return e.Detail
}

func TestHealth(t *testing.T) {
	h, _ := newTestServer(t, Options{})
	w := do(h, http.MethodGet, "/api/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok","message":"Backend responding"}`, w.Body.String())
}

func TestCORS_Preflight(t *testing.T) {
	h, _ := newTestServer(t, Options{})
	w := do(h, http.MethodOptions, "/api/localidades", "",
		"Origin", "https://painel.example",
		"Access-Control-Request-Method", "GET")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, []string{"*", "https://painel.example"}, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newTestServer(t, Options{})
	do(h, http.MethodGet, "/api/health", "")

	w := do(h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}

func TestLocalities_EmptyIsArray(t *testing.T) {
	h, _ := newTestServer(t, Options{})
	w := do(h, http.MethodGet, "/api/localidades", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", w.Body.String())
}

func TestLocalities_KeepsColumnOrder(t *testing.T) {
	h, d := newTestServer(t, Options{})
	d.reports.recs = []database.Record{{
		{Key: "id_localidade", Value: int64(1)},
		{Key: "municipio", Value: "Acrelândia"},
		{Key: "uf", Value: "AC"},
	}}

	w := do(h, http.MethodGet, "/api/localidades", "")
	assert.Equal(t, `[{"id_localidade":1,"municipio":"Acrelândia","uf":"AC"}]`, w.Body.String())
}

func TestDataPeriod(t *testing.T) {
	h, _ := newTestServer(t, Options{})
	w := do(h, http.MethodGet, "/api/periodo-dados", "")

	assert.Equal(t, `{"ano_inicio":null,"ano_fim":null,"mes_inicio":null,"mes_fim":null}`, w.Body.String())
}

func TestMonthlySeries_Params(t *testing.T) {
	h, d := newTestServer(t, Options{})
	w := do(h, http.MethodGet, "/api/series/mensal?id_localidade=7&ano_inicio=2020&ano_fim=2021&mes=3&limit=100", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, warehouse.SeriesFilter{Locality: 7, YearFrom: 2020, YearTo: 2021, Month: 3, Limit: 100}, d.reports.series)
}

func TestMonthlySeries_NonIntegerParam(t *testing.T) {
	h, _ := newTestServer(t, Options{})
	w := do(h, http.MethodGet, "/api/series/mensal?ano_inicio=dois-mil", "")

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "ano_inicio must be an integer", detailOf(t, w.Body.Bytes()))
}

func TestBreakdownRoutes(t *testing.T) {
	paths := map[string]string{
		"/api/internacoes/sexo":    "internacoes-sexo",
		"/api/internacoes/faixa":   "internacoes-faixa",
		"/api/obitos/raca":         "obitos-raca",
		"/api/obitos/estado-civil": "obitos-estado-civil",
		"/api/obitos/local":        "obitos-local",
	}
	for path, key := range paths {
		t.Run(key, func(t *testing.T) {
			h, d := newTestServer(t, Options{})
			w := do(h, http.MethodGet, path+"?id_localidade=12", "")

			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, key, d.reports.key)
			assert.Equal(t, 12, d.reports.filter.Locality)
		})
	}
}

func TestReportFailureDetails(t *testing.T) {
	boom := errs.Wrap(errs.ErrKindQueryFailed, "query failed", errors.New("canceling statement due to statement timeout"))
	tests := []struct {
		path   string
		detail string
	}{
		{"/api/localidades", "Erro ao buscar localidades: query failed: canceling statement due to statement timeout"},
		{"/api/obitos/raca", "Erro ao buscar dados de óbitos por raça. Verifique os logs do backend. Erro: query failed: canceling statement due to statement timeout"},
		{"/api/internacoes/faixa", "Erro ao buscar dados de internações por faixa etária. Verifique os logs do backend. Erro: query failed: canceling statement due to statement timeout"},
		{"/api/obitos/cid-cap", "Erro ao buscar dados de CID-10 (óbitos). Verifique os logs do backend. Erro: query failed: canceling statement due to statement timeout"},
		{"/api/dados/por-estado", "Erro ao buscar dados por estado: query failed: canceling statement due to statement timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			h, d := newTestServer(t, Options{})
			d.reports.err = boom
			w := do(h, http.MethodGet, tt.path, "")

			assert.Equal(t, http.StatusInternalServerError, w.Code)
			assert.Equal(t, tt.detail, detailOf(t, w.Body.Bytes()))
		})
	}
}

func TestPlaceOfDeath_NoDescriptionColumn(t *testing.T) {
	h, d := newTestServer(t, Options{})
	d.reports.err = errs.Wrap(errs.ErrKindQueryFailed, "obitos-local",
		errs.New(errs.ErrKindQueryFailed, "no description column found in dim_local_ocorrencia").WithCode(schema.CodeNoDescriptionColumn))

	w := do(h, http.MethodGet, "/api/obitos/local", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Não foi possível encontrar coluna de descrição na tabela dim_local_ocorrencia", detailOf(t, w.Body.Bytes()))
}

func TestTopChapters_Params(t *testing.T) {
	h, d := newTestServer(t, Options{})
	w := do(h, http.MethodGet, "/api/internacoes/cid-cap?ano=2022&mes=3", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, warehouse.Admissions, d.reports.measure)
	assert.Equal(t, warehouse.ChapterFilter{Year: 2022, Month: 3}, d.reports.chapters)

	do(h, http.MethodGet, "/api/obitos/cid-cap", "")
	assert.Equal(t, warehouse.Deaths, d.reports.measure)
}

func TestChapterByState_Code(t *testing.T) {
	h, d := newTestServer(t, Options{})
	w := do(h, http.MethodGet, "/api/internacoes/cid-por-estado?capitulo_cod=IX", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "IX", d.reports.code)
}

func TestDatabaseNotConfigured(t *testing.T) {
	h, d := newTestServer(t, Options{})
	d.reports.err = errs.New(errs.ErrKindConfig, "DATABASE_URL is not set")

	w := do(h, http.MethodGet, "/api/dados/por-estado", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Erro ao buscar dados por estado: DATABASE_URL is not set", detailOf(t, w.Body.Bytes()))
}

func TestDebugRoutes_Gated(t *testing.T) {
	h, _ := newTestServer(t, Options{})
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/api/debug/indices", "").Code)

	h, d := newTestServer(t, Options{DebugEndpoints: true})
	w := do(h, http.MethodGet, "/api/debug/indices", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"indices_encontrados":["idx_fato_series_obitos"]`)

	w = do(h, http.MethodGet, "/api/test-columns/dim_sexo", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"table":"dim_sexo","columns":["id_sexo","sexo_desc"]}`, w.Body.String())

	w = do(h, http.MethodGet, "/api/debug/query-plan?medida=obitos", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, warehouse.Deaths, d.diag.measure)

	w = do(h, http.MethodGet, "/api/debug/query-plan?medida=vacinas", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestDebugColumns_Failure(t *testing.T) {
	h, d := newTestServer(t, Options{DebugEndpoints: true})
	d.diag.err = errs.New(errs.ErrKindQueryFailed, "permission denied for table dim_sexo")

	w := do(h, http.MethodGet, "/api/debug/columns/dim_sexo", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Erro ao listar colunas da tabela dim_sexo: permission denied for table dim_sexo", detailOf(t, w.Body.Bytes()))
}

func TestLogin(t *testing.T) {
	h, d := newTestServer(t, Options{})
	w := do(h, http.MethodPost, "/api/login", `{"email":"ana@example.com","password":"pw"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ana@example.com", d.accounts.email)
	assert.Contains(t, w.Body.String(), `"access_token":"at"`)
}

func TestLogin_Validation(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		detail string
	}{
		{"bad email", `{"email":"not-an-email","password":"pw"}`, "email must be a valid email address"},
		{"missing password", `{"email":"ana@example.com"}`, "password is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestServer(t, Options{})
			w := do(h, http.MethodPost, "/api/login", tt.body)

			assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
			assert.Equal(t, tt.detail, detailOf(t, w.Body.Bytes()))
		})
	}

	h, _ := newTestServer(t, Options{})
	w := do(h, http.MethodPost, "/api/login", `{"email":`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestLogin_GatewayError(t *testing.T) {
	h, d := newTestServer(t, Options{})
	d.accounts.loginErr = &auth.Error{Status: http.StatusUnauthorized, Detail: "Email ou senha incorretos"}

	w := do(h, http.MethodPost, "/api/login", `{"email":"ana@example.com","password":"x"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Email ou senha incorretos", detailOf(t, w.Body.Bytes()))
}

func TestSignup(t *testing.T) {
	h, d := newTestServer(t, Options{})
	w := do(h, http.MethodPost, "/api/signup", `{"email":"joao@example.com","password":"pw","name":"João"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "João", d.accounts.name)

	d.accounts.signupErr = &auth.Error{Status: http.StatusBadRequest, Detail: "Este email já está cadastrado"}
	w = do(h, http.MethodPost, "/api/signup", `{"email":"joao@example.com","password":"pw"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPasswordFlows(t *testing.T) {
	h, d := newTestServer(t, Options{})

	w := do(h, http.MethodPost, "/api/auth/forgot-password", `{"email":"ana@example.com"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ana@example.com", d.accounts.email)

	w = do(h, http.MethodPost, "/api/auth/reset-password", `{"token":"t","password":"novo"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"frontend"}`, w.Body.String())
}

func TestAuthRateLimit(t *testing.T) {
	h, _ := newTestServer(t, Options{AuthRateLimit: 2, AuthRateWindow: time.Minute})
	body := `{"email":"ana@example.com","password":"pw"}`

	assert.Equal(t, http.StatusOK, do(h, http.MethodPost, "/api/login", body).Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodPost, "/api/login", body).Code)

	w := do(h, http.MethodPost, "/api/login", body)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, msgTooManyRequests, detailOf(t, w.Body.Bytes()))

	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/api/health", "").Code)
}

func TestProfile_RequiresBearer(t *testing.T) {
	h, _ := newTestServer(t, Options{})

	w := do(h, http.MethodGet, "/api/user/profile", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Not authenticated", detailOf(t, w.Body.Bytes()))
	assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))

	w = do(h, http.MethodGet, "/api/user/profile", "", "Authorization", "Bearer forged")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Token inválido ou expirado", detailOf(t, w.Body.Bytes()))

	w = do(h, http.MethodGet, "/api/user/profile", "", "Authorization", "Bearer good")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"u1"`)
}

func TestUpdateProfile(t *testing.T) {
	h, d := newTestServer(t, Options{})

	w := do(h, http.MethodPut, "/api/user/profile", `{"phone":"+55 61 3333-0000"}`, "Authorization", "Bearer good")
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, d.accounts.updated.Phone)
	assert.Equal(t, "+55 61 3333-0000", *d.accounts.updated.Phone)
	assert.Nil(t, d.accounts.updated.Name)

	d.accounts.updateErr = &auth.Error{Status: http.StatusBadRequest, Detail: "Nenhum campo para atualizar"}
	w = do(h, http.MethodPut, "/api/user/profile", `{}`, "Authorization", "Bearer good")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteAccount(t *testing.T) {
	h, d := newTestServer(t, Options{})
	w := do(h, http.MethodDelete, "/api/user/account", "", "Authorization", "Bearer good")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", d.accounts.deleted)
}

func TestExports(t *testing.T) {
	h, d := newTestServer(t, Options{})

	w := do(h, http.MethodPost, "/api/exports/obitos-raca?id_localidade=5", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(h, http.MethodPost, "/api/exports/obitos-raca?id_localidade=5", "", "Authorization", "Bearer good")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "obitos-raca", d.exports.report)
	assert.Equal(t, 5, d.exports.params.Locality)
	assert.Contains(t, w.Body.String(), `"url":"https://minio.local/x.csv"`)

	w = do(h, http.MethodGet, "/api/exports/obitos-raca", "", "Authorization", "Bearer good")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"report":"obitos-raca","exports":[]}`, w.Body.String())

	w = do(h, http.MethodGet, "/api/exports/vacinas", "", "Authorization", "Bearer good")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExports_UnknownReport(t *testing.T) {
	h, d := newTestServer(t, Options{})
	d.exports.err = errs.New(errs.ErrKindNotFound, "unknown report: vacinas")

	w := do(h, http.MethodPost, "/api/exports/vacinas", "", "Authorization", "Bearer good")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Erro ao exportar relatório: unknown report: vacinas", detailOf(t, w.Body.Bytes()))
}

func TestExports_DisabledWithoutStore(t *testing.T) {
	d := &testDeps{reports: &fakeReports{}, accounts: &fakeAccounts{}}
	h := New(Deps{Reports: d.reports, Accounts: d.accounts}, Options{}, nil).Handler()

	w := do(h, http.MethodPost, "/api/exports/obitos-raca", "", "Authorization", "Bearer good")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
