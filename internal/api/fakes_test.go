package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/koustreak/saudedash/internal/auth"
	"github.com/koustreak/saudedash/internal/database"
	"github.com/koustreak/saudedash/internal/export"
	"github.com/koustreak/saudedash/internal/filestore"
	"github.com/koustreak/saudedash/internal/identity"
	"github.com/koustreak/saudedash/internal/logger"
	"github.com/koustreak/saudedash/internal/warehouse"
)

type fakeReports struct {
	recs []database.Record
	err  error

	series   warehouse.SeriesFilter
	filter   warehouse.Filter
	key      string
	measure  warehouse.Measure
	chapters warehouse.ChapterFilter
	code     string
}

func (f *fakeReports) Localities(ctx context.Context) ([]database.Record, error) {
	return f.recs, f.err
}

func (f *fakeReports) DataPeriod(ctx context.Context) (database.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	return database.Record{
		{Key: "ano_inicio", Value: nil}, {Key: "ano_fim", Value: nil},
		{Key: "mes_inicio", Value: nil}, {Key: "mes_fim", Value: nil},
	}, nil
}

func (f *fakeReports) MonthlySeries(ctx context.Context, sf warehouse.SeriesFilter) ([]database.Record, error) {
	f.series = sf
	return f.recs, f.err
}

func (f *fakeReports) Breakdown(ctx context.Context, key string, flt warehouse.Filter) ([]database.Record, error) {
	f.key, f.filter = key, flt
	return f.recs, f.err
}

func (f *fakeReports) TopChapters(ctx context.Context, m warehouse.Measure, cf warehouse.ChapterFilter) ([]database.Record, error) {
	f.measure, f.chapters = m, cf
	return f.recs, f.err
}

func (f *fakeReports) StateTotals(ctx context.Context) ([]database.Record, error) {
	return f.recs, f.err
}

func (f *fakeReports) ChapterByState(ctx context.Context, code string) ([]database.Record, error) {
	f.code = code
	return f.recs, f.err
}

type fakeDiagnostics struct {
	err     error
	table   string
	measure warehouse.Measure
}

func (f *fakeDiagnostics) FactIndexes(ctx context.Context) (*warehouse.IndexReport, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &warehouse.IndexReport{Total: 1, Found: []string{"idx_fato_series_obitos"}}, nil
}

func (f *fakeDiagnostics) TableColumns(ctx context.Context, table string) (*warehouse.TableColumns, error) {
	f.table = table
	if f.err != nil {
		return nil, f.err
	}
	return &warehouse.TableColumns{Table: table, Columns: []string{"id_sexo", "sexo_desc"}}, nil
}

func (f *fakeDiagnostics) QueryPlan(ctx context.Context, m warehouse.Measure) (*warehouse.QueryPlan, error) {
	f.measure = m
	return &warehouse.QueryPlan{}, f.err
}

// fakeAccounts accepts the token "good" only.
type fakeAccounts struct {
	loginErr  error
	signupErr error
	updateErr error

	email   string
	name    string
	updated identity.ProfileFields
	deleted string
}

func (f *fakeAccounts) Login(ctx context.Context, email, password string) (*auth.LoginResult, error) {
	f.email = email
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &auth.LoginResult{Success: true, AccessToken: "at", User: auth.UserInfo{ID: "u1", Email: email}}, nil
}

func (f *fakeAccounts) Signup(ctx context.Context, email, password, name string) (*auth.SignupResult, error) {
	f.email, f.name = email, name
	if f.signupErr != nil {
		return nil, f.signupErr
	}
	return &auth.SignupResult{Success: true, Message: "Usuário criado com sucesso"}, nil
}

func (f *fakeAccounts) ForgotPassword(ctx context.Context, email string) *auth.Result {
	f.email = email
	return &auth.Result{Success: true, Message: "ok"}
}

func (f *fakeAccounts) ResetPassword() *auth.Result {
	return &auth.Result{Success: false, Error: "frontend"}
}

func (f *fakeAccounts) Verify(ctx context.Context, token string) (*identity.User, error) {
	switch token {
	case "good":
		return &identity.User{ID: "u1", Email: "ana@example.com"}, nil
	case "":
		return nil, &auth.Error{Status: http.StatusUnauthorized, Detail: "Not authenticated"}
	default:
		return nil, &auth.Error{Status: http.StatusUnauthorized, Detail: "Token inválido ou expirado"}
	}
}

func (f *fakeAccounts) Profile(ctx context.Context, u *identity.User) (*auth.ProfileResult, error) {
	return &auth.ProfileResult{Success: true, Profile: &identity.Profile{ID: u.ID}}, nil
}

func (f *fakeAccounts) UpdateProfile(ctx context.Context, u *identity.User, pf identity.ProfileFields) (*auth.ProfileResult, error) {
	f.updated = pf
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return &auth.ProfileResult{Success: true, Profile: &identity.Profile{ID: u.ID, Phone: pf.Phone}}, nil
}

func (f *fakeAccounts) DeleteAccount(ctx context.Context, u *identity.User) (*auth.Result, error) {
	f.deleted = u.ID
	return &auth.Result{Success: true, Message: "Conta encerrada com sucesso"}, nil
}

type fakeExports struct {
	err    error
	report string
	params warehouse.Params
}

func (f *fakeExports) Export(ctx context.Context, report string, p warehouse.Params) (*export.Result, error) {
	f.report, f.params = report, p
	if f.err != nil {
		return nil, f.err
	}
	return &export.Result{Success: true, Key: "exports/" + report + "/x.csv", URL: "https://minio.local/x.csv", Rows: 3}, nil
}

func (f *fakeExports) List(ctx context.Context, report string) ([]filestore.ObjectInfo, error) {
	f.report = report
	return nil, f.err
}

type testDeps struct {
	reports  *fakeReports
	diag     *fakeDiagnostics
	accounts *fakeAccounts
	exports  *fakeExports
}

func newTestServer(t *testing.T, opts Options) (http.Handler, *testDeps) {
	t.Helper()
	d := &testDeps{
		reports:  &fakeReports{},
		diag:     &fakeDiagnostics{},
		accounts: &fakeAccounts{},
		exports:  &fakeExports{},
	}
	s := New(Deps{
		Reports:     d.reports,
		Diagnostics: d.diag,
		Accounts:    d.accounts,
		Exports:     d.exports,
	}, opts, logger.New(&logger.Config{Level: "error", Output: io.Discard}))
	return s.Handler(), d
}

func do(h http.Handler, method, target, body string, header ...string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}
