// Package api exposes the warehouse reports and the account flows over
// HTTP with chi.
//
// Every response body is JSON. Failures carry a single "detail" string,
// localized for the dashboard.
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/koustreak/saudedash/internal/auth"
	"github.com/koustreak/saudedash/internal/database"
	"github.com/koustreak/saudedash/internal/export"
	"github.com/koustreak/saudedash/internal/filestore"
	"github.com/koustreak/saudedash/internal/identity"
	"github.com/koustreak/saudedash/internal/logger"
	"github.com/koustreak/saudedash/internal/warehouse"
)

// Reports runs the dashboard reports.
type Reports interface {
	Localities(ctx context.Context) ([]database.Record, error)
	DataPeriod(ctx context.Context) (database.Record, error)
	MonthlySeries(ctx context.Context, f warehouse.SeriesFilter) ([]database.Record, error)
	Breakdown(ctx context.Context, key string, f warehouse.Filter) ([]database.Record, error)
	TopChapters(ctx context.Context, m warehouse.Measure, f warehouse.ChapterFilter) ([]database.Record, error)
	StateTotals(ctx context.Context) ([]database.Record, error)
	ChapterByState(ctx context.Context, code string) ([]database.Record, error)
}

// Diagnostics backs the debug endpoints.
type Diagnostics interface {
	FactIndexes(ctx context.Context) (*warehouse.IndexReport, error)
	TableColumns(ctx context.Context, table string) (*warehouse.TableColumns, error)
	QueryPlan(ctx context.Context, m warehouse.Measure) (*warehouse.QueryPlan, error)
}

// Accounts runs the account flows.
type Accounts interface {
	Login(ctx context.Context, email, password string) (*auth.LoginResult, error)
	Signup(ctx context.Context, email, password, name string) (*auth.SignupResult, error)
	ForgotPassword(ctx context.Context, email string) *auth.Result
	ResetPassword() *auth.Result
	Verify(ctx context.Context, token string) (*identity.User, error)
	Profile(ctx context.Context, u *identity.User) (*auth.ProfileResult, error)
	UpdateProfile(ctx context.Context, u *identity.User, f identity.ProfileFields) (*auth.ProfileResult, error)
	DeleteAccount(ctx context.Context, u *identity.User) (*auth.Result, error)
}

// Exports stores report snapshots.
type Exports interface {
	Export(ctx context.Context, report string, p warehouse.Params) (*export.Result, error)
	List(ctx context.Context, report string) ([]filestore.ObjectInfo, error)
}

var (
	_ Reports     = (*warehouse.Service)(nil)
	_ Diagnostics = (*warehouse.Service)(nil)
	_ Accounts    = (*auth.Gateway)(nil)
	_ Exports     = (*export.Service)(nil)
)

// Deps are the services behind the routes. A nil Diagnostics or Exports
// leaves the matching routes unregistered.
type Deps struct {
	Reports     Reports
	Diagnostics Diagnostics
	Accounts    Accounts
	Exports     Exports
}

// Options tune the HTTP surface.
type Options struct {
	CORSOrigins    []string
	AuthRateLimit  int
	AuthRateWindow time.Duration
	DebugEndpoints bool
}

type Server struct {
	deps     Deps
	opts     Options
	log      *logger.Logger
	validate *validator.Validate
}

// New returns a Server. Handler builds its routes.
func New(deps Deps, opts Options, log *logger.Logger) *Server {
	if log == nil {
		log = logger.L()
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	return &Server{
		deps:     deps,
		opts:     opts,
		log:      log.With().Str("component", "api").Logger(),
		validate: newValidator(),
	}
}

// Handler returns the routed handler with the global middleware applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.instrument)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.health)

		r.Group(func(r chi.Router) {
			r.Use(s.rateLimit())
			r.Post("/login", s.login)
			r.Post("/signup", s.signup)
			r.Post("/auth/forgot-password", s.forgotPassword)
			r.Post("/auth/reset-password", s.resetPassword)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)
			r.Get("/user/profile", s.getProfile)
			r.Put("/user/profile", s.updateProfile)
			r.Delete("/user/account", s.deleteAccount)

			if s.deps.Exports != nil {
				r.Post("/exports/{report}", s.createExport)
				r.Get("/exports/{report}", s.listExports)
			}
		})

		r.Get("/localidades", s.localities)
		r.Get("/periodo-dados", s.dataPeriod)
		r.Get("/series/mensal", s.monthlySeries)
		for _, key := range warehouse.BreakdownKeys() {
			r.Get("/"+strings.Replace(key, "-", "/", 1), s.breakdown(key))
		}
		r.Get("/internacoes/cid-cap", s.topChapters(warehouse.Admissions))
		r.Get("/obitos/cid-cap", s.topChapters(warehouse.Deaths))
		r.Get("/dados/por-estado", s.stateTotals)
		r.Get("/internacoes/cid-por-estado", s.chapterByState)

		if s.opts.DebugEndpoints && s.deps.Diagnostics != nil {
			r.Get("/debug/indices", s.factIndexes)
			r.Get("/debug/columns/{table}", s.tableColumns)
			r.Get("/test-columns/{table}", s.tableColumns)
			r.Get("/debug/query-plan", s.queryPlan)
		}
	})

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "Backend responding"})
}
