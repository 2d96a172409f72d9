package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/koustreak/saudedash/internal/auth"
	"github.com/koustreak/saudedash/internal/metrics"
)

const msgTooManyRequests = "Muitas tentativas. Tente novamente em instantes."

// instrument writes the access log line and the request metrics. Routes are
// labelled by their chi pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		metrics.RecordHTTPRequest(route, r.Method, status, elapsed)

		l := s.log.With().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("latency_ms", int(elapsed.Milliseconds())).
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Logger()
		if status >= http.StatusInternalServerError {
			l.Warn("request")
			return
		}
		l.Info("request")
	})
}

// rateLimit caps auth requests per client IP. A zero limit disables it.
func (s *Server) rateLimit() func(http.Handler) http.Handler {
	if s.opts.AuthRateLimit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	window := s.opts.AuthRateWindow
	if window <= 0 {
		window = time.Minute
	}
	return httprate.Limit(
		s.opts.AuthRateLimit,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusTooManyRequests, msgTooManyRequests)
		}),
	)
}

// authenticate verifies the bearer token and stores the user in the request
// context.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := s.deps.Accounts.Verify(r.Context(), auth.BearerToken(r))
		if err != nil {
			w.Header().Set("WWW-Authenticate", "Bearer")
			s.accountError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), u)))
	})
}
