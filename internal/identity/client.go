// Package identity is a REST client for the hosted identity provider: the
// auth API under /auth/v1 and the profiles mirror table under /rest/v1.
//
// Every call goes through one circuit breaker. Requests the provider
// rejects (4xx) do not count against it; unreachable hosts and 5xx do.
package identity

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/koustreak/saudedash/internal/errs"
	"github.com/koustreak/saudedash/internal/logger"
	"github.com/koustreak/saudedash/internal/metrics"
)

const (
	breakerName     = "identity"
	maxResponseBody = 1 << 20
	profilesPath    = "/rest/v1/profiles"
)

// Config holds the identity provider settings.
type Config struct {
	URL            string        `koanf:"url" yaml:"url"`
	Key            string        `koanf:"key" yaml:"key"`
	Timeout        time.Duration `koanf:"timeout" yaml:"timeout"`
	BreakerTimeout time.Duration `koanf:"breaker_timeout" yaml:"breaker_timeout"`
}

// Client talks to the identity provider.
type Client struct {
	baseURL string
	key     string
	http    *http.Client
	cb      *gobreaker.CircuitBreaker[[]byte]
	log     *logger.Logger
}

// NewClient validates cfg and returns a Client. A missing URL or key is an
// errs.ErrKindConfig error.
func NewClient(cfg Config, log *logger.Logger) (*Client, error) {
	if cfg.URL == "" || cfg.Key == "" {
		return nil, errs.New(errs.ErrKindConfig, "SUPABASE_URL and SUPABASE_KEY must be set")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errs.Wrap(errs.ErrKindConfig, "invalid SUPABASE_URL", err)
	}
	if log == nil {
		log = logger.L()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}

	c := &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		key:     cfg.Key,
		http:    &http.Client{Timeout: cfg.Timeout},
		log:     log.With().Str("component", "identity").Logger(),
	}

	metrics.SetBreakerState(breakerName, stateValue(gobreaker.StateClosed))
	c.cb = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		IsSuccessful: countsAsSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.With().Str("from", from.String()).Str("to", to.String()).Logger().Warn("circuit breaker state changed")
			metrics.SetBreakerState(name, stateValue(to))
		},
	})
	return c, nil
}

// SignInWithPassword opens a session for email and password.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	body, err := c.do(ctx, request{
		op:     "sign_in",
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {"password"}},
		body:   map[string]string{"email": email, "password": password},
	})
	if err != nil {
		return nil, err
	}
	var s Session
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, decodeError("sign in", err)
	}
	return &s, nil
}

// SignUpParams are the inputs of SignUp.
type SignUpParams struct {
	Email      string
	Password   string
	Name       string
	RedirectTo string
}

// SignUp creates an account. The returned session has no tokens when the
// provider requires email confirmation; User is always set on success.
func (c *Client) SignUp(ctx context.Context, p SignUpParams) (*Session, error) {
	q := url.Values{}
	if p.RedirectTo != "" {
		q.Set("redirect_to", p.RedirectTo)
	}
	body, err := c.do(ctx, request{
		op:     "sign_up",
		method: http.MethodPost,
		path:   "/auth/v1/signup",
		query:  q,
		body: map[string]any{
			"email":    p.Email,
			"password": p.Password,
			"data":     map[string]string{"name": p.Name},
		},
	})
	if err != nil {
		return nil, err
	}

	// Unconfirmed sign-ups return the bare user instead of a session.
	var s Session
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, decodeError("sign up", err)
	}
	if s.User == nil {
		var u User
		if err := json.Unmarshal(body, &u); err != nil {
			return nil, decodeError("sign up", err)
		}
		if u.ID != "" {
			s.User = &u
		}
	}
	return &s, nil
}

// RecoverPassword asks the provider to email a recovery link.
func (c *Client) RecoverPassword(ctx context.Context, email, redirectTo string) error {
	q := url.Values{}
	if redirectTo != "" {
		q.Set("redirect_to", redirectTo)
	}
	_, err := c.do(ctx, request{
		op:     "recover",
		method: http.MethodPost,
		path:   "/auth/v1/recover",
		query:  q,
		body:   map[string]string{"email": email},
	})
	return err
}

// GetUser returns the user owning the access token.
func (c *Client) GetUser(ctx context.Context, token string) (*User, error) {
	body, err := c.do(ctx, request{
		op:     "get_user",
		method: http.MethodGet,
		path:   "/auth/v1/user",
		token:  token,
	})
	if err != nil {
		return nil, err
	}
	var u User
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, decodeError("get user", err)
	}
	if u.ID == "" {
		return nil, errs.New(errs.ErrKindUnauthenticated, "token has no user")
	}
	return &u, nil
}

// GetProfile returns the profile row of id, or nil when there is none.
func (c *Client) GetProfile(ctx context.Context, id string) (*Profile, error) {
	body, err := c.do(ctx, request{
		op:     "get_profile",
		method: http.MethodGet,
		path:   profilesPath,
		query:  url.Values{"id": {"eq." + id}, "select": {"*"}},
	})
	if err != nil {
		return nil, err
	}
	return firstProfile(body)
}

// InsertProfile mirrors a new account into the profiles table.
func (c *Client) InsertProfile(ctx context.Context, id, email, name string) error {
	_, err := c.do(ctx, request{
		op:     "insert_profile",
		method: http.MethodPost,
		path:   profilesPath,
		prefer: "return=minimal",
		body:   map[string]string{"id": id, "email": email, "name": name},
	})
	return err
}

// UpdateProfile applies f to the profile of id and returns the updated
// row, or nil when no row matched.
func (c *Client) UpdateProfile(ctx context.Context, id string, f ProfileFields) (*Profile, error) {
	body, err := c.do(ctx, request{
		op:     "update_profile",
		method: http.MethodPatch,
		path:   profilesPath,
		query:  url.Values{"id": {"eq." + id}},
		prefer: "return=representation",
		body:   f,
	})
	if err != nil {
		return nil, err
	}
	return firstProfile(body)
}

// DeleteProfile removes the profile row of id.
func (c *Client) DeleteProfile(ctx context.Context, id string) error {
	_, err := c.do(ctx, request{
		op:     "delete_profile",
		method: http.MethodDelete,
		path:   profilesPath,
		query:  url.Values{"id": {"eq." + id}},
	})
	return err
}

type request struct {
	op     string
	method string
	path   string
	query  url.Values
	token  string // bearer token; the API key when empty
	prefer string
	body   any
}

func (c *Client) do(ctx context.Context, r request) ([]byte, error) {
	body, err := c.cb.Execute(func() ([]byte, error) {
		return c.send(ctx, r)
	})
	switch {
	case err == nil:
		metrics.RecordIdentityCall(r.op, "success")
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.RecordIdentityCall(r.op, "rejected")
		c.log.WarnWith("identity request rejected", err, map[string]any{"operation": r.op})
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "identity provider unavailable", err)
	default:
		metrics.RecordIdentityCall(r.op, "failure")
	}
	return body, err
}

func (c *Client) send(ctx context.Context, r request) ([]byte, error) {
	var payload io.Reader = http.NoBody
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to encode identity request", err)
		}
		payload = bytes.NewReader(b)
	}

	target := c.baseURL + r.path
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, r.method, target, payload)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to build identity request", err)
	}

	token := r.token
	if token == "" {
		token = c.key
	}
	req.Header.Set("apikey", c.key)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.prefer != "" {
		req.Header.Set("Prefer", r.prefer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errs.Wrap(errs.ErrKindTimeout, "identity request cancelled", err)
		}
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "identity provider unreachable", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to read identity response", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, decodeAPIError(resp.StatusCode, data)
	}
	return data, nil
}

func decodeAPIError(status int, body []byte) *APIError {
	e := &APIError{Status: status}
	var raw map[string]any
	if json.Unmarshal(body, &raw) == nil {
		e.Code = firstString(raw, "error_code", "error", "code")
		e.Message = firstString(raw, "msg", "error_description", "message")
	}
	if e.Message == "" {
		e.Message = strings.TrimSpace(string(body))
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func firstProfile(body []byte) (*Profile, error) {
	var rows []Profile
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, decodeError("profile", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func decodeError(what string, err error) error {
	return errs.Wrap(errs.ErrKindQueryFailed, "failed to decode identity "+what+" response", err)
}

// countsAsSuccess keeps rejected requests (bad credentials, duplicate
// accounts) from opening the breaker.
func countsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return !apiErr.Temporary()
	}
	return errs.IsInvalidInput(err) || errs.IsUnauthenticated(err)
}

func stateValue(s gobreaker.State) int {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
