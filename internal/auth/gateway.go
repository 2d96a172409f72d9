// Package auth shapes the identity provider's account flows into the API's
// responses and verifies bearer tokens.
//
// Nothing is kept locally: every token is checked against the provider on
// each request and profiles live in the provider's mirror table.
package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/koustreak/saudedash/internal/errs"
	"github.com/koustreak/saudedash/internal/identity"
	"github.com/koustreak/saudedash/internal/logger"
)

// Localized response details.
const (
	msgInvalidCredentials = "Email ou senha incorretos"
	msgNoUser             = "Credenciais inválidas"
	msgEmailNotConfirmed  = "Email não confirmado. Verifique sua caixa de entrada."
	msgNoSession          = "Não foi possível criar sessão. Verifique se seu email foi confirmado."
	msgLoginFailed        = "Erro ao fazer login: "
	msgSignupCreated      = "Usuário criado com sucesso"
	msgSignupNoUser       = "Erro ao criar usuário"
	msgAlreadyRegistered  = "Este email já está cadastrado"
	msgSignupFailed       = "Erro ao criar conta: "
	msgRecoverySent       = "Se o email estiver cadastrado, você receberá um link de recuperação."
	msgResetMoved         = "Este endpoint não é mais usado. O reset de senha é feito diretamente no frontend."
	msgInvalidToken       = "Token inválido ou expirado"
	msgMissingToken       = "Not authenticated"
	msgNothingToUpdate    = "Nenhum campo para atualizar"
	msgAccountClosed      = "Conta encerrada com sucesso"
	msgCloseFailed        = "Erro ao encerrar conta: "
)

// DefaultFrontendURL is where confirmation and recovery links point when
// FRONTEND_URL is not set.
const DefaultFrontendURL = "https://sims-dashboard-saude.vercel.app"

// Provider is the subset of the identity client the gateway uses.
type Provider interface {
	SignInWithPassword(ctx context.Context, email, password string) (*identity.Session, error)
	SignUp(ctx context.Context, p identity.SignUpParams) (*identity.Session, error)
	RecoverPassword(ctx context.Context, email, redirectTo string) error
	GetUser(ctx context.Context, token string) (*identity.User, error)
	GetProfile(ctx context.Context, id string) (*identity.Profile, error)
	InsertProfile(ctx context.Context, id, email, name string) error
	UpdateProfile(ctx context.Context, id string, f identity.ProfileFields) (*identity.Profile, error)
	DeleteProfile(ctx context.Context, id string) error
}

var _ Provider = (*identity.Client)(nil)

// UserInfo is the user block of a login response.
type UserInfo struct {
	ID           string  `json:"id"`
	Email        string  `json:"email"`
	Name         *string `json:"name"`
	Phone        *string `json:"phone"`
	Organization *string `json:"organization"`
}

type LoginResult struct {
	Success      bool     `json:"success"`
	User         UserInfo `json:"user"`
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
}

type SignupUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type SignupResult struct {
	Success                bool       `json:"success"`
	Message                string     `json:"message"`
	NeedsEmailConfirmation bool       `json:"needs_email_confirmation"`
	User                   SignupUser `json:"user"`
}

// Result is a plain outcome with a message or an error text.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type ProfileResult struct {
	Success bool              `json:"success"`
	Profile *identity.Profile `json:"profile"`
}

// Gateway runs the account flows against the identity provider.
type Gateway struct {
	idp         Provider
	frontendURL string
	parser      *jwt.Parser
	log         *logger.Logger
}

// NewGateway returns a Gateway. frontendURL defaults to DefaultFrontendURL.
func NewGateway(idp Provider, frontendURL string, log *logger.Logger) *Gateway {
	if frontendURL == "" {
		frontendURL = DefaultFrontendURL
	}
	if log == nil {
		log = logger.L()
	}
	return &Gateway{
		idp:         idp,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		parser:      jwt.NewParser(),
		log:         log.With().Str("component", "auth").Logger(),
	}
}

// Login signs in with email and password.
func (g *Gateway) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	s, err := g.idp.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, loginError(err)
	}
	if s.User == nil {
		return nil, unauthorized(msgNoUser, nil)
	}
	if !s.User.Confirmed() {
		return nil, unauthorized(msgEmailNotConfirmed, nil)
	}
	if s.AccessToken == "" {
		return nil, unauthorized(msgNoSession, nil)
	}

	info := UserInfo{ID: s.User.ID, Email: s.User.Email}
	profile, err := g.idp.GetProfile(ctx, s.User.ID)
	if err != nil {
		g.log.With().Str("user_id", s.User.ID).Err(err).Logger().Debug("profile lookup failed")
	}
	if profile != nil {
		info.Name, info.Phone, info.Organization = profile.Name, profile.Phone, profile.Organization
	} else {
		name := localPart(s.User.Email)
		info.Name = &name
	}

	return &LoginResult{
		Success:      true,
		User:         info,
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
	}, nil
}

// Signup creates an account and mirrors its profile row. name defaults to
// the local part of email.
func (g *Gateway) Signup(ctx context.Context, email, password, name string) (*SignupResult, error) {
	if name == "" {
		name = localPart(email)
	}

	s, err := g.idp.SignUp(ctx, identity.SignUpParams{
		Email:      email,
		Password:   password,
		Name:       name,
		RedirectTo: g.frontendURL + "/",
	})
	if err != nil {
		msg := providerMessage(err)
		if strings.Contains(strings.ToLower(msg), "already registered") || providerCode(err) == "user_already_exists" {
			return nil, badRequest(msgAlreadyRegistered, err)
		}
		return nil, badRequest(msgSignupFailed+msg, err)
	}
	if s.User == nil || s.User.ID == "" {
		return nil, badRequest(msgSignupNoUser, nil)
	}

	if err := g.idp.InsertProfile(ctx, s.User.ID, email, name); err != nil {
		g.log.With().Str("user_id", s.User.ID).Err(err).Logger().Warn("profile mirror failed")
	}

	return &SignupResult{
		Success:                true,
		Message:                msgSignupCreated,
		NeedsEmailConfirmation: !s.User.Confirmed(),
		User:                   SignupUser{ID: s.User.ID, Email: s.User.Email, Name: name},
	}, nil
}

// ForgotPassword requests a recovery email. The outcome never depends on
// whether the address exists.
func (g *Gateway) ForgotPassword(ctx context.Context, email string) *Result {
	if err := g.idp.RecoverPassword(ctx, email, g.frontendURL+"/reset-password"); err != nil {
		g.log.With().Err(err).Logger().Warn("password recovery request failed")
	}
	return &Result{Success: true, Message: msgRecoverySent}
}

// ResetPassword is kept for old clients. Resets happen in the frontend.
func (g *Gateway) ResetPassword() *Result {
	return &Result{Success: false, Error: msgResetMoved}
}

// Verify returns the user owning token. Tokens that are not structurally
// JWTs are refused without asking the provider.
func (g *Gateway) Verify(ctx context.Context, token string) (*identity.User, error) {
	if token == "" {
		return nil, unauthorized(msgMissingToken, nil)
	}
	if _, _, err := g.parser.ParseUnverified(token, jwt.MapClaims{}); err != nil {
		return nil, unauthorized(msgInvalidToken, err)
	}
	u, err := g.idp.GetUser(ctx, token)
	if err != nil {
		return nil, unauthorized(msgInvalidToken, err)
	}
	return u, nil
}

// Profile returns the mirrored profile of u, which may be absent.
func (g *Gateway) Profile(ctx context.Context, u *identity.User) (*ProfileResult, error) {
	p, err := g.idp.GetProfile(ctx, u.ID)
	if err != nil {
		return nil, internal(providerMessage(err), err)
	}
	return &ProfileResult{Success: true, Profile: p}, nil
}

// UpdateProfile applies the set fields to the profile of u.
func (g *Gateway) UpdateProfile(ctx context.Context, u *identity.User, f identity.ProfileFields) (*ProfileResult, error) {
	if f.Empty() {
		return nil, badRequest(msgNothingToUpdate, nil)
	}
	p, err := g.idp.UpdateProfile(ctx, u.ID, f)
	if err != nil {
		return nil, internal(providerMessage(err), err)
	}
	return &ProfileResult{Success: true, Profile: p}, nil
}

// DeleteAccount removes the mirrored profile of u. The provider account
// itself is left in place.
func (g *Gateway) DeleteAccount(ctx context.Context, u *identity.User) (*Result, error) {
	if u == nil || u.ID == "" {
		return nil, internal(msgCloseFailed+"missing user", nil)
	}
	if err := g.idp.DeleteProfile(ctx, u.ID); err != nil {
		g.log.With().Str("user_id", u.ID).Err(err).Logger().Warn("profile delete failed")
	}
	return &Result{Success: true, Message: msgAccountClosed}, nil
}

func loginError(err error) *Error {
	msg := providerMessage(err)
	probe := strings.ToLower(msg + " " + providerCode(err))
	switch {
	case strings.Contains(msg, "Invalid login credentials") || strings.Contains(probe, "invalid_credentials"):
		return unauthorized(msgInvalidCredentials, err)
	case strings.Contains(msg, "Email not confirmed") || strings.Contains(probe, "email_not_confirmed"):
		return unauthorized(msgEmailNotConfirmed, err)
	default:
		return unauthorized(msgLoginFailed+msg, err)
	}
}

func providerMessage(err error) string {
	if apiErr, ok := asAPIError(err); ok {
		return apiErr.Message
	}
	return errs.UserMessage(err)
}

func providerCode(err error) string {
	if apiErr, ok := asAPIError(err); ok {
		return apiErr.Code
	}
	return ""
}

func asAPIError(err error) (*identity.APIError, bool) {
	var apiErr *identity.APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

func localPart(email string) string {
	name, _, _ := strings.Cut(email, "@")
	return name
}
