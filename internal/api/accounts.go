package api

import (
	"errors"
	"net/http"

	"github.com/koustreak/saudedash/internal/auth"
	"github.com/koustreak/saudedash/internal/errs"
	"github.com/koustreak/saudedash/internal/identity"
)

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type signupRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Name     string `json:"name" validate:"omitempty,max=200"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type resetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type profileUpdateRequest struct {
	Name         *string `json:"name" validate:"omitempty,max=200"`
	Phone        *string `json:"phone" validate:"omitempty,max=40"`
	Organization *string `json:"organization" validate:"omitempty,max=200"`
	Bio          *string `json:"bio" validate:"omitempty,max=2000"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.accountError(w, r, err)
		return
	}
	res, err := s.deps.Accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.accountError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.accountError(w, r, err)
		return
	}
	res, err := s.deps.Accounts.Signup(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		s.accountError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.accountError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Accounts.ForgotPassword(r.Context(), req.Email))
}

func (s *Server) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.accountError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Accounts.ResetPassword())
}

func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.UserFromContext(r.Context())
	res, err := s.deps.Accounts.Profile(r.Context(), u)
	if err != nil {
		s.accountError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileUpdateRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.accountError(w, r, err)
		return
	}
	u, _ := auth.UserFromContext(r.Context())
	res, err := s.deps.Accounts.UpdateProfile(r.Context(), u, identity.ProfileFields{
		Name:         req.Name,
		Phone:        req.Phone,
		Organization: req.Organization,
		Bio:          req.Bio,
	})
	if err != nil {
		s.accountError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) deleteAccount(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.UserFromContext(r.Context())
	res, err := s.deps.Accounts.DeleteAccount(r.Context(), u)
	if err != nil {
		s.accountError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// accountError maps gateway and validation failures to their status.
func (s *Server) accountError(w http.ResponseWriter, r *http.Request, err error) {
	var bad *invalidInput
	if errors.As(err, &bad) {
		writeError(w, http.StatusUnprocessableEntity, bad.msg)
		return
	}
	if e, ok := auth.AsError(err); ok {
		if e.Status >= http.StatusInternalServerError {
			s.log.ErrorWith("account request failed", err, map[string]any{"path": r.URL.Path})
		}
		writeError(w, e.Status, e.Detail)
		return
	}
	s.log.ErrorWith("account request failed", err, map[string]any{"path": r.URL.Path})
	writeError(w, statusOf(err), errs.UserMessage(err))
}
