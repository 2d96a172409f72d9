package identity

import (
	"fmt"
	"net/http"
	"time"
)

// User is an account of the identity provider.
type User struct {
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	EmailConfirmedAt *time.Time     `json:"email_confirmed_at,omitempty"`
	UserMetadata     map[string]any `json:"user_metadata,omitempty"`
}

// Confirmed reports whether the user's email address was confirmed.
func (u *User) Confirmed() bool {
	return u != nil && u.EmailConfirmedAt != nil
}

// Session is the result of a password sign-in or an auto-confirmed
// sign-up. AccessToken is empty when no session was opened.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
	User         *User  `json:"user,omitempty"`
}

// Profile is a row of the profiles mirror table.
type Profile struct {
	ID           string     `json:"id"`
	Email        string     `json:"email,omitempty"`
	Name         *string    `json:"name"`
	Phone        *string    `json:"phone"`
	Organization *string    `json:"organization"`
	Bio          *string    `json:"bio"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

// ProfileFields is a partial profile update. Nil fields are left as they are.
type ProfileFields struct {
	Name         *string `json:"name,omitempty"`
	Phone        *string `json:"phone,omitempty"`
	Organization *string `json:"organization,omitempty"`
	Bio          *string `json:"bio,omitempty"`
}

// Empty reports whether no field is set.
func (f ProfileFields) Empty() bool {
	return f.Name == nil && f.Phone == nil && f.Organization == nil && f.Bio == nil
}

// APIError is an error response of the identity provider.
type APIError struct {
	Status  int
	Code    string // error_code, error or PostgREST code
	Message string // msg, error_description or message
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("identity provider %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("identity provider %d: %s", e.Status, e.Message)
}

// Temporary reports whether the provider failed rather than rejected the
// request.
func (e *APIError) Temporary() bool {
	return e.Status >= http.StatusInternalServerError || e.Status == http.StatusTooManyRequests
}
