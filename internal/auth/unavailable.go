package auth

import (
	"context"

	"github.com/koustreak/saudedash/internal/identity"
)

// Unavailable returns a Provider that fails every call with err. It stands
// in when the identity provider is not configured so the reports can still
// be served.
func Unavailable(err error) Provider {
	return unavailable{err: err}
}

type unavailable struct {
	err error
}

func (u unavailable) SignInWithPassword(context.Context, string, string) (*identity.Session, error) {
	return nil, u.err
}

func (u unavailable) SignUp(context.Context, identity.SignUpParams) (*identity.Session, error) {
	return nil, u.err
}

func (u unavailable) RecoverPassword(context.Context, string, string) error { return u.err }

func (u unavailable) GetUser(context.Context, string) (*identity.User, error) { return nil, u.err }

func (u unavailable) GetProfile(context.Context, string) (*identity.Profile, error) {
	return nil, u.err
}

func (u unavailable) InsertProfile(context.Context, string, string, string) error { return u.err }

func (u unavailable) UpdateProfile(context.Context, string, identity.ProfileFields) (*identity.Profile, error) {
	return nil, u.err
}

func (u unavailable) DeleteProfile(context.Context, string) error { return u.err }
