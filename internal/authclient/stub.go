package authclient

import (
	"context"

	"github.com/flicky/casa-storefront/internal/model"
)

// Stub is used when backend credentials are missing: nobody can sign in,
// and signing out always succeeds.
type Stub struct{}

func (Stub) GetSession(context.Context) (*model.Session, error) { return nil, nil }

func (Stub) SignInWithPassword(context.Context, string, string) (*model.Session, error) {
	return nil, &Error{Op: "sign in", Err: ErrNotConfigured}
}

func (Stub) SignUp(context.Context, string, string) (*model.User, *model.Session, error) {
	return nil, nil, &Error{Op: "sign up", Err: ErrNotConfigured}
}

func (Stub) SignOut(context.Context) error { return nil }

func (Stub) RefreshSession(context.Context) (*model.Session, error) {
	return nil, &Error{Op: "refresh", Err: ErrNoSession}
}

func (Stub) Session() *model.Session { return nil }

func (Stub) AccessToken() string { return "" }

func (Stub) OnAuthStateChange(Listener) func() { return func() {} }
