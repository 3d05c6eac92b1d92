// Package authclient is the hosted auth API: password sign-in and sign-up,
// session persistence, token refresh and session-change notifications.
package authclient

import (
	"context"
	"errors"
	"fmt"

	"github.com/flicky/casa-storefront/internal/model"
)

var (
	ErrNotConfigured = errors.New("auth backend not configured")
	ErrNoSession     = errors.New("no session")
	// ErrSessionReplaced is returned by RefreshSession when the session it
	// started from was signed out or replaced before the response arrived.
	ErrSessionReplaced = errors.New("session replaced during refresh")
)

type Event string

const (
	EventSignedIn       Event = "SIGNED_IN"
	EventSignedOut      Event = "SIGNED_OUT"
	EventTokenRefreshed Event = "TOKEN_REFRESHED"
)

// Listener is called after the client's session changed. The session
// argument is what the client held when the event fired; it may already be
// stale by the time the listener runs.
type Listener func(Event, *model.Session)

type Client interface {
	// GetSession restores the persisted session, refreshing it when the
	// access token has expired. It returns nil without error when nobody
	// is signed in.
	GetSession(ctx context.Context) (*model.Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error)
	// SignUp returns a nil session when the backend requires email
	// confirmation before the first sign-in.
	SignUp(ctx context.Context, email, password string) (*model.User, *model.Session, error)
	// SignOut always drops the local session, even when the remote call
	// fails; the remote error is still returned.
	SignOut(ctx context.Context) error
	RefreshSession(ctx context.Context) (*model.Session, error)
	// Session is the current session without I/O.
	Session() *model.Session
	AccessToken() string
	OnAuthStateChange(l Listener) (unsubscribe func())
}

type Error struct {
	Op      string
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("auth %s: %s (status %d)", e.Op, msg, e.Status)
	}
	return fmt.Sprintf("auth %s: %s", e.Op, msg)
}

func (e *Error) Unwrap() error { return e.Err }
