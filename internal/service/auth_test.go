package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flicky/casa-storefront/internal/authclient"
	"github.com/flicky/casa-storefront/internal/model"
	"github.com/flicky/casa-storefront/internal/rowstore/rowstoretest"
)

// fakeAuth mimics the hosted auth client: listeners are invoked
// synchronously from inside the mutating call.
type fakeAuth struct {
	mu        sync.Mutex
	session   *model.Session
	listeners map[int]authclient.Listener
	next      int

	signInErr  error
	signUpErr  error
	signOutErr error
	// signUpSession makes SignUp return a session; otherwise confirmation is pending.
	signUpSession bool
	calls         int
}

func newFakeAuth() *fakeAuth {
	return &fakeAuth{listeners: make(map[int]authclient.Listener)}
}

func sessionFor(email string) *model.Session {
	return &model.Session{
		AccessToken: "access", RefreshToken: "refresh",
		ExpiresAt: time.Now().Add(time.Hour),
		User:      model.User{ID: uuid.New(), Email: email},
	}
}

func (f *fakeAuth) GetSession(context.Context) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session, nil
}

func (f *fakeAuth) SignInWithPassword(_ context.Context, email, _ string) (*model.Session, error) {
	f.mu.Lock()
	f.calls++
	if f.signInErr != nil {
		f.mu.Unlock()
		return nil, f.signInErr
	}
	f.session = sessionFor(email)
	s := f.session
	f.mu.Unlock()
	f.emit(authclient.EventSignedIn, s)
	return s, nil
}

func (f *fakeAuth) SignUp(_ context.Context, email, _ string) (*model.User, *model.Session, error) {
	f.mu.Lock()
	f.calls++
	if f.signUpErr != nil {
		f.mu.Unlock()
		return nil, nil, f.signUpErr
	}
	s := sessionFor(email)
	user := s.User
	if !f.signUpSession {
		f.mu.Unlock()
		return &user, nil, nil
	}
	f.session = s
	f.mu.Unlock()
	f.emit(authclient.EventSignedIn, s)
	return &user, s, nil
}

func (f *fakeAuth) SignOut(context.Context) error {
	f.mu.Lock()
	f.calls++
	f.session = nil
	err := f.signOutErr
	f.mu.Unlock()
	f.emit(authclient.EventSignedOut, nil)
	return err
}

func (f *fakeAuth) RefreshSession(context.Context) (*model.Session, error) {
	return f.Session(), nil
}

func (f *fakeAuth) Session() *model.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session
}

func (f *fakeAuth) AccessToken() string {
	if s := f.Session(); s != nil {
		return s.AccessToken
	}
	return ""
}

func (f *fakeAuth) OnAuthStateChange(l authclient.Listener) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.listeners[id] = l
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.listeners, id)
	}
}

func (f *fakeAuth) emit(ev authclient.Event, s *model.Session) {
	f.mu.Lock()
	ls := make([]authclient.Listener, 0, len(f.listeners))
	for _, l := range f.listeners {
		ls = append(ls, l)
	}
	f.mu.Unlock()
	for _, l := range ls {
		l(ev, s)
	}
}

func newTestAuth(t *testing.T, client *fakeAuth, bootstrap string) (*AuthService, *rowstoretest.Store) {
	t.Helper()
	store := rowstoretest.New()
	svc := NewAuthService(client, store, NewAuthorizer(store), bootstrap, nil)
	svc.Start(context.Background())
	t.Cleanup(svc.Close)
	return svc, store
}

func TestAuthService_StartAnonymous(t *testing.T) {
	svc, _ := newTestAuth(t, newFakeAuth(), "")
	snap := svc.Snapshot()
	assert.Equal(t, StateAnonymous, snap.State)
	assert.Nil(t, snap.User)
	assert.Nil(t, svc.CurrentUser())
}

func TestAuthService_StartRestoresSessionAndAdmin(t *testing.T) {
	client := newFakeAuth()
	client.session = sessionFor("owner@casa.test")
	store := rowstoretest.New()
	store.Seed(model.TableAdminUsers, model.AdminUser{
		ID: client.session.User.ID, Role: model.RoleSuperAdmin, IsActive: true,
	})

	svc := NewAuthService(client, store, NewAuthorizer(store), "", nil)
	svc.Start(context.Background())
	defer svc.Close()

	snap := svc.Snapshot()
	assert.Equal(t, StateAuthenticated, snap.State)
	assert.True(t, snap.IsAdmin)
	assert.Equal(t, "owner@casa.test", svc.CurrentUser().Email)
}

func TestAuthService_SignInNormalizesEmail(t *testing.T) {
	svc, _ := newTestAuth(t, newFakeAuth(), "")

	snap, err := svc.SignIn(context.Background(), "  Ana@Example.COM ", "secret")
	require.NoError(t, err)
	assert.Equal(t, StateAuthenticated, snap.State)
	assert.Equal(t, "ana@example.com", snap.User.Email)
	assert.False(t, snap.IsAdmin)
}

func TestAuthService_SignInValidation(t *testing.T) {
	client := newFakeAuth()
	svc, _ := newTestAuth(t, client, "")

	_, err := svc.SignIn(context.Background(), " ", "secret")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Zero(t, client.calls)
}

func TestAuthService_SignInFailureKeepsState(t *testing.T) {
	client := newFakeAuth()
	client.signInErr = &authclient.Error{Op: "sign in", Status: 400, Message: "Invalid login credentials"}
	svc, _ := newTestAuth(t, client, "")

	snap, err := svc.SignIn(context.Background(), "ana@example.com", "wrong")
	var aerr *authclient.Error
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, StateAnonymous, snap.State)
	assert.Equal(t, StateAnonymous, svc.Snapshot().State)
}

func TestAuthService_SignUpPasswordMismatch(t *testing.T) {
	client := newFakeAuth()
	svc, _ := newTestAuth(t, client, "")

	_, err := svc.SignUp(context.Background(), SignUpRequest{
		Email: "ana@example.com", Password: "secret1", ConfirmPassword: "secret2",
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "confirm_password", verr.Field)
	assert.Zero(t, client.calls)
}

func TestAuthService_SignUpConfirmationPending(t *testing.T) {
	svc, _ := newTestAuth(t, newFakeAuth(), "")

	res, err := svc.SignUp(context.Background(), SignUpRequest{
		Email: "ana@example.com", Password: "secret", ConfirmPassword: "secret",
	})
	require.NoError(t, err)
	assert.True(t, res.ConfirmationRequired)
	assert.Equal(t, StateAnonymous, svc.Snapshot().State)
}

func TestAuthService_SignUpBootstrapAdmin(t *testing.T) {
	client := newFakeAuth()
	client.signUpSession = true
	svc, store := newTestAuth(t, client, "Owner@Casa.test")

	res, err := svc.SignUp(context.Background(), SignUpRequest{
		Email: "owner@casa.test", Password: "secret", ConfirmPassword: "secret",
	})
	require.NoError(t, err)
	assert.False(t, res.ConfirmationRequired)

	admins := store.Rows(model.TableAdminUsers)
	require.Len(t, admins, 1)
	assert.Equal(t, model.RoleSuperAdmin, admins[0]["role"])
	assert.Equal(t, res.User.ID.String(), admins[0]["id"])

	snap := svc.Snapshot()
	assert.Equal(t, StateAuthenticated, snap.State)
	assert.True(t, snap.IsAdmin)
}

func TestAuthService_SignUpBootstrapFailureIsLogged(t *testing.T) {
	client := newFakeAuth()
	client.signUpSession = true
	svc, store := newTestAuth(t, client, "owner@casa.test")
	store.FailOn("upsert", model.TableAdminUsers, errors.New("permission denied"))

	_, err := svc.SignUp(context.Background(), SignUpRequest{
		Email: "owner@casa.test", Password: "secret", ConfirmPassword: "secret",
	})
	require.NoError(t, err)
	assert.False(t, svc.Snapshot().IsAdmin)
}

func TestAuthService_SignUpOtherEmailNotAdmin(t *testing.T) {
	client := newFakeAuth()
	client.signUpSession = true
	svc, store := newTestAuth(t, client, "owner@casa.test")

	_, err := svc.SignUp(context.Background(), SignUpRequest{
		Email: "guest@casa.test", Password: "secret", ConfirmPassword: "secret",
	})
	require.NoError(t, err)
	assert.Empty(t, store.Rows(model.TableAdminUsers))
}

func TestAuthService_SignOutAlwaysAnonymous(t *testing.T) {
	client := newFakeAuth()
	svc, _ := newTestAuth(t, client, "")
	ctx := context.Background()

	_, err := svc.SignIn(ctx, "ana@example.com", "secret")
	require.NoError(t, err)

	client.signOutErr = errors.New("network unreachable")
	err = svc.SignOut(ctx)
	assert.Error(t, err)

	snap := svc.Snapshot()
	assert.Equal(t, StateAnonymous, snap.State)
	assert.False(t, snap.IsAdmin)
	assert.Nil(t, svc.CurrentUser())
}

func TestAuthService_ListenerFollowsClient(t *testing.T) {
	client := newFakeAuth()
	svc, _ := newTestAuth(t, client, "")

	changes := make(chan SessionSnapshot, 4)
	svc.Subscribe(func(s SessionSnapshot) { changes <- s })

	// A session change made outside the service, e.g. a token refresh that
	// found the session revoked.
	_, err := client.SignInWithPassword(context.Background(), "ana@example.com", "secret")
	require.NoError(t, err)

	select {
	case snap := <-changes:
		assert.Equal(t, StateAuthenticated, snap.State)
	case <-time.After(2 * time.Second):
		t.Fatal("no session change observed")
	}

	require.NoError(t, client.SignOut(context.Background()))
	require.Eventually(t, func() bool {
		return svc.Snapshot().State == StateAnonymous
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAuthService_SupersededSnapshotIsSkipped(t *testing.T) {
	client := newFakeAuth()
	svc, _ := newTestAuth(t, client, "")
	ctx := context.Background()

	_, err := svc.SignIn(ctx, "ana@example.com", "secret")
	require.NoError(t, err)

	var mu sync.Mutex
	var got []SessionState
	svc.Subscribe(func(s SessionSnapshot) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, s.State)
	})

	// An authenticated snapshot taken by the listener, delivered only after
	// a sign-out has gone through.
	svc.mu.Lock()
	staleSeq, stale := svc.transitionLocked()
	svc.mu.Unlock()
	require.Equal(t, StateAuthenticated, stale.State)

	require.NoError(t, svc.SignOut(ctx))
	svc.deliver(staleSeq, stale)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []SessionState{StateAnonymous}, got)
}

func TestAuthService_ConcurrentTransitionsDeliverFinalState(t *testing.T) {
	client := newFakeAuth()
	svc, _ := newTestAuth(t, client, "")
	ctx := context.Background()

	var mu sync.Mutex
	var last SessionState
	svc.Subscribe(func(s SessionSnapshot) {
		mu.Lock()
		defer mu.Unlock()
		last = s.State
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if (i+j)%2 == 0 {
					_, _ = svc.SignIn(ctx, fmt.Sprintf("user%d@example.com", i), "secret")
				} else {
					_ = svc.SignOut(ctx)
				}
			}
		}(i)
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return last == svc.Snapshot().State
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAuthService_SignOutWinsOverInflightRefresh(t *testing.T) {
	userID := uuid.New()
	entered := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/auth/v1/logout":
			w.WriteHeader(http.StatusNoContent)
			return
		case r.URL.Query().Get("grant_type") == "refresh_token":
			close(entered)
			<-release
		}
		_, _ = fmt.Fprintf(w, `{"access_token":"access","token_type":"bearer","expires_at":%d,"refresh_token":"refresh","user":{"id":%q,"email":"ana@example.com"}}`,
			time.Now().Add(time.Hour).Unix(), userID)
	}))
	t.Cleanup(srv.Close)

	client := authclient.NewGoTrue(srv.URL, "anon-key-0123456789", srv.Client(), nil, nil)
	store := rowstoretest.New()
	svc := NewAuthService(client, store, NewAuthorizer(store), "", nil)
	ctx := context.Background()
	svc.Start(ctx)
	t.Cleanup(svc.Close)

	_, err := svc.SignIn(ctx, "ana@example.com", "secret")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := client.RefreshSession(ctx)
		done <- err
	}()
	<-entered
	require.NoError(t, svc.SignOut(ctx))
	close(release)

	assert.ErrorIs(t, <-done, authclient.ErrSessionReplaced)
	assert.Nil(t, client.Session())
	assert.Never(t, func() bool {
		return svc.Snapshot().State != StateAnonymous
	}, 200*time.Millisecond, 10*time.Millisecond)
}

func TestAuthorizer_Require(t *testing.T) {
	store := rowstoretest.New()
	authz := NewAuthorizer(store)
	ctx := context.Background()

	editor := uuid.New()
	store.Seed(model.TableAdminUsers, model.AdminUser{
		ID: editor, Role: "editor", Permissions: []string{model.PermProductsRead}, IsActive: true,
	})
	retired := uuid.New()
	store.Seed(model.TableAdminUsers, model.AdminUser{ID: retired, Role: model.RoleSuperAdmin, IsActive: false})

	assert.NoError(t, authz.Require(ctx, editor, model.PermProductsRead))
	assert.ErrorIs(t, authz.Require(ctx, editor, model.PermProductsWrite), ErrForbidden)
	assert.ErrorIs(t, authz.Require(ctx, retired, model.PermProductsRead), ErrForbidden)
	assert.ErrorIs(t, authz.Require(ctx, uuid.New(), model.PermProductsRead), ErrForbidden)

	store.FailOn("select", model.TableAdminUsers, errors.New("timeout"))
	err := authz.Require(ctx, editor, model.PermProductsRead)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrForbidden)
}
