package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/flicky/casa-storefront/internal/authclient"
	"github.com/flicky/casa-storefront/internal/model"
	"github.com/flicky/casa-storefront/internal/rowstore"
)

var ErrPasswordMismatch = errors.New("passwords do not match")

type SessionState int

const (
	StateUnknown SessionState = iota
	StateAuthenticated
	StateAnonymous
)

func (s SessionState) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateAnonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

type SessionSnapshot struct {
	State   SessionState
	User    *model.User
	IsAdmin bool
}

type SignUpRequest struct {
	Email           string
	Password        string
	ConfirmPassword string
}

type SignUpResult struct {
	User *model.User
	// ConfirmationRequired is set when the backend wants the email
	// confirmed before the first sign-in.
	ConfirmationRequired bool
}

// AuthService owns the session state machine. Explicit calls and
// session-change notifications from the auth client are applied one at a
// time under mu.
type AuthService struct {
	client         authclient.Client
	store          rowstore.Store
	authz          *Authorizer
	bootstrapEmail string
	log            *slog.Logger

	mu      sync.Mutex
	state   SessionState
	user    *model.User
	isAdmin bool
	seq     uint64

	// dmu serializes delivery; delivered is the last seq handed out.
	dmu       sync.Mutex
	delivered uint64

	pending     chan struct{}
	done        chan struct{}
	closeOnce   sync.Once
	unsubscribe func()
	obs         observers[SessionSnapshot]
}

func NewAuthService(client authclient.Client, store rowstore.Store, authz *Authorizer, bootstrapEmail string, log *slog.Logger) *AuthService {
	if log == nil {
		log = slog.Default()
	}
	return &AuthService{
		client:         client,
		store:          store,
		authz:          authz,
		bootstrapEmail: normalizeEmail(bootstrapEmail),
		log:            log,
		pending:        make(chan struct{}, 1),
		done:           make(chan struct{}),
	}
}

// Start resolves the initial session and begins listening for session
// changes. It returns once the state has left Unknown.
func (s *AuthService) Start(ctx context.Context) {
	s.unsubscribe = s.client.OnAuthStateChange(func(ev authclient.Event, _ *model.Session) {
		s.log.Debug("auth state changed", "event", ev)
		select {
		case s.pending <- struct{}{}:
		default:
			// A resync is already queued and will observe this change.
		}
	})
	go s.listen()

	s.mu.Lock()
	sess, err := s.client.GetSession(ctx)
	if err != nil {
		s.log.Error("get session", "error", err)
		sess = nil
	}
	s.apply(ctx, sess)
	seq, snap := s.transitionLocked()
	s.mu.Unlock()

	s.deliver(seq, snap)
}

// Close stops the listener.
func (s *AuthService) Close() {
	s.closeOnce.Do(func() {
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
		close(s.done)
	})
}

func (s *AuthService) listen() {
	for {
		select {
		case <-s.done:
			return
		case <-s.pending:
			s.resync()
		}
	}
}

// resync re-reads the client's current session rather than trusting the
// event payload, so a late event cannot undo a newer transition.
func (s *AuthService) resync() {
	ctx := context.Background()

	s.mu.Lock()
	before := s.snapshotLocked()
	s.apply(ctx, s.client.Session())
	after := s.snapshotLocked()
	if sameSnapshot(before, after) {
		s.mu.Unlock()
		return
	}
	seq, snap := s.transitionLocked()
	s.mu.Unlock()

	s.deliver(seq, snap)
}

func (s *AuthService) SignIn(ctx context.Context, email, password string) (SessionSnapshot, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return s.Snapshot(), invalid("email", "please fill in all fields")
	}

	s.mu.Lock()
	sess, err := s.client.SignInWithPassword(ctx, email, password)
	if err != nil {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.log.Warn("sign in failed", "email", email, "error", err)
		return snap, fmt.Errorf("sign in: %w", err)
	}
	s.apply(ctx, sess)
	seq, snap := s.transitionLocked()
	s.mu.Unlock()

	s.log.Info("signed in", "user_id", sess.User.ID, "admin", snap.IsAdmin)
	s.deliver(seq, snap)
	return snap, nil
}

func (s *AuthService) SignUp(ctx context.Context, req SignUpRequest) (*SignUpResult, error) {
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, invalid("email", "please fill in all fields")
	}
	if req.Password != req.ConfirmPassword {
		return nil, &ValidationError{Field: "confirm_password", Message: ErrPasswordMismatch.Error()}
	}

	s.mu.Lock()
	user, sess, err := s.client.SignUp(ctx, email, req.Password)
	if err != nil {
		s.mu.Unlock()
		s.log.Warn("sign up failed", "email", email, "error", err)
		return nil, fmt.Errorf("sign up: %w", err)
	}

	if user != nil && s.bootstrapEmail != "" && email == s.bootstrapEmail {
		s.grantBootstrapAdmin(ctx, user.ID)
	}

	var seq uint64
	var snap SessionSnapshot
	if sess != nil {
		s.apply(ctx, sess)
		seq, snap = s.transitionLocked()
	}
	s.mu.Unlock()

	if sess != nil {
		s.deliver(seq, snap)
	}
	res := &SignUpResult{User: user, ConfirmationRequired: sess == nil}
	if user != nil && user.EmailConfirmedAt == nil {
		s.log.Info("user created, email not confirmed", "user_id", user.ID)
	}
	return res, nil
}

// SignOut always ends Anonymous. A failed remote sign-out is returned after
// the local state has been cleared.
func (s *AuthService) SignOut(ctx context.Context) error {
	s.mu.Lock()
	err := s.client.SignOut(ctx)
	s.apply(ctx, nil)
	seq, snap := s.transitionLocked()
	s.mu.Unlock()

	s.deliver(seq, snap)
	if err != nil {
		s.log.Warn("remote sign out failed", "error", err)
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

func (s *AuthService) Snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// CurrentUser returns nil unless the state is Authenticated.
func (s *AuthService) CurrentUser() *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAuthenticated || s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// Subscribe registers fn for session changes. Deliveries are serialized and
// in transition order; a snapshot overtaken by a newer one is skipped. fn
// must not call SignIn, SignUp or SignOut.
func (s *AuthService) Subscribe(fn func(SessionSnapshot)) func() {
	return s.obs.subscribe(fn)
}

// apply must be called with mu held.
func (s *AuthService) apply(ctx context.Context, sess *model.Session) {
	if sess == nil || sess.User.ID == uuid.Nil {
		s.state = StateAnonymous
		s.user = nil
		s.isAdmin = false
		return
	}
	if s.state == StateAuthenticated && s.user != nil && s.user.ID == sess.User.ID {
		u := sess.User
		s.user = &u
		return
	}

	u := sess.User
	s.state = StateAuthenticated
	s.user = &u
	s.isAdmin = s.resolveAdmin(ctx, u.ID)
}

func (s *AuthService) resolveAdmin(ctx context.Context, userID uuid.UUID) bool {
	caps, err := s.authz.Capabilities(ctx, userID)
	if err != nil {
		s.log.Error("check admin status", "user_id", userID, "error", err)
		return false
	}
	return caps.IsAdmin()
}

func (s *AuthService) grantBootstrapAdmin(ctx context.Context, userID uuid.UUID) {
	row := model.AdminUser{
		ID:          userID,
		Role:        model.RoleSuperAdmin,
		Permissions: model.AllPermissions,
		IsActive:    true,
	}
	if err := s.store.Upsert(ctx, model.TableAdminUsers, adminUpsert(row), nil); err != nil {
		s.log.Error("grant bootstrap admin", "user_id", userID, "error", err)
		return
	}
	s.log.Info("bootstrap admin granted", "user_id", userID)
}

type adminUpsertRow struct {
	ID          uuid.UUID `json:"id"`
	Role        string    `json:"role"`
	Permissions []string  `json:"permissions"`
	IsActive    bool      `json:"is_active"`
}

func adminUpsert(a model.AdminUser) adminUpsertRow {
	return adminUpsertRow{ID: a.ID, Role: a.Role, Permissions: a.Permissions, IsActive: a.IsActive}
}

// transitionLocked stamps the current state with the next sequence number.
func (s *AuthService) transitionLocked() (uint64, SessionSnapshot) {
	s.seq++
	return s.seq, s.snapshotLocked()
}

func (s *AuthService) deliver(seq uint64, snap SessionSnapshot) {
	s.dmu.Lock()
	defer s.dmu.Unlock()
	if seq <= s.delivered {
		s.log.Debug("skipping superseded session snapshot", "seq", seq, "state", snap.State)
		return
	}
	s.delivered = seq
	s.obs.notify(snap)
}

func (s *AuthService) snapshotLocked() SessionSnapshot {
	snap := SessionSnapshot{State: s.state, IsAdmin: s.isAdmin}
	if s.user != nil {
		u := *s.user
		snap.User = &u
	}
	return snap
}

func sameSnapshot(a, b SessionSnapshot) bool {
	if a.State != b.State || a.IsAdmin != b.IsAdmin {
		return false
	}
	if (a.User == nil) != (b.User == nil) {
		return false
	}
	return a.User == nil || a.User.ID == b.User.ID
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
