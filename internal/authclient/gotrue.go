package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/flicky/casa-storefront/internal/model"
)

// GoTrue talks to the hosted auth API under /auth/v1.
type GoTrue struct {
	baseURL string
	apiKey  string
	client  *http.Client
	storage Storage
	log     *slog.Logger
	now     func() time.Time

	// wmu orders session writes so storage sees them in the same order as
	// memory. gen counts writes; a refresh only lands if gen is unchanged.
	wmu     sync.Mutex
	mu      sync.RWMutex
	session *model.Session
	gen     uint64

	lmu       sync.Mutex
	listeners map[int]Listener
	nextID    int
}

func NewGoTrue(projectURL, apiKey string, client *http.Client, storage Storage, log *slog.Logger) *GoTrue {
	if client == nil {
		client = http.DefaultClient
	}
	if storage == nil {
		storage = NewMemoryStorage()
	}
	if log == nil {
		log = slog.Default()
	}
	return &GoTrue{
		baseURL:   strings.TrimRight(projectURL, "/") + "/auth/v1",
		apiKey:    apiKey,
		client:    client,
		storage:   storage,
		log:       log,
		now:       time.Now,
		listeners: make(map[int]Listener),
	}
}

type tokenResponse struct {
	AccessToken  string      `json:"access_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int64       `json:"expires_in"`
	ExpiresAt    int64       `json:"expires_at"`
	RefreshToken string      `json:"refresh_token"`
	User         *model.User `json:"user"`
}

func (g *GoTrue) GetSession(ctx context.Context) (*model.Session, error) {
	s := g.Session()
	if s == nil {
		stored, err := g.storage.Load(ctx)
		if err != nil {
			g.log.Warn("restore session", "error", err)
			return nil, nil
		}
		if stored == nil {
			return nil, nil
		}
		g.mu.Lock()
		if g.session == nil {
			g.session = stored
			g.gen++
		}
		g.mu.Unlock()
		s = stored
	}

	if !s.ExpiresWithin(g.now(), 0) {
		return s, nil
	}
	refreshed, err := g.RefreshSession(ctx)
	if err != nil {
		var aerr *Error
		if errors.As(err, &aerr) && aerr.Status >= 400 && aerr.Status < 500 {
			return nil, nil
		}
		return nil, err
	}
	return refreshed, nil
}

func (g *GoTrue) SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error) {
	var resp tokenResponse
	err := g.post(ctx, "sign in", "/token?grant_type=password", "", map[string]string{
		"email": email, "password": password,
	}, &resp)
	if err != nil {
		return nil, err
	}
	s, err := g.sessionFrom(&resp)
	if err != nil {
		return nil, &Error{Op: "sign in", Message: "invalid token response", Err: err}
	}
	g.setSession(ctx, s)
	g.emit(EventSignedIn, s)
	return s, nil
}

func (g *GoTrue) SignUp(ctx context.Context, email, password string) (*model.User, *model.Session, error) {
	var raw json.RawMessage
	err := g.post(ctx, "sign up", "/signup", "", map[string]string{
		"email": email, "password": password,
	}, &raw)
	if err != nil {
		return nil, nil, err
	}

	var resp tokenResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, nil, &Error{Op: "sign up", Message: "decode response", Err: err}
	}
	if resp.AccessToken == "" {
		// Email confirmation pending: the body is the bare user.
		var u model.User
		if err := json.Unmarshal(raw, &u); err != nil {
			return nil, nil, &Error{Op: "sign up", Message: "decode user", Err: err}
		}
		return &u, nil, nil
	}

	s, err := g.sessionFrom(&resp)
	if err != nil {
		return nil, nil, &Error{Op: "sign up", Message: "invalid token response", Err: err}
	}
	g.setSession(ctx, s)
	g.emit(EventSignedIn, s)
	u := s.User
	return &u, s, nil
}

func (g *GoTrue) SignOut(ctx context.Context) error {
	token := g.AccessToken()
	var err error
	if token != "" {
		err = g.post(ctx, "sign out", "/logout", token, nil, nil)
	}
	g.clearSession(ctx)
	g.emit(EventSignedOut, nil)
	return err
}

func (g *GoTrue) RefreshSession(ctx context.Context) (*model.Session, error) {
	cur, gen := g.current()
	if cur == nil || cur.RefreshToken == "" {
		return nil, &Error{Op: "refresh", Err: ErrNoSession}
	}

	var resp tokenResponse
	err := g.post(ctx, "refresh", "/token?grant_type=refresh_token", "", map[string]string{
		"refresh_token": cur.RefreshToken,
	}, &resp)
	if err != nil {
		var aerr *Error
		if errors.As(err, &aerr) && aerr.Status >= 400 && aerr.Status < 500 {
			// Refresh token revoked elsewhere: treat as an external sign-out,
			// unless the session was already replaced locally.
			if g.replaceIf(ctx, gen, nil) {
				g.emit(EventSignedOut, nil)
			}
		}
		return nil, err
	}

	s, err := g.sessionFrom(&resp)
	if err != nil {
		return nil, &Error{Op: "refresh", Message: "invalid token response", Err: err}
	}
	if s.User.ID == uuid.Nil {
		s.User = cur.User
	}
	if !g.replaceIf(ctx, gen, s) {
		g.log.Info("dropping refreshed tokens for a replaced session", "user_id", cur.User.ID)
		return nil, &Error{Op: "refresh", Err: ErrSessionReplaced}
	}
	g.emit(EventTokenRefreshed, s)
	return s, nil
}

// current returns a copy of the session and the write generation it
// belongs to.
func (g *GoTrue) current() (*model.Session, uint64) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.session == nil {
		return nil, g.gen
	}
	s := *g.session
	return &s, g.gen
}

func (g *GoTrue) Session() *model.Session {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.session == nil {
		return nil
	}
	s := *g.session
	return &s
}

func (g *GoTrue) AccessToken() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.session == nil {
		return ""
	}
	return g.session.AccessToken
}

func (g *GoTrue) OnAuthStateChange(l Listener) func() {
	g.lmu.Lock()
	defer g.lmu.Unlock()
	id := g.nextID
	g.nextID++
	g.listeners[id] = l
	return func() {
		g.lmu.Lock()
		defer g.lmu.Unlock()
		delete(g.listeners, id)
	}
}

func (g *GoTrue) emit(ev Event, s *model.Session) {
	g.lmu.Lock()
	ls := make([]Listener, 0, len(g.listeners))
	for _, l := range g.listeners {
		ls = append(ls, l)
	}
	g.lmu.Unlock()

	for _, l := range ls {
		l(ev, s)
	}
}

func (g *GoTrue) setSession(ctx context.Context, s *model.Session) {
	g.write(ctx, s, nil)
}

func (g *GoTrue) clearSession(ctx context.Context) {
	g.write(ctx, nil, nil)
}

// replaceIf writes s only when no other write happened since gen.
func (g *GoTrue) replaceIf(ctx context.Context, gen uint64, s *model.Session) bool {
	return g.write(ctx, s, &gen)
}

func (g *GoTrue) write(ctx context.Context, s *model.Session, ifGen *uint64) bool {
	g.wmu.Lock()
	defer g.wmu.Unlock()

	g.mu.Lock()
	if ifGen != nil && *ifGen != g.gen {
		g.mu.Unlock()
		return false
	}
	g.session = s
	g.gen++
	g.mu.Unlock()

	if s == nil {
		if err := g.storage.Clear(ctx); err != nil {
			g.log.Warn("clear persisted session", "error", err)
		}
		return true
	}
	if err := g.storage.Save(ctx, s); err != nil {
		g.log.Warn("persist session", "error", err)
	}
	return true
}

// sessionFrom builds a session, taking expiry and identity from the JWT
// claims when the response leaves them out.
func (g *GoTrue) sessionFrom(resp *tokenResponse) (*model.Session, error) {
	if resp.AccessToken == "" {
		return nil, errors.New("missing access token")
	}
	s := &model.Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    resp.TokenType,
	}
	if resp.User != nil {
		s.User = *resp.User
	}

	switch {
	case resp.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(resp.ExpiresAt, 0)
	case resp.ExpiresIn > 0:
		s.ExpiresAt = g.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}

	if s.ExpiresAt.IsZero() || s.User.ID == uuid.Nil {
		claims, err := parseClaims(resp.AccessToken)
		if err != nil {
			return nil, err
		}
		if s.ExpiresAt.IsZero() {
			if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
				s.ExpiresAt = exp.Time
			}
		}
		if s.User.ID == uuid.Nil {
			if sub, err := claims.GetSubject(); err == nil {
				s.User.ID, _ = uuid.Parse(sub)
			}
			if email, ok := claims["email"].(string); ok && s.User.Email == "" {
				s.User.Email = email
			}
		}
	}
	return s, nil
}

// parseClaims reads the token without verifying it. The backend verifies
// every request; the client only needs expiry and subject.
func parseClaims(token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (g *GoTrue) post(ctx context.Context, op, path, bearer string, body, dest any) error {
	var rd io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &Error{Op: op, Message: "encode request", Err: err}
		}
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, rd)
	if err != nil {
		return &Error{Op: op, Message: "build request", Err: err}
	}
	if bearer == "" {
		bearer = g.apiKey
	}
	req.Header.Set("apikey", g.apiKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeAuthError(op, resp)
	}
	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return &Error{Op: op, Message: "decode response", Err: err}
	}
	return nil
}

type authErrorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func decodeAuthError(op string, resp *http.Response) error {
	e := &Error{Op: op, Status: resp.StatusCode}
	var body authErrorBody
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if json.Unmarshal(raw, &body) == nil {
		e.Code = firstNonEmpty(body.ErrorCode, body.Error)
		e.Message = firstNonEmpty(body.Msg, body.ErrorDescription, body.Message)
	}
	if e.Message == "" {
		e.Message = http.StatusText(resp.StatusCode)
	}
	return e
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
