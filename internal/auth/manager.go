// Package auth owns the access/refresh token pair of the signed-in user and
// transparently refreshes it when the backend rejects an expired access
// token.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/iliyamo/qr-attendance/internal/model"
	"github.com/iliyamo/qr-attendance/internal/utils"
)

var (
	// ErrNoSession is returned by Login for an incomplete token pair and by
	// Refresh when there is no refresh token to exchange.
	ErrNoSession = errors.New("auth: no session")
	// ErrRefreshFailed ends the session: tokens have been cleared and the
	// user sent to the login route.
	ErrRefreshFailed = errors.New("auth: session expired, sign in again")
)

// State is the token lifecycle state.
type State int

const (
	NoSession State = iota
	HasAccessToken
	Refreshing
)

func (s State) String() string {
	switch s {
	case HasAccessToken:
		return "has_access_token"
	case Refreshing:
		return "refreshing"
	default:
		return "no_session"
	}
}

// Options configures a Manager.
//
// Fields:
//
//	BaseURL     – REST base, with trailing slash.
//	RefreshPath – relative path of the refresh endpoint.
//	ExemptPaths – path fragments whose 401s never trigger a refresh (login,
//	              refresh). Defaults to the login and refresh paths.
//	LoginRoute  – where Navigate sends the user after a failed refresh.
//	Navigate    – called once per lost session.
//	HTTPClient  – transport; http.DefaultClient when nil.
type Options struct {
	BaseURL     string
	RefreshPath string
	ExemptPaths []string
	LoginRoute  string
	Navigate    func(route string)
	HTTPClient  *http.Client
	Logger      *zap.Logger
}

// Auth endpoints, relative to the REST base.
const (
	DefaultLoginPath   = "api/usuarios/login/"
	DefaultRefreshPath = "api/usuarios/refresh-token/"
	DefaultLogoutPath  = "api/usuarios/logout/"
)

// Manager attaches the current access token to requests and, when one is
// rejected as expired, refreshes it and replays the request exactly once.
// Concurrent refreshes collapse into one exchange.
type Manager struct {
	store      TokenStore
	client     *http.Client
	refreshURL string
	exempt     []string
	loginRoute string
	navigate   func(string)
	log        *zap.Logger

	group singleflight.Group

	mu         sync.Mutex
	state      State
	redirected bool
}

// NewManager builds a Manager over store.
func NewManager(store TokenStore, opts Options) *Manager {
	if opts.RefreshPath == "" {
		opts.RefreshPath = DefaultRefreshPath
	}
	if len(opts.ExemptPaths) == 0 {
		opts.ExemptPaths = []string{DefaultLoginPath, opts.RefreshPath}
	}
	if opts.LoginRoute == "" {
		opts.LoginRoute = "/login"
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	exempt := make([]string, 0, len(opts.ExemptPaths))
	for _, p := range opts.ExemptPaths {
		exempt = append(exempt, strings.Trim(p, "/"))
	}
	return &Manager{
		store:      store,
		client:     opts.HTTPClient,
		refreshURL: opts.BaseURL + strings.TrimPrefix(opts.RefreshPath, "/"),
		exempt:     exempt,
		loginRoute: opts.LoginRoute,
		navigate:   opts.Navigate,
		log:        utils.OrNop(opts.Logger),
	}
}

// State reports the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// Restore reads a persisted session, for stores that outlive the process.
func (m *Manager) Restore(ctx context.Context) (State, error) {
	tp, err := m.store.Load(ctx)
	if err != nil {
		return NoSession, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if tp.AccessToken != "" {
		m.state = HasAccessToken
		m.redirected = false
	} else {
		m.state = NoSession
	}
	return m.state, nil
}

// Login stores a freshly issued pair and starts a new session.
func (m *Manager) Login(ctx context.Context, tp model.TokenPair) error {
	if tp.AccessToken == "" || tp.RefreshToken == "" {
		return ErrNoSession
	}
	if err := m.store.Save(ctx, tp); err != nil {
		return err
	}
	m.mu.Lock()
	m.state = HasAccessToken
	m.redirected = false
	m.mu.Unlock()
	return nil
}

// Logout clears local tokens.  It never navigates; the caller chose to
// leave.
func (m *Manager) Logout(ctx context.Context) error {
	m.setState(NoSession)
	return m.store.Clear(ctx)
}

// Tokens returns the stored pair.
func (m *Manager) Tokens(ctx context.Context) (model.TokenPair, error) {
	return m.store.Load(ctx)
}

// Do sends req with the current bearer token.  A 401, or a 403 whose body
// reports an expired or invalid token, triggers one refresh and one replay
// unless req targets an exempt path.  When the refresh fails the session is
// ended and ErrRefreshFailed is returned.
func (m *Manager) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	exempt := m.isExempt(req)

	sent, err := m.attach(ctx, req, exempt)
	if err != nil {
		return nil, err
	}
	resp, err := m.client.Do(req)
	if err != nil || exempt {
		return resp, err
	}
	if !tokenRejected(resp) {
		return resp, nil
	}
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		m.log.Warn("cannot replay request without GetBody", zap.String("path", req.URL.Path))
		return resp, nil
	}
	drain(resp)

	m.log.Debug("access token rejected, refreshing", zap.String("path", req.URL.Path), zap.Int("status", resp.StatusCode))
	if _, err := m.refresh(ctx, sent); err != nil {
		return nil, err
	}

	retry := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		retry.Body = body
	}
	if _, err := m.attach(ctx, retry, false); err != nil {
		return nil, err
	}
	return m.client.Do(retry)
}

// Refresh exchanges the refresh token for a new access token.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	tp, err := m.store.Load(ctx)
	if err != nil {
		return "", err
	}
	return m.refresh(ctx, tp.AccessToken)
}

// attach sets the Authorization header from the store at send time.
func (m *Manager) attach(ctx context.Context, req *http.Request, exempt bool) (string, error) {
	req.Header.Del("Authorization")
	if exempt {
		return "", nil
	}
	tp, err := m.store.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("load tokens: %w", err)
	}
	if tp.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+tp.AccessToken)
	}
	return tp.AccessToken, nil
}

// refresh renews the access token that was sent as rejected.  If the stored
// token already differs, another caller refreshed it and that value is
// reused.  Concurrent callers share a single exchange.
func (m *Manager) refresh(ctx context.Context, rejected string) (string, error) {
	v, err, shared := m.group.Do("refresh", func() (interface{}, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		return m.exchange(rctx, rejected)
	})
	if shared {
		m.log.Debug("joined in-flight refresh")
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *Manager) exchange(ctx context.Context, rejected string) (string, error) {
	tp, err := m.store.Load(ctx)
	if err != nil {
		return "", m.endSession(ctx, err)
	}
	if tp.AccessToken != "" && tp.AccessToken != rejected {
		return tp.AccessToken, nil
	}
	if tp.RefreshToken == "" {
		return "", m.endSession(ctx, ErrNoSession)
	}

	m.setState(Refreshing)
	access, rotated, err := m.postRefresh(ctx, tp.RefreshToken)
	if err != nil {
		return "", m.endSession(ctx, err)
	}
	swapped, err := m.store.SwapAccess(ctx, tp.AccessToken, access)
	if err != nil {
		return "", m.endSession(ctx, err)
	}
	if !swapped {
		// Another writer replaced the pair meanwhile; its token wins.
		cur, err := m.store.Load(ctx)
		if err != nil {
			return "", m.endSession(ctx, err)
		}
		m.log.Debug("access token changed during refresh, keeping stored token")
		if cur.AccessToken == "" {
			return "", ErrNoSession
		}
		m.setState(HasAccessToken)
		return cur.AccessToken, nil
	}
	if rotated != "" {
		if err := m.store.Save(ctx, model.TokenPair{AccessToken: access, RefreshToken: rotated}); err != nil {
			return "", m.endSession(ctx, err)
		}
	}
	m.setState(HasAccessToken)
	m.log.Debug("access token refreshed")
	return access, nil
}

func (m *Manager) postRefresh(ctx context.Context, refreshToken string) (access, rotated string, err error) {
	body, _ := json.Marshal(map[string]string{"refresh_token": refreshToken})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.refreshURL, bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := m.client.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return "", "", fmt.Errorf("refresh rejected with status %d", resp.StatusCode)
	}
	var out model.TokenPair
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", "", fmt.Errorf("decode refresh response: %w", err)
	}
	if out.AccessToken == "" {
		return "", "", errors.New("refresh response without access_token")
	}
	return out.AccessToken, out.RefreshToken, nil
}

// endSession is the terminal transition: tokens are cleared and the login
// route is opened at most once per session.
func (m *Manager) endSession(ctx context.Context, cause error) error {
	if err := m.store.Clear(ctx); err != nil {
		m.log.Error("clear tokens", zap.Error(err))
	}
	m.mu.Lock()
	m.state = NoSession
	first := !m.redirected
	m.redirected = true
	m.mu.Unlock()

	m.log.Warn("token refresh failed, session ended", zap.Error(cause))
	if first && m.navigate != nil {
		m.navigate(m.loginRoute)
	}
	return fmt.Errorf("%w: %v", ErrRefreshFailed, cause)
}

func (m *Manager) isExempt(req *http.Request) bool {
	p := strings.Trim(req.URL.Path, "/")
	for _, e := range m.exempt {
		if e != "" && strings.Contains(p, e) {
			return true
		}
	}
	return false
}

// tokenRejected reports whether resp means the bearer token was expired or
// invalid.  For 403 the body is inspected and then restored for the caller.
func tokenRejected(resp *http.Response) bool {
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return true
	case http.StatusForbidden:
	default:
		return false
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(b))
	if err != nil {
		return false
	}
	var body struct {
		Code   string `json:"code"`
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if json.Unmarshal(b, &body) != nil {
		return false
	}
	if body.Code == "token_not_valid" {
		return true
	}
	text := strings.ToLower(body.Detail + " " + body.Error)
	return strings.Contains(text, "expired") || strings.Contains(text, "expirado")
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
