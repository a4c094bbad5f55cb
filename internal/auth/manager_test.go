package auth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/iliyamo/qr-attendance/internal/model"
)

// backend is a fake REST server whose protected endpoint accepts only the
// access token in valid.
type backend struct {
	srv          *httptest.Server
	valid        atomic.Value // string accepted by the protected endpoint
	issue        atomic.Value // string handed out by the refresh endpoint
	refreshCalls atomic.Int32
	protected    atomic.Int32
	refreshMode  atomic.Int32 // 0 ok, 1 status 500, 2 drop connection
	bodies       []string
	mu           sync.Mutex
	forbidBody   string
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{}
	b.valid.Store("new-access")
	b.issue.Store("new-access")
	mux := http.NewServeMux()
	mux.HandleFunc("/api/usuarios/refresh-token/", func(w http.ResponseWriter, r *http.Request) {
		b.refreshCalls.Add(1)
		switch b.refreshMode.Load() {
		case 1:
			w.WriteHeader(http.StatusInternalServerError)
			return
		case 2:
			panic(http.ErrAbortHandler)
		}
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in["refresh_token"] != "refresh-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": b.issue.Load().(string)})
	})
	mux.HandleFunc("/api/usuarios/login/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/api/asistencia/asistencias/", func(w http.ResponseWriter, r *http.Request) {
		b.protected.Add(1)
		body, _ := io.ReadAll(r.Body)
		b.mu.Lock()
		b.bodies = append(b.bodies, string(body))
		forbid := b.forbidBody
		b.mu.Unlock()
		if r.Header.Get("Authorization") != "Bearer "+b.valid.Load().(string) {
			if forbid != "" {
				w.WriteHeader(http.StatusForbidden)
				_, _ = io.WriteString(w, forbid)
				return
			}
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"code":"token_not_valid"}`)
			return
		}
		_, _ = io.WriteString(w, `[]`)
	})
	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

type navRecorder struct {
	mu     sync.Mutex
	routes []string
}

func (n *navRecorder) navigate(r string) {
	n.mu.Lock()
	n.routes = append(n.routes, r)
	n.mu.Unlock()
}

func (n *navRecorder) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.routes)
}

func newManager(t *testing.T, b *backend, nav *navRecorder) (*Manager, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	m := NewManager(store, Options{
		BaseURL:    b.srv.URL + "/",
		Navigate:   nav.navigate,
		HTTPClient: b.srv.Client(),
	})
	if err := m.Login(context.Background(), model.TokenPair{AccessToken: "old-access", RefreshToken: "refresh-1"}); err != nil {
		t.Fatal(err)
	}
	return m, store
}

func get(t *testing.T, m *Manager, url string) (*http.Response, error) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	return m.Do(req)
}

func TestRefreshAndReplayOnce(t *testing.T) {
	b := newBackend(t)
	nav := &navRecorder{}
	m, store := newManager(t, b, nav)

	req, _ := http.NewRequest(http.MethodPost, b.srv.URL+"/api/asistencia/asistencias/", strings.NewReader(`{"x":1}`))
	resp, err := m.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if got := b.refreshCalls.Load(); got != 1 {
		t.Fatalf("refresh calls %d", got)
	}
	if got := b.protected.Load(); got != 2 {
		t.Fatalf("protected calls %d", got)
	}
	if b.bodies[0] != `{"x":1}` || b.bodies[1] != `{"x":1}` {
		t.Fatalf("body not replayed: %q", b.bodies)
	}
	tp, _ := store.Load(context.Background())
	if tp.AccessToken != "new-access" || tp.RefreshToken != "refresh-1" {
		t.Fatalf("tokens %+v", tp)
	}
	if m.State() != HasAccessToken {
		t.Fatalf("state %v", m.State())
	}
	if nav.count() != 0 {
		t.Fatal("unexpected navigation")
	}
}

func TestAtMostOneRetryPerRequest(t *testing.T) {
	b := newBackend(t)
	b.issue.Store("still-rejected")
	m, _ := newManager(t, b, &navRecorder{})

	resp, err := get(t, m, b.srv.URL+"/api/asistencia/asistencias/")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if got := b.protected.Load(); got != 2 {
		t.Fatalf("protected calls %d, want 2", got)
	}
	if got := b.refreshCalls.Load(); got != 1 {
		t.Fatalf("refresh calls %d, want 1", got)
	}
}

func TestConcurrentExpiredRequestsBounded(t *testing.T) {
	b := newBackend(t)
	m, _ := newManager(t, b, &navRecorder{})
	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, _ := http.NewRequest(http.MethodGet, b.srv.URL+"/api/asistencia/asistencias/", nil)
			resp, err := m.Do(req)
			if err != nil {
				errs <- err
				return
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				errs <- errors.New(resp.Status)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
	if got := b.refreshCalls.Load(); got < 1 || got > n {
		t.Fatalf("refresh calls %d", got)
	}
	if got := b.protected.Load(); got > 2*n {
		t.Fatalf("protected calls %d > %d", got, 2*n)
	}
}

func TestRefreshFailureClearsAndRedirectsOnce(t *testing.T) {
	b := newBackend(t)
	b.refreshMode.Store(1)
	nav := &navRecorder{}
	m, store := newManager(t, b, nav)

	for i := 0; i < 3; i++ {
		_, err := get(t, m, b.srv.URL+"/api/asistencia/asistencias/")
		if !errors.Is(err, ErrRefreshFailed) {
			t.Fatalf("request %d: %v", i, err)
		}
	}
	tp, _ := store.Load(context.Background())
	if !tp.Empty() {
		t.Fatalf("tokens not cleared: %+v", tp)
	}
	if nav.count() != 1 || nav.routes[0] != "/login" {
		t.Fatalf("navigations %v", nav.routes)
	}
	if m.State() != NoSession {
		t.Fatalf("state %v", m.State())
	}
}

func TestNetworkDropDuringRefresh(t *testing.T) {
	b := newBackend(t)
	b.refreshMode.Store(2)
	nav := &navRecorder{}
	m, store := newManager(t, b, nav)

	_, err := get(t, m, b.srv.URL+"/api/asistencia/asistencias/")
	if !errors.Is(err, ErrRefreshFailed) {
		t.Fatalf("expected ErrRefreshFailed, got %v", err)
	}
	tp, _ := store.Load(context.Background())
	if !tp.Empty() || nav.count() != 1 {
		t.Fatalf("tokens %+v, navigations %d", tp, nav.count())
	}
}

func TestLoginFailureDoesNotRefresh(t *testing.T) {
	b := newBackend(t)
	m, _ := newManager(t, b, &navRecorder{})
	req, _ := http.NewRequest(http.MethodPost, b.srv.URL+"/api/usuarios/login/", strings.NewReader(`{}`))
	resp, err := m.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized || b.refreshCalls.Load() != 0 {
		t.Fatalf("status %d, refresh calls %d", resp.StatusCode, b.refreshCalls.Load())
	}
}

func TestForbiddenWithExpiredBody(t *testing.T) {
	b := newBackend(t)
	b.forbidBody = `{"detail":"Given token expired"}`
	m, _ := newManager(t, b, &navRecorder{})
	resp, err := get(t, m, b.srv.URL+"/api/asistencia/asistencias/")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || b.refreshCalls.Load() != 1 {
		t.Fatalf("status %d refresh %d", resp.StatusCode, b.refreshCalls.Load())
	}
}

func TestPlainForbiddenIsReturned(t *testing.T) {
	b := newBackend(t)
	b.forbidBody = `{"detail":"not your section"}`
	m, _ := newManager(t, b, &navRecorder{})
	resp, err := get(t, m, b.srv.URL+"/api/asistencia/asistencias/")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden || b.refreshCalls.Load() != 0 {
		t.Fatalf("status %d refresh %d", resp.StatusCode, b.refreshCalls.Load())
	}
	if !strings.Contains(string(body), "not your section") {
		t.Fatalf("body not restored: %q", body)
	}
}

func TestNoRefreshTokenEndsSession(t *testing.T) {
	b := newBackend(t)
	nav := &navRecorder{}
	store := NewMemoryStore()
	_ = store.Save(context.Background(), model.TokenPair{AccessToken: "old-access"})
	m := NewManager(store, Options{BaseURL: b.srv.URL + "/", Navigate: nav.navigate, HTTPClient: b.srv.Client()})
	if st, _ := m.Restore(context.Background()); st != HasAccessToken {
		t.Fatalf("restored state %v", st)
	}
	_, err := get(t, m, b.srv.URL+"/api/asistencia/asistencias/")
	if !errors.Is(err, ErrRefreshFailed) || b.refreshCalls.Load() != 0 || nav.count() != 1 {
		t.Fatalf("err %v refresh %d nav %d", err, b.refreshCalls.Load(), nav.count())
	}
}

func TestLoginRejectsPartialPair(t *testing.T) {
	m := NewManager(NewMemoryStore(), Options{})
	if err := m.Login(context.Background(), model.TokenPair{AccessToken: "a"}); !errors.Is(err, ErrNoSession) {
		t.Fatalf("got %v", err)
	}
}

// racingStore simulates a login landing between the refresh request and
// the swap of its result.
type racingStore struct {
	*MemoryStore
	winner model.TokenPair
}

func (s *racingStore) SwapAccess(ctx context.Context, prev, next string) (bool, error) {
	_ = s.MemoryStore.Save(ctx, s.winner)
	return s.MemoryStore.SwapAccess(ctx, prev, next)
}

func TestRefreshLosingSwapKeepsStoredToken(t *testing.T) {
	b := newBackend(t)
	store := &racingStore{
		MemoryStore: NewMemoryStore(),
		winner:      model.TokenPair{AccessToken: "login-access", RefreshToken: "login-refresh"},
	}
	nav := &navRecorder{}
	m := NewManager(store, Options{BaseURL: b.srv.URL + "/", Navigate: nav.navigate, HTTPClient: b.srv.Client()})
	if err := m.Login(context.Background(), model.TokenPair{AccessToken: "old-access", RefreshToken: "refresh-1"}); err != nil {
		t.Fatal(err)
	}

	got, err := m.Refresh(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got != "login-access" {
		t.Fatalf("refresh returned %q, want the stored token", got)
	}
	tp, _ := store.Load(context.Background())
	if tp != store.winner {
		t.Fatalf("tokens %+v", tp)
	}
	if m.State() != HasAccessToken || nav.count() != 0 {
		t.Fatalf("state %v navigations %d", m.State(), nav.count())
	}
}
