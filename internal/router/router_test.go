package router_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/qr-attendance/internal/api"
	"github.com/iliyamo/qr-attendance/internal/auth"
	"github.com/iliyamo/qr-attendance/internal/checkin"
	"github.com/iliyamo/qr-attendance/internal/config"
	"github.com/iliyamo/qr-attendance/internal/credential"
	"github.com/iliyamo/qr-attendance/internal/dashboard"
	"github.com/iliyamo/qr-attendance/internal/issuance"
	"github.com/iliyamo/qr-attendance/internal/live"
	"github.com/iliyamo/qr-attendance/internal/model"
	"github.com/iliyamo/qr-attendance/internal/repository"
	"github.com/iliyamo/qr-attendance/internal/router"
	"github.com/iliyamo/qr-attendance/internal/service"
	"github.com/iliyamo/qr-attendance/internal/utils"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type backend struct {
	srv         *httptest.Server
	cfg         config.ServerConfig
	svc         *service.AttendanceService
	clock       *clock
	dropRefresh atomic.Bool
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	store, err := repository.NewMemoryStore(repository.DemoData(), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	b := &backend{
		cfg: config.ServerConfig{
			JWTSecret:      "e2e-access",
			QRSecret:       "e2e-qr",
			AccessTTLMin:   15,
			RefreshTTLDays: 1,
			QRTTL:          30 * time.Second,
		},
		clock: &clock{t: time.Now()},
	}
	b.svc = &service.AttendanceService{
		Store:     store,
		Ledger:    repository.NewMemoryLedger(),
		Hub:       service.NewHub(nil),
		Publisher: service.NopPublisher{},
		Secret:    b.cfg.QRSecret,
		TTL:       b.cfg.QRTTL,
		Now:       b.clock.Now,
	}
	e := router.New(router.Deps{Cfg: b.cfg, Store: store, Svc: b.svc})
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.dropRefresh.Load() && strings.Contains(r.URL.Path, "refresh-token") {
			panic(http.ErrAbortHandler)
		}
		e.ServeHTTP(w, r)
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *backend) wsURL() string { return "ws" + strings.TrimPrefix(b.srv.URL, "http") }

type user struct {
	client *api.Client
	mgr    *auth.Manager
	store  *auth.MemoryStore
	info   model.User
	navs   chan string
}

func (b *backend) login(t *testing.T, email string) *user {
	t.Helper()
	u := &user{store: auth.NewMemoryStore(), navs: make(chan string, 4)}
	u.mgr = auth.NewManager(u.store, auth.Options{
		BaseURL:    b.srv.URL + "/",
		HTTPClient: b.srv.Client(),
		Navigate:   func(route string) { u.navs <- route },
	})
	u.client = api.NewClient(b.srv.URL, u.mgr, nil)
	res, err := u.client.Login(context.Background(), email, repository.DemoPassword)
	if err != nil {
		t.Fatalf("login %s: %v", email, err)
	}
	if err := u.mgr.Login(context.Background(), res.Tokens); err != nil {
		t.Fatal(err)
	}
	u.info = res.User
	return u
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func findSession(t *testing.T, c *api.Client, topic string) model.ClassSession {
	t.Helper()
	sessions, err := c.ListSessions(context.Background(), 1)
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	for _, s := range sessions {
		if s.Topic == topic {
			return s
		}
	}
	t.Fatalf("no session %q in %+v", topic, sessions)
	return model.ClassSession{}
}

func TestCheckInReachesTeacherLive(t *testing.T) {
	b := newBackend(t)
	teacher := b.login(t, "docente@uni.edu")
	student := b.login(t, "beto@uni.edu")
	if !teacher.info.IsTeacher() || !student.info.IsStudent() || student.info.StudentID != "ALU-002" {
		t.Fatalf("roles: teacher=%+v student=%+v", teacher.info, student.info)
	}

	loop := issuance.NewLoop(teacher.client, issuance.Options{})
	dash := dashboard.New(teacher.client,
		dashboard.LiveDialer(live.Options{BaseURL: b.wsURL(), Heartbeat: 50 * time.Millisecond}),
		dashboard.Options{Issuance: loop})
	defer dash.Close()

	lecture := findSession(t, teacher.client, "Lecture 5")
	if err := dash.SelectSession(context.Background(), lecture); err != nil {
		t.Fatalf("select: %v", err)
	}
	eventually(t, "roster loaded", func() bool { v := dash.View(); return !v.Loading && len(v.Rows) == 3 })
	eventually(t, "live socket registered", func() bool { return b.svc.Hub.Count(lecture.ID) == 1 })

	if err := dash.OpenQR(teacher.info.TeacherID); err != nil {
		t.Fatal(err)
	}
	eventually(t, "first QR", func() bool { return loop.Snapshot().Credential.QRCode != "" })

	png, err := credential.ParseDataURL(loop.Snapshot().Credential.QRCode)
	if err != nil {
		t.Fatal(err)
	}
	cred, err := credential.DecodeBytes(png)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}

	flow := checkin.NewFlow(checkin.NewService(student.client, nil), student.info.StudentID, 20*time.Millisecond,
		func(route string) { student.navs <- route })
	defer flow.Close()
	if _, err := flow.Submit(context.Background(), cred); err != nil {
		t.Fatalf("submit: %v", err)
	}
	phase, msg := flow.Status()
	if phase != checkin.PhaseConfirmed || !strings.Contains(msg, "Asistencia registrada") {
		t.Fatalf("status = %v %q", phase, msg)
	}
	select {
	case route := <-student.navs:
		if route != checkin.DashboardRoute {
			t.Fatalf("redirected to %q", route)
		}
	case <-time.After(time.Second):
		t.Fatal("no redirect after confirmation")
	}

	eventually(t, "present row", func() bool {
		for _, r := range dash.View().Rows {
			if r.StudentID == "ALU-002" {
				return r.Present && r.Status == "Presente"
			}
		}
		return false
	})
	if n := dashboard.PresentCount(dash.View().Rows); n != 1 {
		t.Fatalf("present = %d", n)
	}
	var notices []dashboard.Notice
	eventually(t, "verified notice", func() bool {
		notices = append(notices, dash.Notices()...)
		for _, n := range notices {
			if n.Text == "Asistencia registrada: Beto Soto" {
				return true
			}
		}
		return false
	})
}

func TestExpiredCredentialCreatesNoRow(t *testing.T) {
	b := newBackend(t)
	teacher := b.login(t, "docente@uni.edu")
	student := b.login(t, "ana@uni.edu")

	ic, err := teacher.client.MintCredential(context.Background(), 2, teacher.info.TeacherID)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	b.clock.Advance(31 * time.Second)

	svc := checkin.NewService(student.client, nil)
	_, err = svc.Submit(context.Background(), ic.Token, student.info.StudentID)
	if checkin.KindOf(err) != checkin.KindExpired {
		t.Fatalf("kind = %v (%v)", checkin.KindOf(err), err)
	}
	if !strings.Contains(err.Error(), "puede haber expirado") {
		t.Fatalf("message = %q", err.Error())
	}
	recs, err := teacher.client.ListAttendance(context.Background(), 2)
	if err != nil || len(recs) != 0 {
		t.Fatalf("records = %+v, %v", recs, err)
	}
}

func TestSecondSubmissionAlreadyRegistered(t *testing.T) {
	b := newBackend(t)
	teacher := b.login(t, "docente@uni.edu")
	student := b.login(t, "carla@uni.edu")

	ic, err := teacher.client.MintCredential(context.Background(), 3, teacher.info.TeacherID)
	if err != nil {
		t.Fatal(err)
	}
	svc := checkin.NewService(student.client, nil)
	if _, err := svc.Submit(context.Background(), ic.Token, student.info.StudentID); err != nil {
		t.Fatalf("first: %v", err)
	}
	_, err = svc.Submit(context.Background(), ic.Token, student.info.StudentID)
	if checkin.KindOf(err) != checkin.KindAlreadyRegistered {
		t.Fatalf("second: kind = %v (%v)", checkin.KindOf(err), err)
	}
}

func expireAccess(t *testing.T, b *backend, u *user) {
	t.Helper()
	tp, err := u.store.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	stale, err := utils.NewAccessToken(b.cfg.JWTSecret, u.info.UserID, u.info.Role, u.info.TeacherID, u.info.StudentID, -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	tp.AccessToken = stale.Token
	if err := u.store.Save(context.Background(), tp); err != nil {
		t.Fatal(err)
	}
}

func TestExpiredAccessRefreshesTransparently(t *testing.T) {
	b := newBackend(t)
	teacher := b.login(t, "docente@uni.edu")
	expireAccess(t, b, teacher)

	roster, err := teacher.client.ListRoster(context.Background(), 1)
	if err != nil || len(roster) != 3 {
		t.Fatalf("roster = %+v, %v", roster, err)
	}
	if teacher.mgr.State() != auth.HasAccessToken {
		t.Fatalf("state = %v", teacher.mgr.State())
	}
	select {
	case route := <-teacher.navs:
		t.Fatalf("unexpected redirect to %q", route)
	default:
	}
}

func TestNetworkDropDuringRefreshLogsOut(t *testing.T) {
	b := newBackend(t)
	student := b.login(t, "ana@uni.edu")
	expireAccess(t, b, student)
	b.dropRefresh.Store(true)

	_, err := checkin.NewService(student.client, nil).Submit(context.Background(), "anything", student.info.StudentID)
	if checkin.KindOf(err) != checkin.KindSessionEnded {
		t.Fatalf("kind = %v (%v)", checkin.KindOf(err), err)
	}
	select {
	case route := <-student.navs:
		if route != "/login" {
			t.Fatalf("redirected to %q", route)
		}
	default:
		t.Fatal("no redirect to login")
	}
	tp, _ := student.store.Load(context.Background())
	if !tp.Empty() {
		t.Fatalf("tokens left behind: %+v", tp)
	}
}

func TestRoleAndLoginRejections(t *testing.T) {
	b := newBackend(t)
	c := api.NewClient(b.srv.URL, b.srv.Client(), nil)
	_, err := c.Login(context.Background(), "ana@uni.edu", "wrong")
	if ae, ok := api.AsAPIError(err); !ok || ae.Message != api.MsgBadCredentials {
		t.Fatalf("bad password: %v", err)
	}

	student := b.login(t, "ana@uni.edu")
	_, err = student.client.MintCredential(context.Background(), 1, "DOC-001")
	if ae, ok := api.AsAPIError(err); !ok || ae.Status != http.StatusForbidden {
		t.Fatalf("student mint: %v", err)
	}

	teacher := b.login(t, "docente@uni.edu")
	_, err = teacher.client.MintCredential(context.Background(), 1, "DOC-999")
	if ae, ok := api.AsAPIError(err); !ok || ae.Status != http.StatusForbidden {
		t.Fatalf("mint for another teacher: %v", err)
	}
	_, err = teacher.client.MintCredential(context.Background(), 42, teacher.info.TeacherID)
	if ae, ok := api.AsAPIError(err); !ok || ae.Status != http.StatusNotFound {
		t.Fatalf("unknown session: %v", err)
	}
}

func TestLogoutRevokesRefresh(t *testing.T) {
	b := newBackend(t)
	u := b.login(t, "beto@uni.edu")
	tp, _ := u.store.Load(context.Background())
	if err := u.client.Logout(context.Background(), tp.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	expireAccess(t, b, u)
	if _, err := u.client.ListRoster(context.Background(), 1); err == nil {
		t.Fatal("revoked refresh token still worked")
	}
	if u.mgr.State() != auth.NoSession {
		t.Fatalf("state = %v", u.mgr.State())
	}
}
