package auth

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/iliyamo/qr-attendance/internal/config"
	"github.com/iliyamo/qr-attendance/internal/model"
	"github.com/iliyamo/qr-attendance/internal/utils"
)

func exerciseStore(t *testing.T, s TokenStore) {
	t.Helper()
	ctx := context.Background()
	if err := s.Save(ctx, model.TokenPair{AccessToken: "a1", RefreshToken: "r1"}); err != nil {
		t.Fatal(err)
	}
	ok, err := s.SwapAccess(ctx, "stale", "a2")
	if err != nil || ok {
		t.Fatalf("swap with stale value: %v %v", ok, err)
	}
	ok, err = s.SwapAccess(ctx, "a1", "a2")
	if err != nil || !ok {
		t.Fatalf("swap: %v %v", ok, err)
	}
	tp, err := s.Load(ctx)
	if err != nil || tp.AccessToken != "a2" || tp.RefreshToken != "r1" {
		t.Fatalf("load: %+v %v", tp, err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	tp, _ = s.Load(ctx)
	if !tp.Empty() {
		t.Fatalf("not cleared: %+v", tp)
	}
}

func TestMemoryStore(t *testing.T) { exerciseStore(t, NewMemoryStore()) }

func TestFileStore(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Save(context.Background(), model.TokenPair{AccessToken: "x", RefreshToken: "y"}); err != nil {
		t.Fatal(err)
	}
	fi, err := os.Stat(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	if fi.Mode().Perm() != 0o600 {
		t.Fatalf("token file mode %v", fi.Mode().Perm())
	}
	exerciseStore(t, s)
}

func TestRedisStore(t *testing.T) {
	if os.Getenv("REDIS_ADDR") == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb == nil {
		t.Skip("redis unreachable")
	}
	defer rdb.Close()
	exerciseStore(t, NewRedisStore(rdb, "qrtest", t.Name()))
}

func TestIdentity(t *testing.T) {
	tok, err := utils.NewAccessToken("any-secret", 12, model.RoleTeacher, "DOC-001", "", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	u, err := Identity(tok.Token)
	if err != nil {
		t.Fatal(err)
	}
	if u.UserID != 12 || !u.IsTeacher() || u.TeacherID != "DOC-001" {
		t.Fatalf("identity = %+v", u)
	}
	if _, err := Identity("nope"); err == nil {
		t.Fatal("garbage token accepted")
	}
}
