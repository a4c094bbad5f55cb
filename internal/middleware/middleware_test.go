package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/qr-attendance/internal/config"
	"github.com/iliyamo/qr-attendance/internal/model"
	"github.com/iliyamo/qr-attendance/internal/utils"
)

const secret = "mw-secret"

func protected() *echo.Echo {
	e := echo.New()
	g := e.Group("", RequestLogger(nil), JWTAuth(secret))
	g.GET("/me", func(c echo.Context) error {
		cl := Claims(c)
		return c.JSON(http.StatusOK, echo.Map{"sub": cl.Subject, "alumno_id": cl.StudentID})
	})
	g.GET("/teacher", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }, RequireRole(model.RoleTeacher))
	return e
}

func call(e *echo.Echo, path, bearer string) (*httptest.ResponseRecorder, map[string]any) {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	body := map[string]any{}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func TestJWTAuthRejections(t *testing.T) {
	e := protected()

	rec, body := call(e, "/me", "")
	if rec.Code != http.StatusUnauthorized || body["code"] != CodeTokenNotValid {
		t.Fatalf("missing bearer: %d %v", rec.Code, body)
	}

	rec, body = call(e, "/me", "not-a-jwt")
	if rec.Code != http.StatusUnauthorized || body["code"] != CodeTokenNotValid || body["error"] != nil {
		t.Fatalf("garbage bearer: %d %v", rec.Code, body)
	}

	expired, err := utils.NewAccessToken(secret, 7, model.RoleStudent, "", "ALU-001", -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	rec, body = call(e, "/me", expired.Token)
	if rec.Code != http.StatusUnauthorized || body["error"] != "token expired" {
		t.Fatalf("expired bearer: %d %v", rec.Code, body)
	}
}

func TestJWTAuthStoresClaimsAndRoleGate(t *testing.T) {
	e := protected()
	tok, err := utils.NewAccessToken(secret, 7, model.RoleStudent, "", "ALU-001", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	rec, body := call(e, "/me", tok.Token)
	if rec.Code != http.StatusOK || body["sub"] != "7" || body["alumno_id"] != "ALU-001" {
		t.Fatalf("me: %d %v", rec.Code, body)
	}
	if rec.Header().Get(echo.HeaderXRequestID) == "" {
		t.Fatal("request id header missing")
	}

	rec, _ = call(e, "/teacher", tok.Token)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("student on teacher route: %d", rec.Code)
	}
}

func TestThrottleWithoutRedisPassesThrough(t *testing.T) {
	e := echo.New()
	e.GET("/login", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) },
		Throttle(config.RateLimitConfig{Enabled: true, Capacity: 1}, nil, nil))
	for i := 0; i < 3; i++ {
		rec, _ := call(e, "/login", "")
		if rec.Code != http.StatusNoContent {
			t.Fatalf("attempt %d: %d", i, rec.Code)
		}
	}
}

func TestThrottleBlocksWithRedis(t *testing.T) {
	if os.Getenv("REDIS_ADDR") == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb == nil {
		t.Skip("redis unreachable")
	}
	defer rdb.Close()
	cfg := config.RateLimitConfig{
		Enabled:        true,
		Prefix:         "qrtest:rl:" + time.Now().Format(time.RFC3339Nano),
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Minute,
		TTL:            time.Minute,
		KeyStrategy:    "ip",
	}
	e := echo.New()
	e.GET("/login", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }, Throttle(cfg, rdb, nil))
	codes := []int{}
	for i := 0; i < 3; i++ {
		rec, _ := call(e, "/login", "")
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusNoContent || codes[1] != http.StatusNoContent || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v", codes)
	}
}
