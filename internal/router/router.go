package router // package router registers the backend's HTTP and WebSocket routes

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/qr-attendance/internal/config"
	"github.com/iliyamo/qr-attendance/internal/handler"
	"github.com/iliyamo/qr-attendance/internal/middleware"
)

// RegisterRoutes registers routes that need no authentication.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers login, token refresh and logout under
// /api/usuarios.  None of them take a bearer token; login sits behind the
// Redis token bucket when one is configured.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, limit config.RateLimitConfig, rdb *redis.Client, log *zap.Logger) {
	g := e.Group("/api/usuarios")
	g.POST("/login/", a.Login, middleware.Throttle(limit, rdb, log))
	g.POST("/refresh-token/", a.RefreshAccess)
	g.POST("/logout/", a.Logout)
}

// RegisterLive exposes the per-session WebSocket.
func RegisterLive(e *echo.Echo, w *handler.WSHandler) {
	e.GET("/ws/qr/session/:id/", w.Session)
}
