package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/qr-attendance/internal/handler"
	"github.com/iliyamo/qr-attendance/internal/middleware"
	"github.com/iliyamo/qr-attendance/internal/model"
)

// RegisterStudent registers check-in endpoints.  Requires a valid JWT with
// the alumno role.  verificar/ is the older plain-code route and takes the
// credential in str_codigo.
func RegisterStudent(e *echo.Echo, h *handler.QRHandler, jwtSecret string) {
	g := e.Group(
		"/api/asistencia/codigos-qr",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleStudent),
	)
	g.POST("/verificar-jwt/", h.Verify)
	g.POST("/verificar/", h.VerifyCode)
}
