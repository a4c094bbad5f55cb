package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/qr-attendance/internal/handler"
	"github.com/iliyamo/qr-attendance/internal/middleware"
	"github.com/iliyamo/qr-attendance/internal/model"
)

// RegisterTeacher registers credential minting.  Requires a valid JWT with
// the docente role.
func RegisterTeacher(e *echo.Echo, h *handler.QRHandler, jwtSecret string) {
	g := e.Group(
		"/api/asistencia/codigos-qr",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleTeacher),
	)
	g.POST("/generar-jwt/", h.Mint)
}
