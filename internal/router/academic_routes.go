package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/qr-attendance/internal/handler"
	"github.com/iliyamo/qr-attendance/internal/middleware"
	"github.com/iliyamo/qr-attendance/internal/model"
)

// RegisterAcademic registers the dashboard listings for either role.
func RegisterAcademic(e *echo.Echo, h *handler.AcademicHandler, jwtSecret string) {
	auth := []echo.MiddlewareFunc{
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleTeacher, model.RoleStudent),
	}
	e.GET("/api/asistencia/asistencias/", h.Attendance, auth...)
	e.GET("/api/inscripciones/alumnos-secciones/", h.Roster, auth...)
	e.GET("/api/academico/sesiones/", h.Sessions, auth...)
}
