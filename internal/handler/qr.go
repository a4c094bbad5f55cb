package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/qr-attendance/internal/middleware"
	"github.com/iliyamo/qr-attendance/internal/repository"
	"github.com/iliyamo/qr-attendance/internal/service"
	"github.com/iliyamo/qr-attendance/internal/utils"
)

// QRHandler mints and verifies attendance credentials.
type QRHandler struct {
	Svc *service.AttendanceService
	Log *zap.Logger
}

func NewQRHandler(svc *service.AttendanceService, log *zap.Logger) *QRHandler {
	return &QRHandler{Svc: svc, Log: utils.OrNop(log)}
}

type mintReq struct {
	SessionID int64  `json:"int_idSesionClase"`
	TeacherID string `json:"str_idDocente"`
	Format    string `json:"formato"`
}

type verifyReq struct {
	Token     string `json:"token"`
	Code      string `json:"str_codigo"`
	StudentID string `json:"str_idAlumno"`
}

// Mint (docente) issues a credential for a session the caller teaches.
func (h *QRHandler) Mint(c echo.Context) error {
	var req mintReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "invalid body"})
	}
	if req.SessionID <= 0 || strings.TrimSpace(req.TeacherID) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "int_idSesionClase y str_idDocente son obligatorios"})
	}
	if req.Format != "" && req.Format != "base64" {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "formato no soportado"})
	}
	if cl := middleware.Claims(c); cl == nil || cl.TeacherID != req.TeacherID {
		return c.JSON(http.StatusForbidden, echo.Map{"code": "forbidden", "detail": "El docente no coincide con el usuario autenticado"})
	}

	ic, err := h.Svc.Mint(c.Request().Context(), req.SessionID, req.TeacherID)
	if errors.Is(err, repository.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"detail": "Sesión de clase no encontrada"})
	}
	if err != nil {
		h.Log.Error("mint credential", zap.Int64("session_id", req.SessionID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "No se pudo generar el código QR"})
	}
	return c.JSON(http.StatusOK, ic)
}

// Verify (alumno) records attendance for a scanned credential.
func (h *QRHandler) Verify(c echo.Context) error {
	var req verifyReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"code": "invalid", "detail": "invalid body"})
	}
	return h.verify(c, req.Token, req.StudentID)
}

// VerifyCode is the older endpoint taking the credential as str_codigo.
func (h *QRHandler) VerifyCode(c echo.Context) error {
	var req verifyReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"code": "invalid", "detail": "invalid body"})
	}
	return h.verify(c, req.Code, req.StudentID)
}

func (h *QRHandler) verify(c echo.Context, token, studentID string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"code": "invalid", "detail": "token requerido"})
	}
	cl := middleware.Claims(c)
	if cl == nil || cl.StudentID == "" {
		return c.JSON(http.StatusForbidden, echo.Map{"code": "forbidden", "detail": "Solo alumnos pueden registrar asistencia"})
	}
	if studentID == "" {
		studentID = cl.StudentID
	}
	if studentID != cl.StudentID {
		return c.JSON(http.StatusForbidden, echo.Map{"code": "forbidden", "detail": "El alumno no coincide con el usuario autenticado"})
	}

	rec, err := h.Svc.Verify(c.Request().Context(), token, studentID)
	switch {
	case err == nil:
		return c.JSON(http.StatusCreated, rec)
	case errors.Is(err, service.ErrExpiredCredential):
		return c.JSON(http.StatusBadRequest, echo.Map{"code": "expired", "error": "El código QR puede haber expirado"})
	case errors.Is(err, service.ErrInvalidCredential):
		return c.JSON(http.StatusBadRequest, echo.Map{"code": "invalid", "error": "Código QR inválido"})
	case errors.Is(err, service.ErrNotEnrolled):
		return c.JSON(http.StatusForbidden, echo.Map{"code": "not_enrolled", "error": "El alumno no está inscrito en la sección"})
	case errors.Is(err, repository.ErrAlreadyRegistered):
		return c.JSON(http.StatusConflict, echo.Map{"code": "already_registered", "error": "La asistencia ya fue registrada para esta sesión"})
	}
	h.Log.Error("verify credential", zap.String("student_id", studentID), zap.Error(err))
	return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "Error al registrar asistencia"})
}
