package handler // HTTP handlers of the development attendance backend

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/qr-attendance/internal/config"
	"github.com/iliyamo/qr-attendance/internal/model"
	"github.com/iliyamo/qr-attendance/internal/repository"
	"github.com/iliyamo/qr-attendance/internal/utils"
)

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Cfg   config.ServerConfig
	Store repository.Store
	Log   *zap.Logger
}

func NewAuthHandler(cfg config.ServerConfig, s repository.Store, log *zap.Logger) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Store: s, Log: utils.OrNop(log)}
}

// ----- DTOs -----

type loginReq struct {
	Email    string `json:"str_email"`
	Password string `json:"password"`
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type loginResp struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	UserID       uint64 `json:"user_id"`
	Email        string `json:"email"`
	IsDocente    bool   `json:"is_docente"`
	IsAlumno     bool   `json:"is_alumno"`
	DocenteID    string `json:"docente_id,omitempty"`
	AlumnoID     string `json:"alumno_id,omitempty"`
}

func (h *AuthHandler) accessTTL() time.Duration {
	return time.Duration(h.Cfg.AccessTTLMin) * time.Minute
}

// Login verifies the password and returns a new token pair plus the
// account's role flags.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "Correo y contraseña son obligatorios"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Store.AccountByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"detail": "invalid credentials"})
		}
		h.Log.Error("login: lookup", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "query failed"})
	}
	if !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"detail": "invalid credentials"})
	}

	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Role, u.TeacherID, u.StudentID, h.accessTTL())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "issue access failed"})
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "issue refresh failed"})
	}
	if err := h.Store.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		h.Log.Error("login: store refresh", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "save refresh failed"})
	}

	return c.JSON(http.StatusOK, loginResp{
		AccessToken:  access.Token,
		RefreshToken: refresh.Raw,
		UserID:       u.ID,
		Email:        u.Email,
		IsDocente:    u.Role == model.RoleTeacher,
		IsAlumno:     u.Role == model.RoleStudent,
		DocenteID:    u.TeacherID,
		AlumnoID:     u.StudentID,
	})
}

// RefreshAccess validates a refresh token and returns a new access token
// without rotating the refresh token.
func (h *AuthHandler) RefreshAccess(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "refresh_token required"})
	}
	hash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	userID, err := h.Store.ValidateRefresh(ctx, hash)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"code": "token_not_valid", "detail": "invalid refresh"})
	}
	u, err := h.Store.AccountByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"code": "token_not_valid", "detail": "invalid refresh"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "load user failed"})
	}
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Role, u.TeacherID, u.StudentID, h.accessTTL())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"detail": "issue access failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"access_token": access.Token})
}

// Logout revokes the given refresh token.  Unknown or missing tokens still
// get 204; the client clears its copy either way.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	_ = c.Bind(&req)
	if raw := strings.TrimSpace(req.RefreshToken); raw != "" {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()
		if err := h.Store.RevokeRefresh(ctx, utils.HashRefreshRaw(raw)); err != nil {
			h.Log.Warn("logout: revoke", zap.Error(err))
		}
	}
	return c.NoContent(http.StatusNoContent)
}
