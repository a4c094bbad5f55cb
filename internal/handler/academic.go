package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/qr-attendance/internal/repository"
	"github.com/iliyamo/qr-attendance/internal/utils"
)

// AcademicHandler serves the read-only listings behind the dashboards.
type AcademicHandler struct {
	Store repository.Store
	Log   *zap.Logger
}

func NewAcademicHandler(s repository.Store, log *zap.Logger) *AcademicHandler {
	return &AcademicHandler{Store: s, Log: utils.OrNop(log)}
}

// Attendance lists records of ?sesion_clase_id=, paginated.
func (h *AcademicHandler) Attendance(c echo.Context) error {
	id, ok := queryID(c, "sesion_clase_id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "sesion_clase_id requerido"})
	}
	items, err := h.Store.AttendanceBySession(c.Request().Context(), id)
	if err != nil {
		h.Log.Error("list attendance", zap.Int64("session_id", id), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database_error", "detail": err.Error()})
	}
	return c.JSON(http.StatusOK, paginate(c, items))
}

// Roster lists the enrollments of ?seccion_id= as a bare array.
func (h *AcademicHandler) Roster(c echo.Context) error {
	id, ok := queryID(c, "seccion_id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "seccion_id requerido"})
	}
	items, err := h.Store.Roster(c.Request().Context(), id)
	if err != nil {
		h.Log.Error("list roster", zap.Int64("section_id", id), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database_error", "detail": err.Error()})
	}
	return c.JSON(http.StatusOK, items)
}

// Sessions lists the class sessions of ?seccion_id=, paginated.
func (h *AcademicHandler) Sessions(c echo.Context) error {
	id, ok := queryID(c, "seccion_id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"detail": "seccion_id requerido"})
	}
	items, err := h.Store.SessionsBySection(c.Request().Context(), id)
	if err != nil {
		h.Log.Error("list sessions", zap.Int64("section_id", id), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database_error", "detail": err.Error()})
	}
	return c.JSON(http.StatusOK, paginate(c, items))
}

func queryID(c echo.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.QueryParam(name), 10, 64)
	return id, err == nil && id > 0
}

// paginate slices items by ?page= and ?page_size= (default 100, max 500)
// into the {count, results} envelope.
func paginate[T any](c echo.Context, items []T) echo.Map {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	ps, _ := strconv.Atoi(c.QueryParam("page_size"))
	if ps < 1 {
		ps = 100
	}
	if ps > 500 {
		ps = 500
	}
	start := (page - 1) * ps
	if start > len(items) {
		start = len(items)
	}
	end := start + ps
	if end > len(items) {
		end = len(items)
	}
	results := items[start:end]
	if results == nil {
		results = []T{}
	}
	return echo.Map{
		"count":     len(items),
		"page":      page,
		"page_size": ps,
		"results":   results,
	}
}
