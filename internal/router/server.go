package router

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/qr-attendance/internal/config"
	"github.com/iliyamo/qr-attendance/internal/handler"
	"github.com/iliyamo/qr-attendance/internal/middleware"
	"github.com/iliyamo/qr-attendance/internal/repository"
	"github.com/iliyamo/qr-attendance/internal/service"
)

// Deps is everything the backend routes need.  Redis may be nil.
type Deps struct {
	Cfg   config.ServerConfig
	Store repository.Store
	Svc   *service.AttendanceService
	Redis *redis.Client
	Log   *zap.Logger
}

// New builds the echo instance with every route registered.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(d.Log))

	RegisterRoutes(e)
	RegisterAuth(e, handler.NewAuthHandler(d.Cfg, d.Store, d.Log), d.Cfg.LoginLimit, d.Redis, d.Log)
	qr := handler.NewQRHandler(d.Svc, d.Log)
	RegisterTeacher(e, qr, d.Cfg.JWTSecret)
	RegisterStudent(e, qr, d.Cfg.JWTSecret)
	RegisterAcademic(e, handler.NewAcademicHandler(d.Store, d.Log), d.Cfg.JWTSecret)
	RegisterLive(e, handler.NewWSHandler(d.Svc.Hub, d.Log))
	return e
}
