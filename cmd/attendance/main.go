// Command attendance is the terminal client of the QR attendance system.
//
//	attendance login -email ana@uni.edu -password ...
//	attendance scan -image qr.png          (student, one uploaded image)
//	attendance scan -frames ./camera       (student, directory served as camera frames)
//	attendance teach -section 1 -session 2 (teacher, rotating QR + live table)
//	attendance sessions -section 1
//	attendance attendance -section 1 -session 2
//	attendance whoami | logout
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/iliyamo/qr-attendance/internal/api"
	"github.com/iliyamo/qr-attendance/internal/auth"
	"github.com/iliyamo/qr-attendance/internal/config"
	"github.com/iliyamo/qr-attendance/internal/model"
	"github.com/iliyamo/qr-attendance/internal/utils"
)

type app struct {
	cfg   config.Config
	log   *zap.Logger
	store auth.TokenStore
	mgr   *auth.Manager
	api   *api.Client
	out   *printer
}

type command func(ctx context.Context, a *app, args []string) error

var commands = map[string]command{
	"login":      runLogin,
	"logout":     runLogout,
	"whoami":     runWhoami,
	"scan":       runScan,
	"teach":      runTeach,
	"sessions":   runSessions,
	"attendance": runAttendance,
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	run, ok := commands[os.Args[1]]
	if !ok {
		usage()
		os.Exit(2)
	}

	cfg := config.Load()
	logger, err := utils.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	a, err := newApp(cfg, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, a, os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: attendance <login|logout|whoami|scan|teach|sessions|attendance> [flags]")
}

func newApp(cfg config.Config, logger *zap.Logger) (*app, error) {
	store, err := openTokenStore(cfg)
	if err != nil {
		return nil, err
	}
	out := newPrinter(os.Stdout)
	mgr := auth.NewManager(store, auth.Options{
		BaseURL: cfg.APIBaseURL,
		Logger:  logger,
		Navigate: func(route string) {
			out.Errorf("La sesión expiró. Vuelva a ingresar con: attendance login (%s)\n", route)
		},
	})
	return &app{
		cfg:   cfg,
		log:   logger,
		store: store,
		mgr:   mgr,
		api:   api.NewClient(cfg.APIBaseURL, mgr, logger),
		out:   out,
	}, nil
}

func openTokenStore(cfg config.Config) (auth.TokenStore, error) {
	switch cfg.TokenStore {
	case "memory":
		return auth.NewMemoryStore(), nil
	case "redis":
		rdb := config.NewRedisClient(cfg.Redis)
		if rdb == nil {
			return nil, fmt.Errorf("redis token store unreachable at %s", cfg.Redis.Addr)
		}
		return auth.NewRedisStore(rdb, cfg.Redis.Prefix, cfg.TokenProfile), nil
	default:
		return auth.NewFileStore(cfg.TokenDir)
	}
}

// identity restores the stored session and returns who it belongs to.
func (a *app) identity(ctx context.Context) (model.User, error) {
	state, err := a.mgr.Restore(ctx)
	if err != nil {
		return model.User{}, err
	}
	if state == auth.NoSession {
		return model.User{}, errors.New("no hay una sesión activa; ingrese con: attendance login")
	}
	tp, err := a.mgr.Tokens(ctx)
	if err != nil {
		return model.User{}, err
	}
	return auth.Identity(tp.AccessToken)
}
