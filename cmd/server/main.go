package main // development backend for the QR attendance client

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/qr-attendance/internal/config"
	"github.com/iliyamo/qr-attendance/internal/database"
	"github.com/iliyamo/qr-attendance/internal/queue"
	"github.com/iliyamo/qr-attendance/internal/repository"
	"github.com/iliyamo/qr-attendance/internal/router"
	"github.com/iliyamo/qr-attendance/internal/service"
	"github.com/iliyamo/qr-attendance/internal/utils"
)

func main() {
	cfg := config.LoadServer()
	logger, err := utils.NewLogger(cfg.Env, os.Getenv("LOG_LEVEL"))
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore := openStore(ctx, cfg, logger)
	defer closeStore()

	rdb := config.NewRedisClient(cfg.Redis)
	var ledger repository.Ledger = repository.NewMemoryLedger()
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
		ledger = repository.NewRedisLedger(rdb, cfg.Redis.Prefix)
		logger.Info("redis connected", zap.String("addr", cfg.Redis.Addr))
	} else {
		logger.Warn("redis unavailable, using in-memory ledger and no login throttle", zap.String("addr", cfg.Redis.Addr))
	}

	var pub service.Publisher = service.NopPublisher{}
	if cfg.AMQPURL != "" {
		pub = &service.AMQPPublisher{URL: cfg.AMQPURL, Log: logger}
		consumer := &queue.Consumer{URL: cfg.AMQPURL, Dir: "logs", Log: logger}
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("audit consumer stopped", zap.Error(err))
			}
		}()
	}

	svc := &service.AttendanceService{
		Store:     store,
		Ledger:    ledger,
		Hub:       service.NewHub(logger),
		Publisher: pub,
		Secret:    cfg.QRSecret,
		TTL:       cfg.QRTTL,
		Log:       logger,
	}
	e := router.New(router.Deps{Cfg: cfg, Store: store, Svc: svc, Redis: rdb, Log: logger})

	addr := ":" + cfg.Port
	logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}

// openStore connects to MySQL when DB_HOST is set, otherwise seeds an
// in-memory store.  Either way the demo accounts exist afterwards.
func openStore(ctx context.Context, cfg config.ServerConfig, logger *zap.Logger) (repository.Store, func()) {
	demo := repository.DemoData()
	if cfg.DBHost == "" {
		mem, err := repository.NewMemoryStore(demo, cfg.BcryptCost)
		if err != nil {
			logger.Fatal("memory store", zap.Error(err))
		}
		logger.Info("using in-memory store", zap.String("password", repository.DemoPassword))
		return mem, func() {}
	}

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logger.Fatal("mysql", zap.Error(err))
	}
	if err := database.EnsureSchema(ctx, db); err != nil {
		logger.Fatal("schema", zap.Error(err))
	}
	ms := repository.NewMySQLStore(db)
	if err := ms.Seed(ctx, demo, cfg.BcryptCost); err != nil {
		logger.Fatal("seed", zap.Error(err))
	}
	logger.Info("mysql connected", zap.String("host", cfg.DBHost), zap.String("db", cfg.DBName))
	return ms, func() { _ = db.Close() }
}
