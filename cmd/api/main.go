package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"sandyq.org/internal/audit"
	"sandyq.org/internal/config"
	"sandyq.org/internal/httpapi"
	"sandyq.org/internal/obs"
	"sandyq.org/internal/session"
	"sandyq.org/internal/store/pg"
	"sandyq.org/internal/vault"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := obs.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	store, err := pg.Open(cfg.Database.DSN())
	if err != nil {
		logger.Fatal("open db", zap.Error(err))
	}
	defer func() { _ = store.Close() }()

	users := vault.NewUserService(store)
	categories := vault.NewCategoryService(store, users)
	secrets := vault.NewSecretService(store, users, categories)

	sessions, err := session.NewManager(cfg.Session.Secret, cfg.Session.Issuer,
		session.WithTTL(cfg.Session.TTL))
	if err != nil {
		logger.Fatal("session manager", zap.Error(err))
	}

	api := httpapi.New(
		users, categories, secrets, sessions,
		audit.NewLog(logger), logger,
		httpapi.ReadyProbe{DB: store.DB()},
		version,
		httpapi.Limits{
			RequestsPerSecond: cfg.Limits.RequestsPerSecond,
			Burst:             cfg.Limits.Burst,
			MaxBodyBytes:      cfg.Limits.MaxBodyBytes,
		},
	)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("starting sandyq-api",
		zap.String("version", version),
		zap.String("addr", srv.Addr))

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	_ = srv.Shutdown(ctx)
	logger.Info("stopped")
}
