package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/d60-Lab/livesync/config"
	"github.com/d60-Lab/livesync/internal/api"
	"github.com/d60-Lab/livesync/internal/service"
	"github.com/d60-Lab/livesync/pkg/database"
	"github.com/d60-Lab/livesync/pkg/logger"
	"github.com/d60-Lab/livesync/pkg/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if err := logger.Init(logger.Options{
		Level:       cfg.App.LogLevel,
		Development: cfg.App.Env == "development",
		SentryDSN:   cfg.Sentry.DSN,
		Environment: cfg.App.Env,
	}); err != nil {
		panic(err)
	}
	defer logger.Sync()
	if cfg.App.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg)
	if err != nil {
		logger.Error("tracing setup", zap.Error(err))
		os.Exit(1)
	}

	db, err := database.InitDB(cfg)
	if err != nil {
		logger.Error("init db", zap.Error(err))
		os.Exit(1)
	}
	if cfg.Server.Seed {
		if err := service.Seed(ctx, db); err != nil {
			logger.Error("seed", zap.Error(err))
			os.Exit(1)
		}
	}

	srv := api.NewServer(cfg, db)
	srv.Start()
	httpSrv := &http.Server{Addr: cfg.Server.Addr, Handler: srv.Engine, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("devserver listening", zap.String("addr", cfg.Server.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Warn("fanout shutdown", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown", zap.Error(err))
	}
	logger.Info("devserver stopped")
}
