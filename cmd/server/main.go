package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/segregate/internal/app"
	"github.com/iliyamo/segregate/internal/config"
	"github.com/iliyamo/segregate/internal/database"
	"github.com/iliyamo/segregate/internal/queue"
)

func main() {
	cfg := config.MustLoad()

	logger, err := config.NewLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, dialect, err := database.Connect(cfg)
	if err != nil {
		logger.Fatal("database connect failed", zap.String("driver", cfg.DBDriver), zap.Error(err))
	}
	defer db.Close()
	if err := database.Migrate(ctx, db, dialect); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}

	rdb := config.NewRedisClient(logger)
	if rdb != nil {
		defer rdb.Close()
	}

	a, err := app.New(app.Deps{
		Config:    cfg,
		RateLimit: config.LoadRateLimitConfig(),
		Cache:     config.LoadCacheConfig(),
		Logger:    logger,
		DB:        db,
		Redis:     rdb,
	})
	if err != nil {
		logger.Fatal("build server failed", zap.Error(err))
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("notifications not flushed", zap.Error(err))
		}
	}()

	if cfg.NotifyConsumer && cfg.RabbitURL != "" {
		consumer := queue.NewConsumer(cfg.RabbitURL, cfg.NotifyLogDir, logger.Named("notify-consumer"))
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("notification consumer stopped", zap.Error(err))
			}
		}()
	}

	addr := ":" + cfg.Port
	go func() {
		logger.Info("listening", zap.String("addr", addr), zap.String("db", string(dialect)))
		if err := a.Echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Echo.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
	}
}
