package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dawaly/dawaly/internal/app"
	"github.com/dawaly/dawaly/internal/assignment"
	"github.com/dawaly/dawaly/internal/directory"
	"github.com/dawaly/dawaly/internal/observability"
	"github.com/dawaly/dawaly/internal/platform/cache"
	"github.com/dawaly/dawaly/internal/platform/db"
	"github.com/dawaly/dawaly/internal/referral"
	"github.com/dawaly/dawaly/internal/revenue"
	"github.com/dawaly/dawaly/internal/revenue/export"
	"github.com/dawaly/dawaly/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis connect", slog.Any("error", err))
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	revenueCache := revenue.NewCache(redisClient, cfg.RevenueCacheTTL)
	if err := revenueCache.ListenForInvalidation(ctx, ""); err != nil {
		logger.Warn("cache invalidation listener", slog.Any("error", err))
	}

	csvExporter := export.CSV{}

	directoryRepo := directory.NewRepository(pool)
	directoryService := directory.NewService(directoryRepo)
	directoryHandler := directory.NewHandler(logger, directoryService)

	referralRepo := referral.NewRepository(pool)
	referralService := referral.NewService(referralRepo)
	referralHandler := referral.NewHandler(logger, referralService, csvExporter)

	revenueRepo := revenue.NewRepository(pool)
	revenueService := revenue.NewService(revenueRepo, revenueCache, cfg.TopPerformers)
	revenueHandler := revenue.NewHandler(logger, revenueService, csvExporter)

	assignmentRepo := assignment.NewRepository(pool)
	assignmentService := assignment.NewService(logger, assignmentRepo, revenueRepo, revenueCache)
	assignmentHandler := assignment.NewHandler(logger, assignmentService, csvExporter)

	metrics := observability.NewMetrics()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		Metrics:           metrics,
		DirectoryHandler:  directoryHandler,
		ReferralHandler:   referralHandler,
		AssignmentHandler: assignmentHandler,
		RevenueHandler:    revenueHandler,
		JobHandler:        jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
