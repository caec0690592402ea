package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/bizledger/bizledger/internal/app"
	"github.com/bizledger/bizledger/internal/platform/cache"
	"github.com/bizledger/bizledger/internal/platform/db"
	"github.com/bizledger/bizledger/internal/recon"
	"github.com/bizledger/bizledger/internal/reports"
	"github.com/bizledger/bizledger/internal/shared"
	"github.com/bizledger/bizledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	reconService := recon.NewService(recon.NewRepository(pool), recon.NewGLReader(pool))
	reportsCache := reports.NewCache(redisClient, cfg.ReportCacheTTL)
	reportsService := reports.NewService(reports.NewReader(pool), reportsCache, logger)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	reconJob := jobs.NewReconSweepJob(reconService, pool, logger, nil)
	integrityJob := jobs.NewLedgerIntegrityJob(pool, logger, nil)
	warmupJob := jobs.NewReportsWarmupJob(reportsService, pool, logger, nil)
	cleanupJob := jobs.NewIdempotencyCleanupJob(idempotencyStore, logger, nil)

	reconTask, err := jobs.NewReconSweepTask(jobs.ReconSweepPayload{})
	if err != nil {
		logger.Error("build recon task", slog.Any("error", err))
		os.Exit(1)
	}
	integrityTask, err := jobs.NewLedgerIntegrityTask(time.Now().UTC())
	if err != nil {
		logger.Error("build integrity task", slog.Any("error", err))
		os.Exit(1)
	}
	warmupTask, err := jobs.NewReportsWarmupTask(time.Now().UTC())
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewIdempotencyCleanupTask(cfg.IdempotencyRetention)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskReconSweep, Handler: reconJob.Handle},
			{Type: jobs.TaskLedgerIntegrity, Handler: integrityJob.Handle},
			{Type: jobs.TaskReportsWarmup, Handler: warmupJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 1 * * *", Task: integrityTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "15 1 * * *", Task: reconTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 1 * * *", Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 2 * * 0", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
