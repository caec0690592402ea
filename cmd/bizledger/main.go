package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bizledger/bizledger/internal/app"
	"github.com/bizledger/bizledger/internal/costing"
	"github.com/bizledger/bizledger/internal/invoicing"
	"github.com/bizledger/bizledger/internal/ledger"
	"github.com/bizledger/bizledger/internal/observability"
	"github.com/bizledger/bizledger/internal/platform/cache"
	"github.com/bizledger/bizledger/internal/platform/db"
	"github.com/bizledger/bizledger/internal/pos"
	"github.com/bizledger/bizledger/internal/recon"
	"github.com/bizledger/bizledger/internal/reports"
	"github.com/bizledger/bizledger/internal/sequence"
	"github.com/bizledger/bizledger/internal/shared"
	"github.com/bizledger/bizledger/internal/tax"
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
		logger.Warn("redis unavailable, report caching disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	seqService := sequence.NewService()

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, auditLogger, seqService)

	costingRepo := costing.NewRepository(pool)
	costingService := costing.NewService(costingRepo, auditLogger)

	reconRepo := recon.NewRepository(pool)
	reconService := recon.NewService(reconRepo, recon.NewGLReader(pool))

	reportsCache := reports.NewCache(redisClient, cfg.ReportCacheTTL)
	reportsService := reports.NewService(reports.NewReader(pool), reportsCache, logger)

	invoicingRepo := invoicing.NewRepository(pool)
	invoicingService := invoicing.NewService(invoicingRepo, ledgerService, costingService, reconService, seqService, auditLogger, invoicing.DefaultAccountCodes())
	invoicingService.WithCache(reportsCache)

	posRepo := pos.NewRepository(pool)
	posService := pos.NewService(posRepo, ledgerService, seqService, auditLogger, pos.DefaultAccountCodes())

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Metrics:          metrics,
		LedgerHandler:    ledger.NewHandler(logger, ledgerService),
		TaxHandler:       tax.NewHandler(logger),
		CostingHandler:   costing.NewHandler(logger, costingService),
		ReconHandler:     recon.NewHandler(logger, reconService),
		SequenceHandler:  sequence.NewHandler(logger, seqService, pool),
		ReportsHandler:   reports.NewHandler(logger, reportsService),
		InvoicingHandler: invoicing.NewHandler(logger, invoicingService, idempotencyStore),
		POSHandler:       pos.NewHandler(logger, posService),
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
