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

	"github.com/snackline/snackline/internal/accounts"
	"github.com/snackline/snackline/internal/analytics"
	"github.com/snackline/snackline/internal/app"
	"github.com/snackline/snackline/internal/assignments"
	"github.com/snackline/snackline/internal/audit"
	"github.com/snackline/snackline/internal/auth"
	"github.com/snackline/snackline/internal/catalog"
	"github.com/snackline/snackline/internal/ledger"
	"github.com/snackline/snackline/internal/observability"
	"github.com/snackline/snackline/internal/orders"
	"github.com/snackline/snackline/internal/platform/cache"
	"github.com/snackline/snackline/internal/platform/db"
	"github.com/snackline/snackline/internal/receipts"
	"github.com/snackline/snackline/internal/sales"
	"github.com/snackline/snackline/internal/shared"
	"github.com/snackline/snackline/internal/storefront"
	"github.com/snackline/snackline/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolConfig{
		MaxConns:     cfg.PGMaxConns,
		QueryTimeout: cfg.PGQueryTimeout,
	})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	tokens := auth.NewTokenStore(redisClient, cfg.TokenSecret, cfg.TokenTTL)
	authService := auth.NewService(auth.NewRepository(pool), tokens)
	authHandler := auth.NewHandler(logger, authService)

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	accountsService := accounts.NewService(accounts.NewRepository(pool))
	accountsHandler := accounts.NewHandler(logger, accountsService)

	catalogService := catalog.NewService(catalog.NewRepository(pool))
	catalogHandler := catalog.NewHandler(logger, catalogService)

	assignmentsService := assignments.NewService(assignments.NewRepository(pool), accountsService)
	assignmentsHandler := assignments.NewHandler(logger, assignmentsService)

	jobsClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})

	ledgerRepo := ledger.NewPGRepository(pool, cfg.LedgerTxAttempts)
	analyticsCache := analytics.NewCache(redisClient, cfg.AnalyticsCacheTTL)
	balances := ledger.NewBalanceCalculator(ledgerRepo, accountsService, assignmentsService, catalogService, auditLogger, jobsClient, analyticsCache, logger)
	ledgerHandler := ledger.NewHandler(logger, balances, idempotencyStore)

	ordersService := orders.NewService(orders.NewRepository(pool, cfg.LedgerTxAttempts), balances, assignmentsService, catalogService, accountsService, logger)
	ordersHandler := orders.NewHandler(logger, ordersService)

	salesService := sales.NewService(sales.NewRepository(pool), assignmentsService, catalogService, accountsService, cfg.SalesCommissionRate, logger)
	salesHandler := sales.NewHandler(logger, salesService)

	receiptsService := receipts.NewService(receipts.NewRepository(pool), ordersService, balances, accountsService, logger)
	receiptsHandler := receipts.NewHandler(logger, receiptsService)

	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	storefrontService := storefront.NewService(storefront.NewRepository(pool, cfg.LedgerTxAttempts), catalogService, jobsClient, logger)
	storefrontHandler := storefront.NewHandler(logger, storefrontService)

	analyticsService := analytics.NewService(analytics.NewRepository(pool), ledgerRepo, analyticsCache)
	analyticsHandler := analytics.NewHandler(logger, analyticsService)
	go func() {
		if err := analyticsCache.ListenForInvalidation(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("analytics invalidation listener", slog.Any("error", err))
		}
	}()

	auditHandler := audit.NewHandler(logger, audit.NewService(audit.NewRepository(pool)))

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Tokens:             tokens,
		AuthHandler:        authHandler,
		AccountsHandler:    accountsHandler,
		CatalogHandler:     catalogHandler,
		AssignmentsHandler: assignmentsHandler,
		LedgerHandler:      ledgerHandler,
		OrdersHandler:      ordersHandler,
		SalesHandler:       salesHandler,
		ReceiptsHandler:    receiptsHandler,
		StorefrontHandler:  storefrontHandler,
		AnalyticsHandler:   analyticsHandler,
		AuditHandler:       auditHandler,
		JobHandler:         jobHandler,
		Metrics:            metrics,
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
