package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/clearledger/backoffice/api/controllers"
	"github.com/clearledger/backoffice/api/routes"
	"github.com/clearledger/backoffice/internal/accounts"
	"github.com/clearledger/backoffice/internal/balances"
	"github.com/clearledger/backoffice/internal/depreciation"
	"github.com/clearledger/backoffice/internal/journal"
	"github.com/clearledger/backoffice/internal/periods"
	"github.com/clearledger/backoffice/internal/reconciliation"
	"github.com/clearledger/backoffice/internal/statements"
	"github.com/clearledger/backoffice/pkg/auth/session"
	"github.com/clearledger/backoffice/pkg/config"
	"github.com/clearledger/backoffice/pkg/currency"
	"github.com/clearledger/backoffice/pkg/db"
	"github.com/clearledger/backoffice/pkg/logger"
	"github.com/clearledger/backoffice/pkg/migrate"
	"github.com/clearledger/backoffice/pkg/outbox"
	"github.com/clearledger/backoffice/pkg/redis"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on process environment")
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	err = migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient)
	requireResource(ctx, logg, "migrations", err)

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer redisClient.Close()

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	requireResource(ctx, logg, "session manager", err)

	accountRepo := accounts.NewRepository(dbClient.DB())
	journalRepo := journal.NewRepository(dbClient.DB())
	periodRepo := periods.NewRepository(dbClient.DB())
	balanceRepo := balances.NewRepository(dbClient.DB())
	depreciationRepo := depreciation.NewRepository(dbClient.DB())
	reconRepo := reconciliation.NewRepository(dbClient.DB())
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	accountService, err := accounts.NewService(accountRepo)
	requireResource(ctx, logg, "account service", err)

	balanceService, err := balances.NewService(balanceRepo, accountRepo)
	requireResource(ctx, logg, "balance engine", err)

	reconCounter, err := reconciliation.NewUnbalancedCounter(reconRepo)
	requireResource(ctx, logg, "reconciliation counter", err)

	draftCounter, err := journal.NewDraftCounter(journalRepo)
	requireResource(ctx, logg, "draft counter", err)

	periodService, err := periods.NewService(periodRepo, accountRepo, draftCounter, balanceService, reconCounter, dbClient, outboxService)
	requireResource(ctx, logg, "period service", err)

	journalService, err := journal.NewService(journalRepo, accountRepo, periodService, dbClient, outboxService, cfg.Ledger.EntryNumberPrefix)
	requireResource(ctx, logg, "journal service", err)

	statementService, err := statements.NewService(balanceService, accountRepo, periodService)
	requireResource(ctx, logg, "statement service", err)

	depreciationService, err := depreciation.NewService(
		depreciationRepo,
		depreciation.NewRegistry(),
		accountRepo,
		journalService,
		dbClient,
		cfg.Ledger,
	)
	requireResource(ctx, logg, "depreciation service", err)

	reconciliationService, err := reconciliation.NewService(
		reconRepo,
		accountRepo,
		journalService,
		dbClient,
		cfg.Ledger,
		cfg.Recon,
	)
	requireResource(ctx, logg, "reconciliation service", err)

	converter, err := currency.NewConverter(cfg.Currency.USDToIDRRate)
	requireResource(ctx, logg, "currency converter", err)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}

	readiness := map[string]controllers.Pinger{
		"database": dbClient,
		"redis":    redisClient,
	}

	router := routes.NewRouter(cfg, logg, readiness, redisClient, sessionManager, routes.Services{
		Accounts:       accountService,
		Journal:        journalService,
		Periods:        periodService,
		Statements:     statementService,
		Depreciation:   depreciationService,
		Reconciliation: reconciliationService,
		Converter:      converter,
	})

	runCtx := logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"port": port,
	})
	logg.Info(runCtx, "api server listening")

	server := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(runCtx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
