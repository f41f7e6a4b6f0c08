package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/clearledger/backoffice/internal/accounts"
	"github.com/clearledger/backoffice/internal/balances"
	"github.com/clearledger/backoffice/internal/consumers/inventory"
	"github.com/clearledger/backoffice/internal/consumers/orders"
	"github.com/clearledger/backoffice/internal/inbox"
	"github.com/clearledger/backoffice/internal/journal"
	"github.com/clearledger/backoffice/internal/periods"
	"github.com/clearledger/backoffice/internal/reconciliation"
	"github.com/clearledger/backoffice/pkg/config"
	"github.com/clearledger/backoffice/pkg/db"
	"github.com/clearledger/backoffice/pkg/logger"
	"github.com/clearledger/backoffice/pkg/metrics"
	"github.com/clearledger/backoffice/pkg/migrate"
	"github.com/clearledger/backoffice/pkg/outbox"
	"github.com/clearledger/backoffice/pkg/outbox/idempotency"
	"github.com/clearledger/backoffice/pkg/pubsub"
	"github.com/clearledger/backoffice/pkg/redis"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "ledger-worker"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "ledger-worker"

	logg = logger.New(logger.Options{
		ServiceName: "ledger-worker",
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

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer pubsubClient.Close()

	accountRepo := accounts.NewRepository(dbClient.DB())
	journalRepo := journal.NewRepository(dbClient.DB())
	periodRepo := periods.NewRepository(dbClient.DB())
	balanceRepo := balances.NewRepository(dbClient.DB())
	inboxRepo := inbox.NewRepository(dbClient.DB())
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	balanceService, err := balances.NewService(balanceRepo, accountRepo)
	requireResource(ctx, logg, "balance engine", err)

	draftCounter, err := journal.NewDraftCounter(journalRepo)
	requireResource(ctx, logg, "draft counter", err)

	reconCounter, err := reconciliation.NewUnbalancedCounter(reconciliation.NewRepository(dbClient.DB()))
	requireResource(ctx, logg, "reconciliation counter", err)

	periodService, err := periods.NewService(periodRepo, accountRepo, draftCounter, balanceService, reconCounter, dbClient, outboxService)
	requireResource(ctx, logg, "period service", err)

	journalService, err := journal.NewService(journalRepo, accountRepo, periodService, dbClient, outboxService, cfg.Ledger.EntryNumberPrefix)
	requireResource(ctx, logg, "journal service", err)

	manager, err := idempotency.NewManager(redisClient, cfg.Outbox.IdempotencyTTL)
	requireResource(ctx, logg, "idempotency manager", err)

	consumerMetrics := metrics.NewConsumerMetrics(prometheus.DefaultRegisterer)

	inventoryConsumer, err := inventory.NewConsumer(
		journalService,
		inboxRepo,
		accountRepo,
		pubsubClient.InventorySubscription(),
		manager,
		dbClient,
		cfg.Ledger,
		consumerMetrics,
		logg,
	)
	requireResource(ctx, logg, "inventory consumer", err)

	ordersConsumer, err := orders.NewConsumer(
		journalService,
		inboxRepo,
		accountRepo,
		pubsubClient.OrdersSubscription(),
		manager,
		dbClient,
		cfg.Ledger,
		consumerMetrics,
		logg,
	)
	requireResource(ctx, logg, "orders consumer", err)

	service, err := NewService(ServiceParams{
		Config:            cfg,
		Logger:            logg,
		DB:                dbClient,
		Redis:             redisClient,
		PubSub:            pubsubClient,
		InventoryConsumer: inventoryConsumer,
		OrdersConsumer:    ordersConsumer,
	})
	requireResource(ctx, logg, "worker service", err)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"serviceKind": cfg.Service.Kind,
		"env":         cfg.App.Env,
	})
	logg.Info(runCtx, "ledger worker ready")

	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "ledger worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(runCtx, "ledger worker shutting down gracefully")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
