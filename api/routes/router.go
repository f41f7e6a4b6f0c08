package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clearledger/backoffice/api/controllers"
	"github.com/clearledger/backoffice/api/middleware"
	"github.com/clearledger/backoffice/internal/accounts"
	"github.com/clearledger/backoffice/internal/depreciation"
	"github.com/clearledger/backoffice/internal/journal"
	"github.com/clearledger/backoffice/internal/periods"
	"github.com/clearledger/backoffice/internal/reconciliation"
	"github.com/clearledger/backoffice/internal/statements"
	"github.com/clearledger/backoffice/pkg/auth/session"
	"github.com/clearledger/backoffice/pkg/config"
	"github.com/clearledger/backoffice/pkg/currency"
	"github.com/clearledger/backoffice/pkg/logger"
	"github.com/clearledger/backoffice/pkg/redis"
)

// CacheStore is the redis surface the middleware stack depends on.
type CacheStore interface {
	redis.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Services bundles the domain services the router exposes.
type Services struct {
	Accounts       accounts.Service
	Journal        journal.Service
	Periods        periods.Service
	Statements     statements.Service
	Depreciation   depreciation.Service
	Reconciliation reconciliation.Service
	Converter      *currency.Converter
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	readiness map[string]controllers.Pinger,
	cache CacheStore,
	sessions session.AccessSessionChecker,
	services Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	closePolicy := middleware.NewWriteRateLimitPolicy(
		"period-close",
		cfg.RateLimit.CloseWindow,
		cfg.RateLimit.CloseIPLimit,
		cfg.RateLimit.CloseUserLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, sessions, logg))
		r.Use(middleware.Idempotency(cache, logg))

		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", controllers.AccountList(services.Accounts, logg))
			r.Get("/tree", controllers.AccountTree(services.Accounts, logg))
			r.Get("/{id}", controllers.AccountGet(services.Accounts, logg))
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireWriter(logg))
				r.Post("/", controllers.AccountCreate(services.Accounts, logg))
				r.Patch("/{id}", controllers.AccountUpdate(services.Accounts, logg))
				r.Delete("/{id}", controllers.AccountDeactivate(services.Accounts, logg))
			})
		})

		r.Route("/journal-entries", func(r chi.Router) {
			r.Get("/", controllers.JournalList(services.Journal, logg))
			r.Get("/{id}", controllers.JournalGet(services.Journal, logg))
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireWriter(logg))
				r.Post("/", controllers.JournalCreate(services.Journal, logg))
				r.Post("/{id}/post", controllers.JournalPost(services.Journal, logg))
				r.Post("/{id}/void", controllers.JournalVoid(services.Journal, logg))
			})
		})

		r.Route("/fiscal-periods", func(r chi.Router) {
			r.Get("/", controllers.PeriodList(services.Periods, logg))
			r.Get("/{year}/{month}", controllers.PeriodGet(services.Periods, logg))
			r.Get("/{year}/{month}/close-checklist", controllers.PeriodCloseChecklist(services.Periods, logg))
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireWriter(logg))
				r.With(middleware.WriteRateLimit(closePolicy, cache, logg)).
					Post("/{year}/{month}/close", controllers.PeriodClose(services.Periods, logg))
				r.Post("/{year}/{month}/reopen", controllers.PeriodReopen(services.Periods, logg))
			})
			r.With(middleware.RequireAdmin(logg)).
				Post("/{year}/{month}/lock", controllers.PeriodLock(services.Periods, logg))
		})

		r.Route("/statements", func(r chi.Router) {
			r.Get("/trial-balance", controllers.TrialBalance(services.Statements, logg))
			r.Get("/income-statement", controllers.IncomeStatement(services.Statements, logg))
			r.Get("/balance-sheet", controllers.BalanceSheet(services.Statements, logg))
			r.Get("/cash-flow", controllers.CashFlow(services.Statements, logg))
		})

		r.Get("/currency/convert", controllers.CurrencyConvert(services.Converter, logg))

		r.Route("/depreciation", func(r chi.Router) {
			r.Get("/assets", controllers.AssetList(services.Depreciation, logg))
			r.Get("/assets/{id}", controllers.AssetGet(services.Depreciation, logg))
			r.Get("/assets/{id}/schedule", controllers.AssetSchedulePreview(services.Depreciation, logg))
			r.Get("/runs", controllers.DepreciationRunList(services.Depreciation, logg))
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireWriter(logg))
				r.Post("/assets", controllers.AssetRegister(services.Depreciation, logg))
				r.Post("/assets/{id}/dispose", controllers.AssetDispose(services.Depreciation, logg))
				r.Post("/runs", controllers.DepreciationRun(services.Depreciation, logg))
			})
		})

		r.Route("/reconciliations", func(r chi.Router) {
			r.Get("/", controllers.ReconciliationList(services.Reconciliation, logg))
			r.Get("/{id}", controllers.ReconciliationGet(services.Reconciliation, logg))
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireWriter(logg))
				r.Post("/transactions", controllers.BankTransactionsImport(services.Reconciliation, logg))
				r.Post("/", controllers.Reconcile(services.Reconciliation, logg))
			})
		})
	})

	return r
}
