package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"

	"github.com/guildpay/ledger-engine/internal/audit"
	"github.com/guildpay/ledger-engine/internal/distribution"
	"github.com/guildpay/ledger-engine/internal/ledger"
	"github.com/guildpay/ledger-engine/internal/metrics"
	"github.com/guildpay/ledger-engine/internal/position"
	"github.com/guildpay/ledger-engine/internal/pricefeed"
	"github.com/guildpay/ledger-engine/internal/store"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	// .env is optional; real deployments set the environment directly.
	godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := envOr("PORT", "8080")
	dataDir := envOr("DATA_DIR", "data")

	startingBalance, err := decimal.NewFromString(envOr("STARTING_BALANCE", "100000"))
	if err != nil {
		slog.Error("invalid STARTING_BALANCE", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()
	var cleanup []func()

	// --- Snapshot store and audit log ---
	var (
		st      store.Store
		auditLg audit.Log
		fileLog *audit.FileLog // non-nil when rotation applies
	)

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)

		pgStore := store.NewPostgresStore(pool)
		pgLog := audit.NewPostgresLog(pool)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			slog.Error("accounts schema setup failed", "err", err)
			os.Exit(1)
		}
		if err := pgLog.EnsureSchema(ctx); err != nil {
			slog.Error("ledger schema setup failed", "err", err)
			os.Exit(1)
		}
		st, auditLg = pgStore, pgLog
		slog.Info("connected to PostgreSQL")
	} else {
		st = store.NewFileStore(filepath.Join(dataDir, "accounts.json"))
		fileLog = audit.NewFileLog(filepath.Join(dataDir, "ledger.jsonl"))
		auditLg = fileLog
		slog.Info("using file-backed stores", "dir", dataDir)
	}

	// --- Price source ---
	var prices pricefeed.Source
	if apiURL := os.Getenv("PRICE_API_URL"); apiURL != "" {
		prices = pricefeed.NewHTTPSource(apiURL)
		slog.Info("price feed configured", "url", apiURL)
	} else {
		slog.Warn("PRICE_API_URL not set, prices must be supplied per request")
		prices = pricefeed.NewStatic(nil)
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		prices = pricefeed.NewCached(prices, rdb, 30*time.Second)
		slog.Info("Redis price cache enabled")
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Event hub ---
	hub := ledger.NewHub()
	go hub.Run()

	// --- Services ---
	ledgerSvc := ledger.NewService(ctx, st, auditLg, hub, startingBalance)
	positionEng := position.NewEngine(ledgerSvc, prices)
	distributionEng := distribution.NewEngine(ledgerSvc,
		distribution.NewFileEventStore(filepath.Join(dataDir, "distributions.json")))

	// --- Scheduled maintenance ---
	sched := cron.New()
	if fileLog != nil {
		// Nightly audit rotation keeps the hot file scan-sized.
		sched.AddFunc("0 3 * * *", func() {
			if err := fileLog.Rotate(); err != nil {
				slog.Error("audit rotation failed", "err", err)
			}
		})
	}
	// Keep the account gauge honest even when no operations run.
	sched.AddFunc("@every 1m", func() {
		metrics.Accounts.Set(float64(ledgerSvc.AccountCount()))
	})
	sched.Start()
	defer sched.Stop()

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"ledger-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket stream of committed ledger entries.
		r.Get("/ws", hub.HandleWS)

		// Balance operations.
		r.Get("/accounts/{accountID}/balance", ledgerSvc.HandleBalance)
		r.Post("/accounts/{accountID}/credit", ledgerSvc.HandleCredit)
		r.Post("/accounts/{accountID}/debit", ledgerSvc.HandleDebit)
		r.Post("/accounts/{accountID}/claim", ledgerSvc.HandleClaim)
		r.Post("/transfer", ledgerSvc.HandleTransfer)

		// Leveraged positions.
		r.Post("/positions/buy", positionEng.HandleBuy)
		r.Post("/positions/sell", positionEng.HandleSell)
		r.Get("/accounts/{accountID}/portfolio", positionEng.HandlePortfolio)
		r.Get("/accounts/{accountID}/portfolio/value", positionEng.HandlePortfolioValue)
		r.Post("/accounts/{accountID}/liquidate", positionEng.HandleLiquidate)

		// Cash distributions.
		r.Post("/distributions", distributionEng.HandleProcess)
		r.Get("/distributions", distributionEng.HandleList)

		// Audit queries.
		r.Get("/accounts/{accountID}/ledger", ledgerSvc.HandleAuditByAccount)
		r.Get("/ledger", ledgerSvc.HandleAuditByTimeRange)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("ledger-engine listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down ledger-engine...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("ledger-engine stopped")
}
