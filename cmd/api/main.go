package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"metacoin-ledger/config"
	httpHandler "metacoin-ledger/internal/adapter/http/handler"
	"metacoin-ledger/internal/adapter/http/middleware"
	"metacoin-ledger/internal/adapter/storage/memory"
	pgStorage "metacoin-ledger/internal/adapter/storage/postgres"
	redisStorage "metacoin-ledger/internal/adapter/storage/redis"
	"metacoin-ledger/internal/core/ports"
	"metacoin-ledger/internal/service"
	"metacoin-ledger/pkg/logger"

	"github.com/rs/zerolog"
)

// ledgerStore is the journal plus the history it serves.
type ledgerStore interface {
	ports.Journal
	ports.TransferStore
}

func main() {
	// Load configuration
	cfg, err := config.Load(os.Getenv("MTC_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Str("store", cfg.Ledger.Store).
		Msg("Starting MetaCoin ledger")

	settings, err := service.NewLedgerSettings(cfg.Ledger)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid ledger accounts")
	}

	ctx := context.Background()
	var healthCheckers []ports.HealthChecker

	// Journal and history store
	var store ledgerStore
	switch cfg.Ledger.Store {
	case config.StorePostgres:
		pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer pool.Close()
		if err := pgStorage.Migrate(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply schema")
		}
		log.Info().Msg("PostgreSQL connected")
		store = pgStorage.NewJournal(pool)
		healthCheckers = append(healthCheckers, pgStorage.NewHealthCheck(pool))
	default:
		log.Warn().Msg("Using in-memory ledger store, state is lost on restart")
		store = memory.NewStore()
	}

	// Redis-backed receipt cache, event fan-out and rate limiting
	var (
		receiptCache   ports.ReceiptCache
		publisher      ports.EventPublisher
		rateLimitStore *redisStorage.RateLimitStore
	)
	if cfg.Redis.Enabled {
		rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
		receiptCache = redisStorage.NewReceiptCache(rdb)
		publisher = redisStorage.NewEventPublisher(rdb, cfg.Redis.Channel)
		rateLimitStore = redisStorage.NewRateLimitStore(rdb)
		healthCheckers = append(healthCheckers, redisStorage.NewHealthCheck(rdb))
	}

	// Webhook observer
	var (
		webhooks ports.WebhookService
		notifier *service.WebhookNotifier
	)
	if cfg.Webhook.URL != "" {
		notifier = service.NewWebhookNotifier(
			cfg.Webhook.URL,
			cfg.Webhook.Secret,
			service.NewHMACSignatureService(),
			&http.Client{Timeout: cfg.Webhook.Timeout},
			cfg.Webhook.MaxRetries,
			logger.Component(log, "webhook"),
		)
		webhooks = notifier
	}

	// Ledger
	l, err := service.Bootstrap(ctx, settings, store, logger.Component(log, "ledger"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to bootstrap ledger")
	}

	contractSvc := service.NewContractService(
		l,
		settings,
		store,
		receiptCache,
		publisher,
		webhooks,
		logger.Component(log, "contract"),
	)
	historySvc := service.NewHistoryService(store)
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		ContractSvc:    contractSvc,
		HistorySvc:     historySvc,
		TokenSvc:       tokenSvc,
		RateLimitStore: rateLimitStore,
		RateLimitRules: middleware.RateLimitRules(cfg.RateLimit),
		HealthCheckers: healthCheckers,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		Mode:           cfg.Server.Mode,
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	drainWebhooks(shutdownCtx, notifier, log)

	log.Info().Msg("Server exited")
}

// drainWebhooks waits for in-flight deliveries until ctx expires.
func drainWebhooks(ctx context.Context, notifier *service.WebhookNotifier, log zerolog.Logger) {
	if notifier == nil {
		return
	}
	if err := notifier.Wait(ctx); err != nil {
		log.Warn().Err(err).Msg("Webhook deliveries still pending at shutdown")
	}
}
