package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/angelmondragon/credits-backend/api/routes"
	"github.com/angelmondragon/credits-backend/internal/billing"
	"github.com/angelmondragon/credits-backend/internal/credits"
	stripewebhook "github.com/angelmondragon/credits-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/credits-backend/pkg/config"
	"github.com/angelmondragon/credits-backend/pkg/db"
	"github.com/angelmondragon/credits-backend/pkg/logger"
	"github.com/angelmondragon/credits-backend/pkg/metrics"
	"github.com/angelmondragon/credits-backend/pkg/migrate"
	"github.com/angelmondragon/credits-backend/pkg/redis"
	"github.com/angelmondragon/credits-backend/pkg/stripe"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	repo := credits.NewRepository(dbClient.DB())
	creditService, err := credits.NewService(credits.ServiceParams{
		Repo:              repo,
		TransactionRunner: dbClient,
		Economics:         credits.EconomicsFromConfig(cfg.Credits),
		Logger:            logg,
		Metrics:           metrics.NewCreditMetrics(registry),
	})
	if err != nil {
		return err
	}

	billingService, err := billing.NewService(billing.ServiceParams{
		Repo:              repo,
		TransactionRunner: dbClient,
		Ledger:            creditService.Ledger(),
		Logger:            logg,
	})
	if err != nil {
		return err
	}

	stripeClient, err := stripe.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		return err
	}
	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Billing: billingService,
		Logger:  logg,
		Metrics: metrics.NewWebhookMetrics(registry),
	})
	if err != nil {
		return err
	}
	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Eventing.WebhookIdempotencyTTL, "stripe-webhook")
	if err != nil {
		return err
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, routes.Dependencies{
			DB:                   dbClient,
			Redis:                redisClient,
			IdempotencyStore:     redisClient,
			Gatherer:             registry,
			Credits:              creditService,
			AutoTopUp:            billingService,
			StripeVerifier:       stripeClient,
			StripeWebhookService: webhookService,
			StripeWebhookGuard:   webhookGuard,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(logCtx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logg.Info(logCtx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
