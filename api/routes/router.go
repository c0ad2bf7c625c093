package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/credits-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/credits-backend/api/controllers/webhooks"
	"github.com/angelmondragon/credits-backend/api/middleware"
	"github.com/angelmondragon/credits-backend/pkg/config"
	"github.com/angelmondragon/credits-backend/pkg/db"
	"github.com/angelmondragon/credits-backend/pkg/logger"
	"github.com/angelmondragon/credits-backend/pkg/redis"
)

// Dependencies groups everything the router hands to controllers.
type Dependencies struct {
	DB                   db.Pinger
	Redis                redis.Pinger
	IdempotencyStore     redis.IdempotencyStore
	Gatherer             prometheus.Gatherer
	Credits              controllers.CreditsService
	AutoTopUp            controllers.AutoTopUpService
	StripeVerifier       webhookcontrollers.StripeEventVerifier
	StripeWebhookService webhookcontrollers.StripeWebhookService
	StripeWebhookGuard   webhookcontrollers.StripeWebhookGuard
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	pingers := map[string]controllers.Pinger{}
	if deps.DB != nil {
		pingers["db"] = deps.DB
	}
	if deps.Redis != nil {
		pingers["redis"] = deps.Redis
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, pingers, logg))
	})

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(deps.StripeWebhookService, deps.StripeVerifier, deps.StripeWebhookGuard, logg))
	})

	r.Route("/api/v1/credits", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(deps.IdempotencyStore, logg))

		r.Get("/", controllers.CreditSummary(deps.Credits, logg))
		r.Get("/usage", controllers.CreditUsage(deps.Credits, logg))
		r.Post("/gate", controllers.CreditGate(deps.Credits, logg))
		r.Post("/commit", controllers.CreditCommit(deps.Credits, logg))
		r.Put("/auto-top-up", controllers.SetAutoTopUp(deps.AutoTopUp, logg))
	})

	return r
}
