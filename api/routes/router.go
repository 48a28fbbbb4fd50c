package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/justcook/justcook-backend/api/controllers"
	webhookcontrollers "github.com/justcook/justcook-backend/api/controllers/webhooks"
	"github.com/justcook/justcook-backend/api/middleware"
	"github.com/justcook/justcook-backend/internal/cart"
	"github.com/justcook/justcook-backend/internal/checkout"
	"github.com/justcook/justcook-backend/internal/customers"
	"github.com/justcook/justcook-backend/internal/delivery"
	"github.com/justcook/justcook-backend/internal/orders"
	"github.com/justcook/justcook-backend/internal/pricing"
	"github.com/justcook/justcook-backend/internal/referrals"
	stripewebhook "github.com/justcook/justcook-backend/internal/webhooks/stripe"
	"github.com/justcook/justcook-backend/pkg/config"
	"github.com/justcook/justcook-backend/pkg/enums"
	"github.com/justcook/justcook-backend/pkg/logger"
)

// Store backs idempotency replay and IP rate limiting.
type Store interface {
	middleware.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Dependencies groups everything the router hands to controllers.
type Dependencies struct {
	Store          Store
	Readiness      map[string]controllers.Pinger
	Gatherer       prometheus.Gatherer
	Customers      customers.Service
	Referrals      *referrals.Service
	Carts          cart.Service
	Quotes         delivery.QuoteResolver
	Pricing        *pricing.Engine
	Checkout       *checkout.Service
	Orders         orders.Service
	WebhookService webhookcontrollers.StripeWebhookService
	WebhookSecrets interface{ SigningSecret() string }
	WebhookGuard   *stripewebhook.IdempotencyGuard
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.AllowedOrigins()),
	)

	referralPolicy := middleware.NewRateLimitPolicy("referral_validate", cfg.RateLimit.ReferralWindow, cfg.RateLimit.ReferralIPLimit)
	quotePolicy := middleware.NewRateLimitPolicy("delivery_quote", cfg.RateLimit.QuoteWindow, cfg.RateLimit.QuoteIPLimit)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, deps.Readiness, logg))
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(deps.WebhookService, deps.WebhookSecrets, deps.WebhookGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Idempotency(deps.Store, logg))

		r.Route("/customers", func(r chi.Router) {
			r.Post("/", controllers.CreateCustomer(deps.Customers, logg))
			r.Route("/{customerId}", func(r chi.Router) {
				r.Get("/", controllers.GetCustomer(deps.Customers, logg))
				r.Get("/rewards", controllers.CustomerRewards(deps.Referrals, logg))
				r.Get("/active-order", controllers.ActiveOrder(deps.Orders, logg))
				r.Route("/cart", func(r chi.Router) {
					r.Get("/", controllers.CartGet(deps.Carts, logg))
					r.Post("/lines", controllers.CartAdd(deps.Carts, logg))
					r.Delete("/lines/{productId}", controllers.CartRemove(deps.Carts, logg))
					r.Delete("/", controllers.CartClear(deps.Carts, logg))
				})
			})
		})

		r.With(middleware.RateLimit(quotePolicy, deps.Store, logg)).
			Post("/delivery/quote", controllers.DeliveryQuote(deps.Quotes, deps.Pricing, deps.Customers, logg))
		r.With(middleware.RateLimit(referralPolicy, deps.Store, logg)).
			Post("/referrals/validate", controllers.ValidateReferral(deps.Referrals, logg))
		r.Post("/checkout", controllers.Checkout(deps.Checkout, deps.Carts, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.StaffAuth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(enums.StaffRoleStaff, logg))
		r.Use(middleware.Idempotency(deps.Store, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.AdminListOrders(deps.Orders, logg))
			r.Get("/{orderId}", controllers.AdminGetOrder(deps.Orders, logg))
			r.Post("/{orderId}/status", controllers.AdminAdvanceOrderStatus(deps.Orders, logg))
		})
		r.Patch("/customers/{customerId}/student", controllers.AdminSetStudent(deps.Customers, logg))
	})

	return r
}
