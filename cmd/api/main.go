package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/justcook/justcook-backend/api/controllers"
	"github.com/justcook/justcook-backend/api/routes"
	"github.com/justcook/justcook-backend/internal/cart"
	"github.com/justcook/justcook-backend/internal/checkout"
	"github.com/justcook/justcook-backend/internal/customers"
	"github.com/justcook/justcook-backend/internal/delivery"
	"github.com/justcook/justcook-backend/internal/orders"
	"github.com/justcook/justcook-backend/internal/pricing"
	"github.com/justcook/justcook-backend/internal/referrals"
	stripewebhook "github.com/justcook/justcook-backend/internal/webhooks/stripe"
	"github.com/justcook/justcook-backend/pkg/config"
	"github.com/justcook/justcook-backend/pkg/db"
	"github.com/justcook/justcook-backend/pkg/logger"
	"github.com/justcook/justcook-backend/pkg/maps"
	"github.com/justcook/justcook-backend/pkg/metrics"
	"github.com/justcook/justcook-backend/pkg/migrate"
	"github.com/justcook/justcook-backend/pkg/outbox"
	"github.com/justcook/justcook-backend/pkg/redis"
	"github.com/justcook/justcook-backend/pkg/stripe"
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
		Format:      cfg.App.LogFormat,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api exited with error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			err = multierr.Append(err, closers[i].Close())
		}
	}()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	closers = append(closers, dbClient)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	closers = append(closers, redisClient)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	commerce := metrics.NewCommerceMetrics(reg)

	cartStore, err := openCartStore(cfg.Cart, redisClient)
	if err != nil {
		return err
	}
	if c, ok := cartStore.(io.Closer); ok {
		closers = append(closers, c)
	}
	cartService, err := cart.NewService(cartStore)
	if err != nil {
		return err
	}

	mapsClient, err := maps.NewClient(cfg.GoogleMaps.APIKey,
		maps.WithBaseURL(cfg.GoogleMaps.BaseURL),
		maps.WithCountryHint(cfg.Delivery.CountryHint),
	)
	if err != nil {
		return err
	}
	bands, err := delivery.ParseBands(cfg.Delivery.Bands)
	if err != nil {
		return err
	}
	resolver, err := delivery.NewResolver(mapsClient, bands, cfg.Delivery, commerce, logg)
	if err != nil {
		return err
	}

	engine, err := pricing.NewEngine(cfg.Pricing)
	if err != nil {
		return err
	}

	customerRepo := customers.NewRepository(dbClient.DB())
	customerService, err := customers.NewService(customerRepo)
	if err != nil {
		return err
	}

	referralService, err := referrals.NewService(dbClient, referrals.NewRepository(dbClient.DB()), customerRepo, cfg.Referral, logg)
	if err != nil {
		return err
	}
	if n, err := referralService.Warm(ctx); err != nil {
		logg.Warn(logg.WithField(ctx, "error", err.Error()), "referral code filter warm-up failed")
	} else {
		logg.Info(logg.WithField(ctx, "codes", n), "referral code filter warmed")
	}

	orderRepo := orders.NewRepository(dbClient.DB())
	orderService, err := orders.NewService(orderRepo, logg)
	if err != nil {
		return err
	}

	stripeClient, err := stripe.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		return err
	}

	checkoutService, err := checkout.NewService(checkout.Dependencies{
		Customers: customerService,
		Quotes:    resolver,
		Referrals: referralService,
		Pricing:   engine,
		Payments:  stripeClient,
		Metrics:   commerce,
		Logger:    logg,
	}, checkout.Config{
		PublicBaseURL:          cfg.App.PublicBaseURL,
		SuccessPath:            cfg.Checkout.SuccessPath,
		CancelPath:             cfg.Checkout.CancelPath,
		LineItemName:           cfg.Checkout.LineItemName,
		Currency:               cfg.Pricing.Currency,
		TrustClientStudentFlag: cfg.Checkout.TrustClientStudentFlag,
	})
	if err != nil {
		return err
	}

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		TransactionRunner: dbClient,
		Orders:            orderRepo,
		Customers:         customerRepo,
		Referrals:         referralService,
		Outbox:            outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		Carts:             cartService,
		Metrics:           commerce,
		Logger:            logg,
	})
	if err != nil {
		return err
	}
	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Webhook.IdempotencyTTL, "stripe")
	if err != nil {
		return err
	}

	handler := routes.NewRouter(cfg, logg, routes.Dependencies{
		Store:          redisClient,
		Readiness:      map[string]controllers.Pinger{"db": dbClient, "redis": redisClient},
		Gatherer:       reg,
		Customers:      customerService,
		Referrals:      referralService,
		Carts:          cartService,
		Quotes:         resolver,
		Pricing:        engine,
		Checkout:       checkoutService,
		Orders:         orderService,
		WebhookService: webhookService,
		WebhookSecrets: stripeClient,
		WebhookGuard:   webhookGuard,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logCtx := logg.WithFields(ctx, map[string]any{
		"env":          cfg.App.Env,
		"addr":         addr,
		"cart_backend": cfg.Cart.Backend,
		"stripe_env":   stripeClient.Environment(),
	})
	logg.Info(logCtx, "starting api server")

	serveErr := make(chan error, 1)
	go func() {
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

func openCartStore(cfg config.CartConfig, redisClient *redis.Client) (cart.Store, error) {
	if cfg.Backend == config.CartBackendBolt {
		return cart.OpenBoltStore(cfg.BoltPath, cfg.TTL)
	}
	return cart.NewRedisStore(redisClient, cfg.TTL), nil
}
