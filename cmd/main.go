package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/legennd48/bazary/internal/adapters/catalog"
	httphandler "github.com/legennd48/bazary/internal/adapters/http"
	"github.com/legennd48/bazary/internal/adapters/messaging/kafka"
	"github.com/legennd48/bazary/internal/adapters/payment/chapa"
	"github.com/legennd48/bazary/internal/adapters/storage/postgres"
	"github.com/legennd48/bazary/internal/adapters/storage/redis"
	"github.com/legennd48/bazary/internal/app"
	"github.com/legennd48/bazary/internal/config"
	"github.com/legennd48/bazary/internal/core/domain"
	"github.com/legennd48/bazary/internal/core/ports"
	"github.com/legennd48/bazary/internal/observability"
)

const serviceName = "bazary-payments"

func domainPricing(cfg *config.Config) (domain.PricingPolicy, error) {
	return domain.NewPricingPolicy(
		cfg.Pricing.TaxRate,
		cfg.Pricing.ShippingFlat,
		cfg.Pricing.FreeShippingOver,
		cfg.Pricing.DefaultCurrency,
		cfg.Pricing.CurrencyDecimals,
	)
}

func main() {
	// --- 1. Configuration and Logging ---
	fallbackLogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fallbackLogger.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg.App.Env)
	logger.Info("Application starting", "env", cfg.App.Env, "port", cfg.Server.Port)

	// --- 2. Validate critical config ---
	if cfg.JWT.Secret == "" {
		logger.Error("JWT secret is not set")
		os.Exit(1)
	}
	if cfg.Chapa.SecretKey == "" {
		logger.Error("Chapa secret key is not set")
		os.Exit(1)
	}

	pricing, err := domainPricing(cfg)
	if err != nil {
		logger.Error("Invalid pricing config", "error", err)
		os.Exit(1)
	}

	// --- 3. Observability ---
	shutdownTracer, err := observability.InitTracer(cfg.Jaeger.Port, serviceName)
	if err != nil {
		logger.Error("Failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Warn("Failed to shutdown tracer", "error", err)
		}
	}()

	// --- 4. Dependencies ---
	ctx := context.Background()

	if err := postgres.Migrate(cfg.Postgres.DSN); err != nil {
		logger.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	pool, err := postgres.Connect(ctx, cfg.Postgres.DSN)
	if err != nil {
		logger.Error("Failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("Connected to PostgreSQL")

	cartRepo := postgres.NewCartRepository(pool)
	txRepo := postgres.NewTransactionRepository(pool)
	methodRepo := postgres.NewPaymentMethodRepository(pool)

	rateLimiterRepo, err := redis.NewRateLimiterAdapter(cfg.Redis.Addr)
	if err != nil {
		logger.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := rateLimiterRepo.Close(); err != nil {
			logger.Warn("Failed to close Redis connection", "error", err)
		}
	}()

	broker, err := kafka.NewBroker([]string{cfg.Kafka.BootstrapServers}, cfg.Kafka.Topic, logger)
	if err != nil {
		logger.Error("Failed to create Kafka broker", "error", err)
		os.Exit(1)
	}
	defer broker.Close()
	logger.Info("Kafka broker created")

	catalogGateway := catalog.NewHTTPGateway(cfg.Catalog.BaseURL, time.Duration(cfg.Catalog.TimeoutSeconds)*time.Second)
	chapaClient := chapa.NewClient(cfg.Chapa, cfg.Pricing.CurrencyDecimals, logger)
	gateways := map[string]ports.PaymentGateway{
		chapaClient.Name(): chapaClient,
	}
	providerNames := make([]string, 0, len(gateways))
	for name := range gateways {
		providerNames = append(providerNames, name)
	}

	// --- 5. Service Layer ---
	stock := app.NewStockValidator(catalogGateway, time.Duration(cfg.Catalog.TimeoutSeconds)*time.Second)
	cartService := app.NewCartService(cartRepo, stock, pricing, logger)
	paymentService := app.NewPaymentService(
		txRepo,
		cartService,
		gateways,
		broker,
		time.Duration(cfg.Chapa.TimeoutSeconds)*time.Second,
		logger,
	)

	cartHandler := httphandler.NewCartHandler(cartService, logger)
	paymentHandler := httphandler.NewPaymentHandler(paymentService, methodRepo, providerNames, logger)
	webhookHandler := httphandler.NewWebhookHandler(paymentService, gateways, logger)
	rateLimiterMiddleware := httphandler.NewRateLimiterMiddleware(rateLimiterRepo, logger, cfg.RateLimit.Requests, cfg.RateLimit.WindowSeconds)

	// --- 6. HTTP Router ---
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		rateLimiterMiddleware.Handler,
		middleware.Recoverer,
		observability.NewLoggerMiddleware(logger),
		observability.NewMetricsMiddleware(serviceName),
		observability.NewTracingMiddleware(serviceName),
	)

	// Public routes. Webhooks authenticate by signature, not session.
	r.Post("/webhooks/{provider}", webhookHandler.HandleWebhook)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(map[string]string{
			"status":  "healthy",
			"service": serviceName,
		}); err != nil {
			logger.Error("Failed to write health response", "error", err)
		}
	})
	r.Handle("/metrics", promhttp.Handler())

	// Protected routes: /api/v1/*
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httphandler.JWTMiddleware([]byte(cfg.JWT.Secret), logger))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartHandler.HandleGetCart)
			r.Get("/summary", cartHandler.HandleSummary)
			r.Post("/clear", cartHandler.HandleClear)
			r.Post("/items", cartHandler.HandleAddItem)
			r.Put("/items/{itemID}", cartHandler.HandleUpdateItemQuantity)
			r.Delete("/items/{itemID}", cartHandler.HandleRemoveItem)
		})

		r.Route("/payments", func(r chi.Router) {
			r.Get("/providers", paymentHandler.HandleListProviders)
			r.Get("/methods", paymentHandler.HandleListMethods)
			r.Post("/methods", paymentHandler.HandleCreateMethod)
			r.Post("/methods/{methodID}/default", paymentHandler.HandleSetDefaultMethod)
			r.Post("/transactions/initiate", paymentHandler.HandleInitiate)
			r.Post("/transactions/verify", paymentHandler.HandleVerify)
			r.Get("/transactions", paymentHandler.HandleList)
			r.Get("/transactions/{txID}", paymentHandler.HandleGet)
			r.Post("/transactions/{txID}/refund", paymentHandler.HandleRefund)
		})
	})

	// --- 7. HTTP Server ---
	serverAddr := cfg.Server.Port
	if serverAddr == "" {
		serverAddr = ":8080"
	}

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("HTTP server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", "error", err)
		os.Exit(1)
	}

	logger.Info("Server exited properly")
}
