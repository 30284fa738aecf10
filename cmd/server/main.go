package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/velurapp/velura/internal"
	"github.com/velurapp/velura/internal/billing"
	"github.com/velurapp/velura/internal/handler"
	"github.com/velurapp/velura/internal/metrics"
	"github.com/velurapp/velura/internal/middleware"
	"github.com/velurapp/velura/internal/repository"
	"github.com/velurapp/velura/internal/service"
	"github.com/velurapp/velura/internal/sweep"
)

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize database connection
	db, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	// Run migrations
	if err := internal.RunMigrations(db); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database ready")

	// Initialize repository
	store := repository.NewStore(db)

	// Initialize services
	catalogService := service.NewCatalogService(store, logger)
	subscriptionService := service.NewSubscriptionService(store, store, logger)
	quotaService := service.NewQuotaService(store, store, logger)
	featureService := service.NewFeatureService(store, logger)

	// Initialize billing (nil when Stripe is not configured)
	var billingService billing.Service
	if cfg.StripeSecretKey != "" {
		billingService = billing.NewStripeService(cfg.StripeSecretKey, cfg.StripeWebhookSecret, billing.PriceConfig{
			ProMonthlyPriceID:     cfg.StripeProMonthlyPriceID,
			ProAnnualPriceID:      cfg.StripeProAnnualPriceID,
			PremiumMonthlyPriceID: cfg.StripePremiumMonthlyPriceID,
			PremiumAnnualPriceID:  cfg.StripePremiumAnnualPriceID,
		})
		logger.Info("Stripe billing enabled")
	} else {
		logger.Warn("Stripe billing disabled, no secret key configured")
	}

	// Initialize middleware
	isSecure := cfg.Env != "development"
	tenantAuth := middleware.NewTenantAuth(logger)
	adminAuth := middleware.NewAdminAuth(cfg.AdminAPIToken, logger)
	limiter := middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow, logger)
	rateLimit := middleware.NewRateLimitMiddleware(limiter, logger)
	security := middleware.NewSecurityHeadersMiddleware(isSecure)
	requestLogging := middleware.NewRequestLoggingMiddleware(logger)

	requireTenant := middleware.Stack(rateLimit.Limit, tenantAuth.RequireTenant)
	requireAdmin := adminAuth.RequireAdmin

	// Initialize handlers
	tierHandler := handler.NewTierHandler(catalogService, logger)
	quotaHandler := handler.NewQuotaHandler(quotaService, featureService, logger)
	subscriptionHandler := handler.NewSubscriptionHandler(subscriptionService, logger)
	billingHandler := handler.NewBillingHandler(billingService, cfg.BaseURL, logger)
	webhookHandler := handler.NewWebhookHandler(billingService, subscriptionService, logger)

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics, optionally behind basic auth
	metricsAuth := middleware.NewMetricsAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword)
	mux.Handle("GET /metrics", metricsAuth.Handler(promhttp.Handler()))

	tierHandler.RegisterRoutes(mux)
	quotaHandler.RegisterRoutes(mux, requireTenant)
	subscriptionHandler.RegisterRoutes(mux, requireTenant, requireAdmin)
	billingHandler.RegisterRoutes(mux, requireTenant)
	webhookHandler.RegisterRoutes(mux)

	// Outer middleware applies to every route
	root := middleware.Stack(
		requestLogging.Handler,
		metrics.Middleware,
		security.Handler,
	)(mux)

	// ==========================================================================
	// Start sweep scheduler
	// ==========================================================================

	var sweeper *sweep.Runner
	if cfg.SweepEnabled {
		sweeper = sweep.NewRunner(subscriptionService, cfg.SweepSchedule, logger)
		if err := sweeper.Start(); err != nil {
			return fmt.Errorf("sweep scheduler failed: %w", err)
		}
	} else {
		logger.Warn("sweep scheduler disabled")
	}

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: root,
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
		}
	}()

	// Wait for interrupt signal
	<-sigChan
	logger.Info("Shutdown signal received, initiating graceful shutdown...")

	if sweeper != nil {
		sweeper.Stop()
	}

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
