package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DukeRupert/plantleads/internal"
	"github.com/DukeRupert/plantleads/internal/audit"
	"github.com/DukeRupert/plantleads/internal/billing"
	"github.com/DukeRupert/plantleads/internal/handler"
	"github.com/DukeRupert/plantleads/internal/metrics"
	"github.com/DukeRupert/plantleads/internal/middleware"
	"github.com/DukeRupert/plantleads/internal/service"
	"github.com/DukeRupert/plantleads/internal/store"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
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
	if err := internal.RunMigrations(ctx, db, logger); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database ready")

	pg, err := store.New(db, cfg.TxMaxAttempts, logger)
	if err != nil {
		return fmt.Errorf("store initialization failed: %w", err)
	}

	// Request log recorder
	auditCfg := audit.DefaultConfig()
	auditCfg.BufferSize = cfg.AuditBufferSize
	auditCfg.ShutdownTimeout = cfg.AuditShutdownTimeout
	recorder, err := audit.New(pg, auditCfg, logger)
	if err != nil {
		return fmt.Errorf("audit recorder initialization failed: %w", err)
	}
	recorder.Start()
	defer recorder.Stop()

	// Initialize services
	ledger := service.NewQuotaLedger(cfg.Location(), time.Now)
	trials := service.NewTrialLifecycle(cfg.TrialDuration, time.Now)
	catalog := service.NewPlanCatalog(pg, logger)
	entitlements := service.NewEntitlementService(pg, ledger, trials, recorder, logger)
	activity := service.NewActivityService(pg, ledger, logger)

	if _, err := catalog.DefaultPlan(ctx); err != nil {
		// Admission fails closed until the catalog is seeded.
		logger.Error("Plan catalog is not seeded; run dbtool seed-plans", "error", err)
	}

	var billingService billing.Service
	if cfg.BillingEnabled() {
		billingService = billing.NewStripeService(cfg.StripeSecretKey, cfg.StripeWebhookSecret, billing.PriceConfig{
			BasicPriceID:   cfg.StripeBasicPriceID,
			PremiumPriceID: cfg.StripePremiumPriceID,
		})
		logger.Info("Stripe billing enabled")
	} else {
		logger.Warn("Stripe billing disabled; checkout answers 501")
	}

	// Initialize middleware
	isSecure := cfg.Env != "development"
	identityMw := middleware.NewIdentityMiddleware(cfg.UserIDHeader, logger)
	loggingMw := middleware.NewRequestLoggingMiddleware(logger)
	securityMw := middleware.NewSecurityHeadersMiddleware(isSecure)
	metricsAuth := middleware.NewMetricsAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword, logger)

	// Initialize handlers
	entitlementHandler := handler.NewEntitlementHandler(entitlements, catalog, activity, cfg.Language(), logger)
	billingHandler := handler.NewBillingHandler(billingService, catalog, cfg.BaseURL, logger)
	webhookHandler := handler.NewWebhookHandler(billingService, entitlements, logger)

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	mux.Handle("GET /metrics", metricsAuth.Handler(promhttp.Handler()))

	// Identity is applied per route so the outer middleware still sees the
	// request the mux annotated with its matched pattern.
	entitlementHandler.RegisterRoutes(mux, identityMw.Authenticated)
	billingHandler.RegisterRoutes(mux, identityMw.Authenticated)
	webhookHandler.RegisterRoutes(mux)

	root := middleware.Stack(loggingMw.Handler, metrics.Middleware, securityMw.Handler)(mux)

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           root,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env, "timezone", cfg.Location().String())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, initiating graceful shutdown...")
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	// Deferred: recorder.Stop drains the request log before db.Close.
	logger.Info("Graceful shutdown complete")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
