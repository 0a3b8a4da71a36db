package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-booking/internal/api/router"
	"github.com/wolfman30/clinic-booking/internal/app/bootstrap"
	"github.com/wolfman30/clinic-booking/internal/availability"
	"github.com/wolfman30/clinic-booking/internal/bookings"
	"github.com/wolfman30/clinic-booking/internal/catalog"
	appconfig "github.com/wolfman30/clinic-booking/internal/config"
	"github.com/wolfman30/clinic-booking/internal/events"
	"github.com/wolfman30/clinic-booking/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/clinic-booking/internal/http/middleware"
	"github.com/wolfman30/clinic-booking/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking/internal/payments"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

func main() {
	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic-booking API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := bootstrap.ConnectPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	sqlDB, err := bootstrap.OpenSQLDB(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open reporting db", "error", err)
		os.Exit(1)
	}
	defer sqlDB.Close()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer redisClient.Close()
	}

	metricsHandler, bookingMetrics := setupMetrics()
	var limiter *httpmiddleware.RateLimiter
	if cfg.PublicRateLimitRPS > 0 {
		limiter = httpmiddleware.NewRateLimiter(ctx, cfg.PublicRateLimitRPS, cfg.PublicRateBurst)
	}

	r := router.New(buildRouterConfig(cfg, logger, pool, sqlDB, redisClient, bookingMetrics, metricsHandler, limiter))

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// setupMetrics registers the booking metrics and Go runtime collectors on a
// private registry.
func setupMetrics() (http.Handler, *metrics.BookingMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	bookingMetrics := metrics.NewBookingMetrics(reg)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), bookingMetrics
}

func buildRouterConfig(
	cfg *appconfig.Config,
	logger *logging.Logger,
	pool *pgxpool.Pool,
	sqlDB *sql.DB,
	redisClient *redis.Client,
	bookingMetrics *metrics.BookingMetrics,
	metricsHandler http.Handler,
	limiter *httpmiddleware.RateLimiter,
) *router.Config {
	slots := bootstrap.BuildAvailabilityService(cfg, availability.NewPostgresSource(pool), redisClient, bookingMetrics, logger)

	bookingService := bookings.NewService(bookings.NewPostgresRepository(pool), slots, logger).
		WithMetrics(bookingMetrics).
		WithHoldTTL(cfg.BookingHoldTTL).
		WithDefaultAmount(cfg.DefaultDepositAmount)
	if qr := payments.NewQRBuilder(cfg.SepayBankCode, cfg.SepayAccountNo, cfg.SepayContentPrefix); qr != nil {
		bookingService = bookingService.WithPaymentLinker(qr)
	} else {
		logger.Warn("SEPAY_BANK_CODE or SEPAY_ACCOUNT_NO not set, bookings are created without a payment QR")
	}

	processed := events.NewProcessedStore(pool)
	settlements := payments.NewRepository(pool, events.NewOutboxStore(pool), processed)
	sepay := payments.NewSepayWebhookHandler(cfg.SepayAPIKey, cfg.SepayContentPrefix, settlements, processed, logger).
		WithSlotInvalidator(slots).
		WithMetrics(bookingMetrics)
	if cfg.SepayAPIKey == "" {
		logger.Warn("SEPAY_API_KEY not set, webhook requests are not authenticated")
	}
	if cfg.JWTSecret == "" {
		logger.Warn("JWT_SECRET not set, booking and admin routes reject every request")
	}

	catalogHandler := catalog.NewHandler(catalog.NewRepository(pool), logger)

	return &router.Config{
		Logger:              logger,
		CatalogHandler:      catalogHandler,
		AvailabilityHandler: availability.NewHandler(slots, logger),
		BookingsHandler:     bookings.NewHandler(bookingService, logger),
		SepayWebhook:        sepay,
		MetricsHandler:      metricsHandler,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		JWTSecret:           cfg.JWTSecret,
		PublicLimiter:       limiter,
		AdminBookings:       handlers.NewAdminBookingsHandler(sqlDB, logger),
		AdminPayments:       handlers.NewAdminPaymentsHandler(sqlDB, logger),
	}
}
