package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/clinic-booking/internal/app/bootstrap"
	"github.com/wolfman30/clinic-booking/internal/availability"
	"github.com/wolfman30/clinic-booking/internal/bookings"
	appconfig "github.com/wolfman30/clinic-booking/internal/config"
	"github.com/wolfman30/clinic-booking/internal/events"
	"github.com/wolfman30/clinic-booking/internal/notify"
	"github.com/wolfman30/clinic-booking/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel).With("component", "booking-worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := bootstrap.ConnectPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer redisClient.Close()
	}

	reg := prometheus.NewRegistry()
	bookingMetrics := metrics.NewBookingMetrics(reg)

	slots := bootstrap.BuildAvailabilityService(cfg, availability.NewPostgresSource(pool), redisClient, bookingMetrics, logger)
	bookingService := bookings.NewService(bookings.NewPostgresRepository(pool), slots, logger).
		WithMetrics(bookingMetrics).
		WithHoldTTL(cfg.BookingHoldTTL)
	expirer := bookings.NewExpirer(bookingService, logger).WithInterval(cfg.BookingExpiryInterval)

	recipients := bootstrap.NotifyRecipients(cfg)
	if len(recipients) == 0 {
		logger.Warn("BOOKING_NOTIFY_EMAIL not set, paid bookings are not emailed")
	}
	notifier := notify.NewPaymentNotifier(bootstrap.BuildEmailSender(ctx, cfg, logger), recipients, logger)
	deliverer := events.NewDeliverer(events.NewOutboxStore(pool), notifier, logger).WithInterval(cfg.OutboxPollInterval)

	var wg sync.WaitGroup
	for _, run := range []func(context.Context){expirer.Start, deliverer.Start} {
		wg.Add(1)
		go func(run func(context.Context)) {
			defer wg.Done()
			run(ctx)
		}(run)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           opsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("ops server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ops server error", "error", err)
		}
	}()

	logger.Info("booking worker started",
		"hold_ttl", cfg.BookingHoldTTL.String(),
		"expiry_interval", cfg.BookingExpiryInterval.String(),
		"outbox_interval", cfg.OutboxPollInterval.String(),
	)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down booking worker...")
	cancel()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()
	_ = srv.Shutdown(doneCtx)

	waitCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("booking worker stopped")
	case <-doneCtx.Done():
		logger.Error("booking worker shutdown timed out", "error", doneCtx.Err())
	}
}

// opsHandler exposes liveness and metrics for the worker.
func opsHandler(metricsHandler http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", metricsHandler)
	return r
}
