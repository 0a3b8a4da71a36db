package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/clinic-booking/internal/availability"
	"github.com/wolfman30/clinic-booking/internal/bookings"
	"github.com/wolfman30/clinic-booking/internal/catalog"
	"github.com/wolfman30/clinic-booking/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/clinic-booking/internal/http/middleware"
	"github.com/wolfman30/clinic-booking/internal/payments"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger              *logging.Logger
	CatalogHandler      *catalog.Handler
	AvailabilityHandler *availability.Handler
	BookingsHandler     *bookings.Handler
	SepayWebhook        *payments.SepayWebhookHandler
	MetricsHandler      http.Handler
	CORSAllowedOrigins  []string

	// JWTSecret verifies bearer tokens. Empty disables authenticated routes.
	JWTSecret string

	// PublicLimiter throttles the anonymous read endpoints (optional).
	PublicLimiter *httpmiddleware.RateLimiter

	// Admin reports (optional)
	AdminBookings *handlers.AdminBookingsHandler
	AdminPayments *handlers.AdminPaymentsHandler
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}
	r.Use(httpmiddleware.Authenticate(cfg.JWTSecret))

	// Public endpoints (webhooks, health checks)
	r.Group(func(public chi.Router) {
		public.Get("/health", healthCheck)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.SepayWebhook != nil {
			public.Post("/webhooks/sepay", cfg.SepayWebhook.Handle)
		}
	})

	r.Route("/api", func(api chi.Router) {
		api.Group(func(public chi.Router) {
			public.Use(httpmiddleware.RateLimit(cfg.PublicLimiter))
			if cfg.CatalogHandler != nil {
				public.Get("/clinics", cfg.CatalogHandler.ListClinics)
				public.Get("/services", cfg.CatalogHandler.ListServices)
			}
			if cfg.AvailabilityHandler != nil {
				public.Get("/available-slots", cfg.AvailabilityHandler.GetSlots)
			}
		})

		if cfg.BookingsHandler != nil {
			api.Route("/bookings", func(b chi.Router) {
				b.Use(httpmiddleware.RequireUser)
				b.Post("/", cfg.BookingsHandler.Create)
				b.Get("/{id}", cfg.BookingsHandler.Get)
			})
		}
	})

	r.Route("/admin", func(admin chi.Router) {
		admin.Use(httpmiddleware.RequireAdmin)
		if cfg.CatalogHandler != nil {
			admin.Get("/clinics", cfg.CatalogHandler.ListClinics)
		}
		if cfg.AdminBookings != nil {
			admin.Get("/bookings", cfg.AdminBookings.ListBookings)
			admin.Get("/bookings/{id}", cfg.AdminBookings.GetBooking)
		}
		if cfg.AdminPayments != nil {
			admin.Get("/payments", cfg.AdminPayments.ListPayments)
		}
	})

	return r
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
