package bookings

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinic-booking/internal/availability"
	"github.com/wolfman30/clinic-booking/internal/identity"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

type bookingService interface {
	Create(ctx context.Context, req *CreateBookingRequest) (*CreateResult, error)
	Get(ctx context.Context, id string) (*Summary, error)
}

// Handler exposes booking endpoints over HTTP.
type Handler struct {
	service bookingService
	logger  *logging.Logger
}

func NewHandler(service bookingService, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Create handles POST /api/bookings.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := identity.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req CreateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	req.UserID = userID

	result, err := h.service.Create(r.Context(), &req)
	if err != nil {
		switch {
		case IsValidation(err):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrSlotUnavailable):
			writeError(w, http.StatusConflict, "Slot unavailable")
		case errors.Is(err, availability.ErrServiceNotFound):
			writeError(w, http.StatusNotFound, "Service not found")
		default:
			h.logger.Error("failed to create booking", "error", err, "user_id", userID)
			writeError(w, http.StatusInternalServerError, "Server error")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(result)
}

// Get handles GET /api/bookings/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	summary, err := h.service.Get(r.Context(), id)
	if err != nil {
		if IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Booking not found")
			return
		}
		h.logger.Error("failed to load booking", "error", err, "booking_id", id)
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
