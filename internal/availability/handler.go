package availability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wolfman30/clinic-booking/pkg/logging"
)

type slotLister interface {
	Slots(ctx context.Context, q Query) ([]Slot, error)
}

// Handler serves the available-slots endpoint.
type Handler struct {
	service slotLister
	logger  *logging.Logger
}

// NewHandler creates a new availability handler
func NewHandler(service slotLister, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// GetSlots handles GET /api/available-slots?clinic_id=&service_id=&date=YYYY-MM-DD
func (h *Handler) GetSlots(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	q, err := NewQuery(params.Get("clinic_id"), params.Get("service_id"), params.Get("date"))
	if err != nil {
		if errors.Is(err, ErrInvalidQuery) {
			writeError(w, http.StatusBadRequest, "Missing query params")
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid date, expected YYYY-MM-DD")
		return
	}

	slots, err := h.service.Slots(r.Context(), q)
	if err != nil {
		if errors.Is(err, ErrServiceNotFound) {
			writeError(w, http.StatusNotFound, "Service not found")
			return
		}
		h.logger.Error("failed to compute available slots", "error", err, "clinic_id", q.ClinicID, "service_id", q.ServiceID, "date", q.Day())
		writeError(w, http.StatusInternalServerError, "Server error")
		return
	}
	if slots == nil {
		slots = []Slot{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(slots)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
