package catalog

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/wolfman30/clinic-booking/pkg/logging"
)

type lister interface {
	ListClinics(ctx context.Context) ([]Entry, error)
	ListServices(ctx context.Context) ([]Entry, error)
}

// Handler handles HTTP requests for the catalog
type Handler struct {
	repo   lister
	logger *logging.Logger
}

// NewHandler creates a new catalog handler
func NewHandler(repo lister, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{repo: repo, logger: logger}
}

// ListClinics handles GET /api/clinics and GET /admin/clinics
func (h *Handler) ListClinics(w http.ResponseWriter, r *http.Request) {
	h.write(w, "clinics", func() ([]Entry, error) { return h.repo.ListClinics(r.Context()) })
}

// ListServices handles GET /api/services
func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	h.write(w, "services", func() ([]Entry, error) { return h.repo.ListServices(r.Context()) })
}

func (h *Handler) write(w http.ResponseWriter, what string, load func() ([]Entry, error)) {
	entries, err := load()
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		h.logger.Error("failed to list "+what, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "failed to list " + what})
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	json.NewEncoder(w).Encode(entries)
}
