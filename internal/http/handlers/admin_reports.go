package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lib/pq"

	"github.com/wolfman30/clinic-booking/pkg/logging"
)

const (
	defaultReportLimit = 20
	maxReportLimit     = 100
	// maxReportPage keeps (page-1)*limit inside a Postgres int4 OFFSET.
	maxReportPage = math.MaxInt32 / maxReportLimit
)

// ReportPage is the paginated envelope of admin list endpoints.
type ReportPage[T any] struct {
	Data  []T `json:"data"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// reportFilter carries the shared admin list filters.
type reportFilter struct {
	clinicID string
	phone    string
	statuses []string
	page     int
	limit    int
}

func parseReportFilter(r *http.Request) reportFilter {
	q := r.URL.Query()
	f := reportFilter{
		clinicID: strings.TrimSpace(q.Get("clinicId")),
		phone:    strings.TrimSpace(q.Get("phone")),
	}
	if status := strings.TrimSpace(q.Get("status")); status != "" && status != "all" {
		for _, s := range strings.Split(status, ",") {
			if s = strings.TrimSpace(s); s != "" {
				f.statuses = append(f.statuses, s)
			}
		}
	}
	f.page, _ = strconv.Atoi(q.Get("page"))
	f.page = min(max(f.page, 1), maxReportPage)
	f.limit, _ = strconv.Atoi(q.Get("limit"))
	if f.limit < 1 {
		f.limit = defaultReportLimit
	}
	if f.limit > maxReportLimit {
		f.limit = maxReportLimit
	}
	return f
}

// where renders the WHERE clause and its args; statusColumn names the view's
// status column.
func (f reportFilter) where(statusColumn string) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if f.clinicID != "" {
		args = append(args, f.clinicID)
		clauses = append(clauses, "clinic_id::text = $"+strconv.Itoa(len(args)))
	}
	if f.phone != "" {
		args = append(args, "%"+f.phone+"%")
		clauses = append(clauses, "patient_phone ILIKE $"+strconv.Itoa(len(args)))
	}
	if len(f.statuses) > 0 {
		args = append(args, pq.Array(f.statuses))
		clauses = append(clauses, statusColumn+" = ANY($"+strconv.Itoa(len(args))+")")
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (f reportFilter) pagination(args []any) (string, []any) {
	n := len(args)
	clause := " LIMIT $" + strconv.Itoa(n+1) + " OFFSET $" + strconv.Itoa(n+2)
	return clause, append(args, f.limit, (f.page-1)*f.limit)
}

// BookingOverview is one row of admin_booking_overview.
type BookingOverview struct {
	BookingID        string    `json:"booking_id"`
	ClinicID         string    `json:"clinic_id"`
	ClinicName       string    `json:"clinic_name"`
	ServiceID        string    `json:"service_id"`
	ServiceName      string    `json:"service_name"`
	PatientName      string    `json:"patient_name"`
	PatientPhone     string    `json:"patient_phone"`
	BookingTime      time.Time `json:"booking_time"`
	BookingStatus    string    `json:"booking_status"`
	BookingCreatedAt time.Time `json:"booking_created_at"`
	PaymentID        *string   `json:"payment_id"`
	PaymentAmount    *int64    `json:"payment_amount"`
	PaymentStatus    *string   `json:"payment_status"`
	PaymentMethod    *string   `json:"payment_method"`
	TransactionCode  *string   `json:"transaction_code"`
}

const bookingOverviewColumns = `
	SELECT booking_id::text, clinic_id::text, clinic_name, service_id::text, service_name,
	       patient_name, patient_phone, booking_time, booking_status, booking_created_at,
	       payment_id::text, payment_amount, payment_status, payment_method, transaction_code
	FROM admin_booking_overview`

func scanBookingOverview(rows interface{ Scan(dest ...any) error }) (BookingOverview, error) {
	var b BookingOverview
	err := rows.Scan(
		&b.BookingID, &b.ClinicID, &b.ClinicName, &b.ServiceID, &b.ServiceName,
		&b.PatientName, &b.PatientPhone, &b.BookingTime, &b.BookingStatus, &b.BookingCreatedAt,
		&b.PaymentID, &b.PaymentAmount, &b.PaymentStatus, &b.PaymentMethod, &b.TransactionCode,
	)
	return b, err
}

// AdminBookingsHandler serves booking reports to back-office staff.
type AdminBookingsHandler struct {
	db     *sql.DB
	logger *logging.Logger
}

// NewAdminBookingsHandler creates a new admin bookings handler.
func NewAdminBookingsHandler(db *sql.DB, logger *logging.Logger) *AdminBookingsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminBookingsHandler{db: db, logger: logger}
}

// ListBookings returns a filtered page of bookings, newest appointment first.
// GET /admin/bookings?clinicId=&phone=&status=&page=&limit=
func (h *AdminBookingsHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	f := parseReportFilter(r)
	where, args := f.where("booking_status")

	var total int
	if err := h.db.QueryRowContext(r.Context(), "SELECT COUNT(*) FROM admin_booking_overview"+where, args...).Scan(&total); err != nil {
		h.logger.Error("failed to count bookings", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	limit, pageArgs := f.pagination(args)
	rows, err := h.db.QueryContext(r.Context(), bookingOverviewColumns+where+" ORDER BY booking_time DESC"+limit, pageArgs...)
	if err != nil {
		h.logger.Error("failed to query bookings", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}
	defer rows.Close()

	data := []BookingOverview{}
	for rows.Next() {
		b, err := scanBookingOverview(rows)
		if err != nil {
			h.logger.Error("failed to scan booking", "error", err)
			writeJSONError(w, http.StatusInternalServerError, "internal error")
			return
		}
		data = append(data, b)
	}
	if err := rows.Err(); err != nil {
		h.logger.Error("failed to iterate bookings", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, ReportPage[BookingOverview]{Data: data, Total: total, Page: f.page, Limit: f.limit})
}

// BookingDetailResponse is a booking plus every booking made from the same phone.
type BookingDetailResponse struct {
	Booking BookingOverview   `json:"booking"`
	History []BookingOverview `json:"history"`
}

// GetBooking returns one booking and the patient's booking history.
// GET /admin/bookings/{id}
func (h *AdminBookingsHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	booking, err := scanBookingOverview(h.db.QueryRowContext(r.Context(), bookingOverviewColumns+" WHERE booking_id::text = $1", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSONError(w, http.StatusNotFound, "Booking not found")
			return
		}
		h.logger.Error("failed to load booking", "error", err, "booking_id", id)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	rows, err := h.db.QueryContext(r.Context(), bookingOverviewColumns+" WHERE patient_phone = $1 ORDER BY booking_time DESC", booking.PatientPhone)
	if err != nil {
		h.logger.Error("failed to load booking history", "error", err, "booking_id", id)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}
	defer rows.Close()

	history := []BookingOverview{}
	for rows.Next() {
		b, err := scanBookingOverview(rows)
		if err != nil {
			h.logger.Error("failed to scan booking history", "error", err)
			writeJSONError(w, http.StatusInternalServerError, "internal error")
			return
		}
		history = append(history, b)
	}
	if err := rows.Err(); err != nil {
		h.logger.Error("failed to iterate booking history", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, BookingDetailResponse{Booking: booking, History: history})
}

// PaymentOverview is one row of admin_payment_overview.
type PaymentOverview struct {
	PaymentID        string     `json:"payment_id"`
	BookingID        string     `json:"booking_id"`
	ClinicID         string     `json:"clinic_id"`
	ClinicName       string     `json:"clinic_name"`
	ServiceName      string     `json:"service_name"`
	PatientName      string     `json:"patient_name"`
	PatientPhone     string     `json:"patient_phone"`
	BookingTime      time.Time  `json:"booking_time"`
	Amount           int64      `json:"amount"`
	Method           string     `json:"method"`
	PaymentStatus    string     `json:"payment_status"`
	TransactionCode  *string    `json:"transaction_code"`
	PaymentDate      *time.Time `json:"payment_date"`
	PaymentCreatedAt time.Time  `json:"payment_created_at"`
}

// AdminPaymentsHandler serves payment reports to back-office staff.
type AdminPaymentsHandler struct {
	db     *sql.DB
	logger *logging.Logger
}

// NewAdminPaymentsHandler creates a new admin payments handler.
func NewAdminPaymentsHandler(db *sql.DB, logger *logging.Logger) *AdminPaymentsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminPaymentsHandler{db: db, logger: logger}
}

// ListPayments returns a filtered page of payments, newest first.
// GET /admin/payments?clinicId=&phone=&status=&page=&limit=
func (h *AdminPaymentsHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	f := parseReportFilter(r)
	where, args := f.where("payment_status")

	var total int
	if err := h.db.QueryRowContext(r.Context(), "SELECT COUNT(*) FROM admin_payment_overview"+where, args...).Scan(&total); err != nil {
		h.logger.Error("failed to count payments", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	query := `
		SELECT payment_id::text, booking_id::text, clinic_id::text, clinic_name, service_name,
		       patient_name, patient_phone, booking_time, amount, method, payment_status,
		       transaction_code, payment_date, payment_created_at
		FROM admin_payment_overview` + where + " ORDER BY payment_created_at DESC"
	limit, pageArgs := f.pagination(args)
	rows, err := h.db.QueryContext(r.Context(), query+limit, pageArgs...)
	if err != nil {
		h.logger.Error("failed to query payments", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}
	defer rows.Close()

	data := []PaymentOverview{}
	for rows.Next() {
		var p PaymentOverview
		if err := rows.Scan(
			&p.PaymentID, &p.BookingID, &p.ClinicID, &p.ClinicName, &p.ServiceName,
			&p.PatientName, &p.PatientPhone, &p.BookingTime, &p.Amount, &p.Method, &p.PaymentStatus,
			&p.TransactionCode, &p.PaymentDate, &p.PaymentCreatedAt,
		); err != nil {
			h.logger.Error("failed to scan payment", "error", err)
			writeJSONError(w, http.StatusInternalServerError, "internal error")
			return
		}
		data = append(data, p)
	}
	if err := rows.Err(); err != nil {
		h.logger.Error("failed to iterate payments", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, ReportPage[PaymentOverview]{Data: data, Total: total, Page: f.page, Limit: f.limit})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
