package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-booking/pkg/logging"
)

var bookingColumns = []string{
	"booking_id", "clinic_id", "clinic_name", "service_id", "service_name",
	"patient_name", "patient_phone", "booking_time", "booking_status", "booking_created_at",
	"payment_id", "payment_amount", "payment_status", "payment_method", "transaction_code",
}

func addBookingRow(rows *sqlmock.Rows, id string, at time.Time, status string, paid bool) *sqlmock.Rows {
	created := at.Add(-24 * time.Hour)
	if paid {
		return rows.AddRow(id, "clinic-1", "An Khang", "svc-1", "Kham tong quat", "Tran Thi B", "0901234567",
			at, status, created, "pay-"+id, int64(2000), "paid", "sepay", "FT25069ABC")
	}
	return rows.AddRow(id, "clinic-1", "An Khang", "svc-1", "Kham tong quat", "Tran Thi B", "0901234567",
		at, status, created, nil, nil, nil, nil, nil)
}

func TestListBookings_FiltersAndPagination(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
	statuses := pq.Array([]string{"pending", "paid"})

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM admin_booking_overview WHERE clinic_id::text = \$1 AND patient_phone ILIKE \$2 AND booking_status = ANY\(\$3\)`).
		WithArgs("clinic-1", "%0901%", statuses).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))

	rows := sqlmock.NewRows(bookingColumns)
	addBookingRow(rows, "b-2", at, "paid", true)
	addBookingRow(rows, "b-1", at.Add(-time.Hour), "pending", false)
	mock.ExpectQuery(`FROM admin_booking_overview WHERE .* ORDER BY booking_time DESC LIMIT \$4 OFFSET \$5`).
		WithArgs("clinic-1", "%0901%", statuses, 5, 5).
		WillReturnRows(rows)

	handler := NewAdminBookingsHandler(db, logging.Default())
	req := httptest.NewRequest(http.MethodGet, "/admin/bookings?clinicId=clinic-1&phone=0901&status=pending,paid&page=2&limit=5", nil)
	rec := httptest.NewRecorder()

	handler.ListBookings(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp ReportPage[BookingOverview]
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 12, resp.Total)
	assert.Equal(t, 2, resp.Page)
	assert.Equal(t, 5, resp.Limit)
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "b-2", resp.Data[0].BookingID)
	require.NotNil(t, resp.Data[0].PaymentAmount)
	assert.Equal(t, int64(2000), *resp.Data[0].PaymentAmount)
	assert.Nil(t, resp.Data[1].PaymentID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListBookings_DefaultsAndStatusAll(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM admin_booking_overview$`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`FROM admin_booking_overview ORDER BY booking_time DESC LIMIT \$1 OFFSET \$2`).
		WithArgs(100, 0).
		WillReturnRows(sqlmock.NewRows(bookingColumns))

	handler := NewAdminBookingsHandler(db, nil)
	req := httptest.NewRequest(http.MethodGet, "/admin/bookings?status=all&limit=500", nil)
	rec := httptest.NewRecorder()

	handler.ListBookings(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, []any{}, resp["data"])
	assert.Equal(t, float64(1), resp["page"])
	assert.Equal(t, float64(100), resp["limit"], "limit is capped")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListPayments_PageIsClamped(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM admin_payment_overview$`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`FROM admin_payment_overview ORDER BY payment_created_at DESC LIMIT \$1 OFFSET \$2`).
		WithArgs(100, (maxReportPage-1)*100).
		WillReturnRows(sqlmock.NewRows([]string{"payment_id"}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/payments?page=9223372036854775807&limit=100", nil)
	NewAdminPaymentsHandler(db, nil).ListPayments(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp ReportPage[PaymentOverview]
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, maxReportPage, resp.Page)
	assert.Empty(t, resp.Data)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListBookings_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT`).WillReturnError(errors.New("relation does not exist"))

	rec := httptest.NewRecorder()
	NewAdminBookingsHandler(db, nil).ListBookings(rec, httptest.NewRequest(http.MethodGet, "/admin/bookings", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetBooking_WithHistory(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM admin_booking_overview WHERE booking_id::text = \$1`).
		WithArgs("b-2").
		WillReturnRows(addBookingRow(sqlmock.NewRows(bookingColumns), "b-2", at, "paid", true))

	history := sqlmock.NewRows(bookingColumns)
	addBookingRow(history, "b-2", at, "paid", true)
	addBookingRow(history, "b-1", at.AddDate(0, -1, 0), "expired", false)
	mock.ExpectQuery(`WHERE patient_phone = \$1 ORDER BY booking_time DESC`).
		WithArgs("0901234567").
		WillReturnRows(history)

	r := chi.NewRouter()
	r.Get("/admin/bookings/{id}", NewAdminBookingsHandler(db, nil).GetBooking)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/bookings/b-2", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp BookingDetailResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "b-2", resp.Booking.BookingID)
	require.Len(t, resp.History, 2)
	assert.Equal(t, "expired", resp.History[1].BookingStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBooking_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`WHERE booking_id::text = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(bookingColumns))

	r := chi.NewRouter()
	r.Get("/admin/bookings/{id}", NewAdminBookingsHandler(db, nil).GetBooking)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/bookings/missing", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "Booking not found", resp["error"])
}

func TestListPayments(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
	paidAt := at.Add(-20 * time.Hour)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM admin_payment_overview WHERE payment_status = ANY\(\$1\)`).
		WithArgs(pq.Array([]string{"paid"})).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	rows := sqlmock.NewRows([]string{
		"payment_id", "booking_id", "clinic_id", "clinic_name", "service_name",
		"patient_name", "patient_phone", "booking_time", "amount", "method", "payment_status",
		"transaction_code", "payment_date", "payment_created_at",
	}).AddRow("pay-1", "b-1", "clinic-1", "An Khang", "Kham tong quat",
		"Tran Thi B", "0901234567", at, int64(2000), "sepay", "paid",
		"FT25069ABC", paidAt, paidAt.Add(-time.Minute))
	mock.ExpectQuery(`FROM admin_payment_overview WHERE payment_status = ANY\(\$1\) ORDER BY payment_created_at DESC LIMIT \$2 OFFSET \$3`).
		WithArgs(pq.Array([]string{"paid"}), 20, 0).
		WillReturnRows(rows)

	rec := httptest.NewRecorder()
	NewAdminPaymentsHandler(db, nil).ListPayments(rec, httptest.NewRequest(http.MethodGet, "/admin/payments?status=paid", nil))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp ReportPage[PaymentOverview]
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "sepay", resp.Data[0].Method)
	require.NotNil(t, resp.Data[0].PaymentDate)
	assert.True(t, resp.Data[0].PaymentDate.Equal(paidAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}
