package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
)

func testQuery() Query {
	return Query{ClinicID: "clinic-1", ServiceID: "svc-1", Date: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)}
}

func TestPostgresSource_ServiceDuration(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`SELECT COALESCE\(duration_minutes, 0\) FROM services WHERE id = \$1`).
		WithArgs("svc-1").
		WillReturnRows(pgxmock.NewRows([]string{"duration_minutes"}).AddRow(45))

	source := newPostgresSourceWithDB(mock)
	got, err := source.ServiceDuration(context.Background(), "svc-1")
	if err != nil {
		t.Fatalf("ServiceDuration failed: %v", err)
	}
	if got != 45 {
		t.Fatalf("duration = %d, want 45", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresSource_ServiceDurationNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`FROM services`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	source := newPostgresSourceWithDB(mock)
	_, err = source.ServiceDuration(context.Background(), "missing")
	if !errors.Is(err, ErrServiceNotFound) {
		t.Fatalf("expected ErrServiceNotFound, got %v", err)
	}
}

func TestPostgresSource_Windows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	defer mock.Close()

	rows := pgxmock.NewRows([]string{"doctor_id", "start_time", "end_time", "max_patients"}).
		AddRow("doc-a", "09:00:00", "12:00:00", 2).
		AddRow("doc-b", "13:30:00", "17:00:00", 0)
	mock.ExpectQuery(`FROM doctor_schedules ds`).
		WithArgs("clinic-1", "svc-1", "2025-03-10").
		WillReturnRows(rows)

	source := newPostgresSourceWithDB(mock)
	windows, err := source.Windows(context.Background(), testQuery())
	if err != nil {
		t.Fatalf("Windows failed: %v", err)
	}
	if len(windows) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(windows))
	}
	if windows[0].DoctorID != "doc-a" || windows[0].Start.String() != "09:00" || windows[0].End.String() != "12:00" || windows[0].MaxPatientsPerSlot != 2 {
		t.Fatalf("unexpected first window %+v", windows[0])
	}
	if windows[1].Start.String() != "13:30" || windows[1].MaxPatientsPerSlot != 0 {
		t.Fatalf("unexpected second window %+v", windows[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresSource_WindowsMalformedTime(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	defer mock.Close()

	rows := pgxmock.NewRows([]string{"doctor_id", "start_time", "end_time", "max_patients"}).
		AddRow("doc-a", "9am", "12:00:00", 2)
	mock.ExpectQuery(`FROM doctor_schedules ds`).
		WithArgs("clinic-1", "svc-1", "2025-03-10").
		WillReturnRows(rows)

	source := newPostgresSourceWithDB(mock)
	if _, err := source.Windows(context.Background(), testQuery()); !errors.Is(err, ErrInvalidClock) {
		t.Fatalf("expected ErrInvalidClock, got %v", err)
	}
}

func TestPostgresSource_BookedTimes(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	defer mock.Close()

	rows := pgxmock.NewRows([]string{"hhmm"}).
		AddRow("09:00").
		AddRow("09:00").
		AddRow("10:15")
	mock.ExpectQuery(`SELECT to_char\(booking_time, 'HH24:MI'\)`).
		WithArgs("clinic-1", "svc-1", []string{"pending", "paid"}, "2025-03-10").
		WillReturnRows(rows)

	source := newPostgresSourceWithDB(mock)
	bookings, err := source.BookedTimes(context.Background(), testQuery())
	if err != nil {
		t.Fatalf("BookedTimes failed: %v", err)
	}
	if len(bookings) != 3 {
		t.Fatalf("expected 3 bookings, got %d", len(bookings))
	}
	if bookings[2].Time.String() != "10:15" {
		t.Fatalf("unexpected booking time %s", bookings[2].Time)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresSource_BookedTimesQueryError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	defer mock.Close()

	boom := errors.New("connection reset")
	mock.ExpectQuery(`FROM bookings`).
		WithArgs("clinic-1", "svc-1", []string{"pending", "paid"}, "2025-03-10").
		WillReturnError(boom)

	source := newPostgresSourceWithDB(mock)
	if _, err := source.BookedTimes(context.Background(), testQuery()); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped query error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
