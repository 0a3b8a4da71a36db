package availability

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ActiveBookingStatuses are the booking statuses that hold slot capacity.
var ActiveBookingStatuses = []string{"pending", "paid"}

type pgxQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresSource reads services, doctor schedules and bookings.
type PostgresSource struct {
	db pgxQuerier
}

// NewPostgresSource creates a source backed by pgx pool.
func NewPostgresSource(pool *pgxpool.Pool) *PostgresSource {
	if pool == nil {
		panic("availability: pgx pool required")
	}
	return &PostgresSource{db: pool}
}

func newPostgresSourceWithDB(db pgxQuerier) *PostgresSource {
	return &PostgresSource{db: db}
}

// ServiceDuration returns duration_minutes, 0 when the column is NULL.
func (s *PostgresSource) ServiceDuration(ctx context.Context, serviceID string) (int, error) {
	query := `SELECT COALESCE(duration_minutes, 0) FROM services WHERE id = $1`
	var duration int
	if err := s.db.QueryRow(ctx, query, serviceID).Scan(&duration); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrServiceNotFound
		}
		return 0, fmt.Errorf("availability: load service: %w", err)
	}
	return duration, nil
}

// Windows returns schedules of doctors who belong to the clinic, are
// available, offer the service and have an available schedule on the date.
func (s *PostgresSource) Windows(ctx context.Context, q Query) ([]Window, error) {
	query := `
		SELECT ds.doctor_id, ds.start_time::text, ds.end_time::text, COALESCE(ds.max_patients, 0)
		FROM doctor_schedules ds
		JOIN doctors d ON d.id = ds.doctor_id
		JOIN doctor_services dsv ON dsv.doctor_id = d.id
		WHERE d.clinic_id = $1
		  AND d.is_available = true
		  AND dsv.service_id = $2
		  AND ds.date = $3
		  AND ds.is_available = true
	`
	rows, err := s.db.Query(ctx, query, q.ClinicID, q.ServiceID, q.Day())
	if err != nil {
		return nil, fmt.Errorf("availability: load schedules: %w", err)
	}
	defer rows.Close()

	var windows []Window
	for rows.Next() {
		var (
			doctorID   string
			start, end string
			maxPerSlot int
		)
		if err := rows.Scan(&doctorID, &start, &end, &maxPerSlot); err != nil {
			return nil, fmt.Errorf("availability: scan schedule: %w", err)
		}
		w := Window{DoctorID: doctorID, MaxPatientsPerSlot: maxPerSlot}
		if w.Start, err = ParseClock(start); err != nil {
			return nil, fmt.Errorf("availability: schedule for doctor %s: %w", doctorID, err)
		}
		if w.End, err = ParseClock(end); err != nil {
			return nil, fmt.Errorf("availability: schedule for doctor %s: %w", doctorID, err)
		}
		windows = append(windows, w)
	}
	return windows, rows.Err()
}

// BookedTimes returns the HH:MM of every active booking on the date.
func (s *PostgresSource) BookedTimes(ctx context.Context, q Query) ([]Booking, error) {
	query := `
		SELECT to_char(booking_time, 'HH24:MI')
		FROM bookings
		WHERE clinic_id = $1
		  AND service_id = $2
		  AND status = ANY($3)
		  AND booking_time >= $4::date
		  AND booking_time < $4::date + 1
	`
	rows, err := s.db.Query(ctx, query, q.ClinicID, q.ServiceID, ActiveBookingStatuses, q.Day())
	if err != nil {
		return nil, fmt.Errorf("availability: load bookings: %w", err)
	}
	defer rows.Close()

	var bookings []Booking
	for rows.Next() {
		var hhmm string
		if err := rows.Scan(&hhmm); err != nil {
			return nil, fmt.Errorf("availability: scan booking: %w", err)
		}
		at, err := ParseClock(hhmm)
		if err != nil {
			return nil, fmt.Errorf("availability: booking time: %w", err)
		}
		bookings = append(bookings, Booking{Time: at})
	}
	return bookings, rows.Err()
}
