package bookings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists bookings and their deposit payments.
type Repository interface {
	Create(ctx context.Context, req *CreateBookingRequest) (*Booking, error)
	GetSummary(ctx context.Context, id string) (*Summary, error)
	ExpireIfStale(ctx context.Context, id string, cutoff time.Time) (bool, error)
	ExpireStale(ctx context.Context, cutoff time.Time) ([]SlotRef, error)
}

type pgxDB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores bookings in the relational database.
type PostgresRepository struct {
	db pgxDB
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("bookings: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

// NewPostgresRepositoryWithDB allows injecting mocks for tests.
func NewPostgresRepositoryWithDB(db pgxDB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a pending booking and its pending bank-transfer payment in
// one transaction.
func (r *PostgresRepository) Create(ctx context.Context, req *CreateBookingRequest) (*Booking, error) {
	id := uuid.New()
	booking := &Booking{
		ID:           id.String(),
		UserID:       nilIfEmpty(req.UserID),
		ClinicID:     req.ClinicID,
		ServiceID:    req.ServiceID,
		PatientName:  req.Name,
		PatientPhone: req.Phone,
		BookingTime:  req.At,
		Status:       StatusPending,
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("bookings: begin create: %w", err)
	}
	defer tx.Rollback(ctx)

	insertBooking := `
		INSERT INTO bookings (id, user_id, clinic_id, service_id, patient_name, patient_phone,
		                      gender, age, symptoms, booking_time, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at
	`
	if err := tx.QueryRow(ctx, insertBooking,
		id,
		booking.UserID,
		req.ClinicID,
		req.ServiceID,
		req.Name,
		req.Phone,
		req.Gender,
		req.Age,
		req.Symptoms,
		req.At,
		string(StatusPending),
	).Scan(&booking.CreatedAt); err != nil {
		return nil, fmt.Errorf("bookings: insert booking: %w", err)
	}

	insertPayment := `
		INSERT INTO payments (id, booking_id, amount, method, status)
		VALUES ($1, $2, $3, 'banking', 'pending')
	`
	if _, err := tx.Exec(ctx, insertPayment, uuid.New(), id, req.Amount); err != nil {
		return nil, fmt.Errorf("bookings: insert payment: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("bookings: commit create: %w", err)
	}
	return booking, nil
}

// GetSummary returns status and the latest payment amount (0 when none).
func (r *PostgresRepository) GetSummary(ctx context.Context, id string) (*Summary, error) {
	query := `
		SELECT b.id::text, b.clinic_id::text, b.service_id::text, b.status, b.booking_time, b.created_at,
		       COALESCE((SELECT p.amount FROM payments p WHERE p.booking_id = b.id ORDER BY p.created_at DESC LIMIT 1), 0)
		FROM bookings b
		WHERE b.id = $1
	`
	var (
		s      Summary
		status string
	)
	if err := r.db.QueryRow(ctx, query, id).Scan(
		&s.ID,
		&s.ClinicID,
		&s.ServiceID,
		&status,
		&s.BookingTime,
		&s.CreatedAt,
		&s.Amount,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("bookings: select summary: %w", err)
	}
	s.Status = Status(status)
	return &s, nil
}

// ExpireIfStale moves one pending booking created before cutoff to expired.
// It reports false when the booking was no longer pending or is newer.
func (r *PostgresRepository) ExpireIfStale(ctx context.Context, id string, cutoff time.Time) (bool, error) {
	query := `
		UPDATE bookings
		SET status = 'expired'
		WHERE id = $1 AND status = 'pending' AND created_at < $2
	`
	ct, err := r.db.Exec(ctx, query, id, cutoff)
	if err != nil {
		return false, fmt.Errorf("bookings: expire booking: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// ExpireStale expires every pending booking created before cutoff and returns
// the slots they released.
func (r *PostgresRepository) ExpireStale(ctx context.Context, cutoff time.Time) ([]SlotRef, error) {
	query := `
		UPDATE bookings
		SET status = 'expired'
		WHERE status = 'pending' AND created_at < $1
		RETURNING clinic_id::text, service_id::text, booking_time
	`
	rows, err := r.db.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("bookings: expire stale: %w", err)
	}
	defer rows.Close()

	var released []SlotRef
	for rows.Next() {
		var ref SlotRef
		if err := rows.Scan(&ref.ClinicID, &ref.ServiceID, &ref.BookingTime); err != nil {
			return nil, fmt.Errorf("bookings: scan expired: %w", err)
		}
		released = append(released, ref)
	}
	return released, rows.Err()
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
