package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/clinic-booking/internal/events"
)

var (
	// ErrBookingNotFound is returned when a transfer references an unknown booking.
	ErrBookingNotFound = errors.New("payments: booking not found")

	errDuplicateTransfer = errors.New("payments: transfer already processed")
	errNotPending        = errors.New("payments: payment no longer pending")
)

// Settlement is the state a transfer is reconciled against.
type Settlement struct {
	BookingID     string
	ClinicID      string
	ServiceID     string
	PatientName   string
	PatientPhone  string
	BookingTime   time.Time
	BookingStatus string
	// PaymentID is empty when the booking has no pending payment.
	PaymentID      string
	ExpectedAmount int64
}

// Transfer is an incoming bank transfer matched to a settlement.
type Transfer struct {
	Provider        string
	EventID         string
	TransactionCode string
	Amount          int64
	ReceivedAt      time.Time
}

// SettleOutcome reports what MarkPaid did.
type SettleOutcome int

const (
	SettleApplied SettleOutcome = iota
	SettleDuplicate
	SettleAlreadyPaid
)

type outboxTxWriter interface {
	InsertTx(ctx context.Context, exec events.Execer, aggregateID string, event events.Event) (uuid.UUID, error)
}

type processedTxMarker interface {
	MarkProcessedTx(ctx context.Context, exec events.Execer, provider, eventID string) (bool, error)
}

type pgxDB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository reads and settles booking deposits.
type Repository struct {
	db        pgxDB
	outbox    outboxTxWriter
	processed processedTxMarker
}

// NewRepository creates a repository backed by pgx.
func NewRepository(pool *pgxpool.Pool, outbox *events.OutboxStore, processed *events.ProcessedStore) *Repository {
	if pool == nil {
		panic("payments: pgx pool required")
	}
	repo := &Repository{db: pool}
	if outbox != nil {
		repo.outbox = outbox
	}
	if processed != nil {
		repo.processed = processed
	}
	return repo
}

// NewRepositoryWithDB allows injecting mocks for tests.
func NewRepositoryWithDB(db pgxDB, outbox outboxTxWriter, processed processedTxMarker) *Repository {
	return &Repository{db: db, outbox: outbox, processed: processed}
}

// LoadSettlement returns the booking and its latest pending payment.
func (r *Repository) LoadSettlement(ctx context.Context, bookingID string) (*Settlement, error) {
	query := `
		SELECT b.id::text, b.clinic_id::text, b.service_id::text, b.patient_name, b.patient_phone,
		       b.booking_time, b.status, COALESCE(p.id::text, ''), COALESCE(p.amount, 0)
		FROM bookings b
		LEFT JOIN LATERAL (
			SELECT id, amount
			FROM payments
			WHERE booking_id = b.id AND status = 'pending'
			ORDER BY created_at DESC
			LIMIT 1
		) p ON true
		WHERE b.id = $1
	`
	var s Settlement
	if err := r.db.QueryRow(ctx, query, bookingID).Scan(
		&s.BookingID,
		&s.ClinicID,
		&s.ServiceID,
		&s.PatientName,
		&s.PatientPhone,
		&s.BookingTime,
		&s.BookingStatus,
		&s.PaymentID,
		&s.ExpectedAmount,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("payments: load settlement: %w", err)
	}
	return &s, nil
}

// MarkPaid settles the payment and booking and enqueues booking.paid.v1 in a
// single transaction. The transfer id is recorded in the same transaction so
// a redelivered webhook cannot settle twice.
func (r *Repository) MarkPaid(ctx context.Context, s *Settlement, t Transfer) (SettleOutcome, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return SettleApplied, fmt.Errorf("payments: begin settlement: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := r.settle(ctx, tx, s, t); err != nil {
		switch {
		case errors.Is(err, errDuplicateTransfer):
			return SettleDuplicate, nil
		case errors.Is(err, errNotPending):
			return SettleAlreadyPaid, nil
		default:
			return SettleApplied, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return SettleApplied, fmt.Errorf("payments: commit settlement: %w", err)
	}
	return SettleApplied, nil
}

func (r *Repository) settle(ctx context.Context, tx pgx.Tx, s *Settlement, t Transfer) error {
	if t.EventID != "" && r.processed != nil {
		fresh, err := r.processed.MarkProcessedTx(ctx, tx, t.Provider, t.EventID)
		if err != nil {
			return err
		}
		if !fresh {
			return errDuplicateTransfer
		}
	}

	updatePayment := `
		UPDATE payments
		SET status = 'paid', method = $2, transaction_code = $3, payment_date = $4
		WHERE id = $1 AND status = 'pending'
	`
	ct, err := tx.Exec(ctx, updatePayment, s.PaymentID, t.Provider, nilIfEmpty(t.TransactionCode), t.ReceivedAt)
	if err != nil {
		return fmt.Errorf("payments: update payment: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return errNotPending
	}

	updateBooking := `
		UPDATE bookings
		SET status = 'paid'
		WHERE id = $1 AND status <> 'paid'
	`
	if _, err := tx.Exec(ctx, updateBooking, s.BookingID); err != nil {
		return fmt.Errorf("payments: update booking: %w", err)
	}

	if r.outbox != nil {
		event := events.BookingPaidV1{
			EventID:         uuid.NewString(),
			BookingID:       s.BookingID,
			ClinicID:        s.ClinicID,
			ServiceID:       s.ServiceID,
			PatientName:     s.PatientName,
			PatientPhone:    s.PatientPhone,
			BookingTime:     s.BookingTime,
			AmountPaid:      t.Amount,
			Provider:        t.Provider,
			TransactionCode: t.TransactionCode,
			PaidAt:          t.ReceivedAt,
		}
		if _, err := r.outbox.InsertTx(ctx, tx, s.BookingID, event); err != nil {
			return err
		}
	}
	return nil
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
