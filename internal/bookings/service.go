package bookings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-booking/internal/availability"
	"github.com/wolfman30/clinic-booking/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

var bookingsTracer = otel.Tracer("clinic.internal.bookings")

type slotChecker interface {
	IsBookable(ctx context.Context, q availability.Query, at availability.Clock) (bool, error)
	Invalidate(ctx context.Context, q availability.Query)
}

// PaymentLinker builds the bank-transfer QR link for a booking deposit.
type PaymentLinker interface {
	PaymentQR(bookingID string, amount int64) string
}

// Service coordinates booking creation, lookup and hold expiry.
type Service struct {
	repo          Repository
	slots         slotChecker
	linker        PaymentLinker
	metrics       *metrics.BookingMetrics
	logger        *logging.Logger
	holdTTL       time.Duration
	defaultAmount int64
	now           func() time.Time
}

// NewService constructs a booking service.
func NewService(repo Repository, slots slotChecker, logger *logging.Logger) *Service {
	if repo == nil {
		panic("bookings: repository required")
	}
	if slots == nil {
		panic("bookings: slot checker required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		repo:          repo,
		slots:         slots,
		logger:        logger,
		holdTTL:       5 * time.Minute,
		defaultAmount: 2000,
		now:           time.Now,
	}
}

// WithPaymentLinker attaches the QR link builder.
func (s *Service) WithPaymentLinker(linker PaymentLinker) *Service {
	s.linker = linker
	return s
}

// WithMetrics attaches prometheus metrics.
func (s *Service) WithMetrics(m *metrics.BookingMetrics) *Service {
	s.metrics = m
	return s
}

// WithHoldTTL sets how long an unpaid booking keeps its slot.
func (s *Service) WithHoldTTL(ttl time.Duration) *Service {
	if ttl > 0 {
		s.holdTTL = ttl
	}
	return s
}

// WithDefaultAmount sets the deposit reported when a booking has no payment row.
func (s *Service) WithDefaultAmount(amount int64) *Service {
	if amount > 0 {
		s.defaultAmount = amount
	}
	return s
}

// Create validates the request, confirms the slot is still open and stores a
// pending booking with its pending deposit.
func (s *Service) Create(ctx context.Context, req *CreateBookingRequest) (*CreateResult, error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.create")
	defer span.End()

	if err := req.Validate(); err != nil {
		s.metrics.ObserveBookingCreated("invalid")
		return nil, err
	}
	span.SetAttributes(
		attribute.String("clinic.clinic_id", req.ClinicID),
		attribute.String("clinic.service_id", req.ServiceID),
	)

	q := req.SlotQuery()
	at := availability.ClockOf(req.At)
	ok, err := s.slots.IsBookable(ctx, q, at)
	if err != nil {
		span.RecordError(err)
		s.metrics.ObserveBookingCreated("error")
		return nil, fmt.Errorf("bookings: check slot: %w", err)
	}
	if !ok {
		s.metrics.ObserveBookingCreated("unavailable")
		return nil, fmt.Errorf("%w: %s %s", ErrSlotUnavailable, q.Day(), at)
	}

	booking, err := s.repo.Create(ctx, req)
	if err != nil {
		span.RecordError(err)
		s.metrics.ObserveBookingCreated("error")
		return nil, err
	}
	s.slots.Invalidate(ctx, q)
	s.metrics.ObserveBookingCreated("created")

	s.logger.Info("booking created",
		"booking_id", booking.ID,
		"clinic_id", booking.ClinicID,
		"service_id", booking.ServiceID,
		"date", q.Day(),
		"time", at.String(),
	)

	result := &CreateResult{BookingID: booking.ID}
	if s.linker != nil {
		result.QRURL = s.linker.PaymentQR(booking.ID, req.Amount)
	}
	return result, nil
}

// Get returns the booking's payment state, expiring it first when an unpaid
// hold has outlived the hold TTL.
func (s *Service) Get(ctx context.Context, id string) (*Summary, error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.get")
	defer span.End()

	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrBookingNotFound
	}

	summary, err := s.repo.GetSummary(ctx, id)
	if err != nil {
		return nil, err
	}

	if summary.Status == StatusPending && s.now().Sub(summary.CreatedAt) > s.holdTTL {
		expired, err := s.repo.ExpireIfStale(ctx, id, s.now().Add(-s.holdTTL))
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		if expired {
			summary.Status = StatusExpired
			s.metrics.AddBookingsExpired(1)
			s.slots.Invalidate(ctx, SlotRef{
				ClinicID:    summary.ClinicID,
				ServiceID:   summary.ServiceID,
				BookingTime: summary.BookingTime,
			}.Query())
			s.logger.Info("booking hold expired", "booking_id", id)
		} else {
			// paid or cancelled between the read and the update
			if summary, err = s.repo.GetSummary(ctx, id); err != nil {
				return nil, err
			}
		}
	}

	if summary.Amount <= 0 {
		summary.Amount = s.defaultAmount
	}
	if summary.Status == StatusPending && s.linker != nil {
		summary.QRURL = s.linker.PaymentQR(summary.ID, summary.Amount)
	}
	return summary, nil
}

// ExpireStale releases every unpaid hold older than the hold TTL and returns
// how many bookings were expired.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.expire_stale")
	defer span.End()

	released, err := s.repo.ExpireStale(ctx, s.now().Add(-s.holdTTL))
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	if len(released) == 0 {
		return 0, nil
	}

	seen := make(map[availability.Query]struct{}, len(released))
	for _, ref := range released {
		q := ref.Query()
		if _, ok := seen[q]; ok {
			continue
		}
		seen[q] = struct{}{}
		s.slots.Invalidate(ctx, q)
	}
	s.metrics.AddBookingsExpired(int64(len(released)))
	return len(released), nil
}

// IsNotFound reports whether err means the booking does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrBookingNotFound)
}
