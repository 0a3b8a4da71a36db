package availability

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/clinic-booking/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

var availabilityTracer = otel.Tracer("clinic.internal.availability")

// DateLayout is the wire format of the date query parameter.
const DateLayout = "2006-01-02"

// Query identifies one availability report.
type Query struct {
	ClinicID  string
	ServiceID string
	Date      time.Time
}

// NewQuery validates raw request values and builds a Query.
func NewQuery(clinicID, serviceID, date string) (Query, error) {
	clinicID = strings.TrimSpace(clinicID)
	serviceID = strings.TrimSpace(serviceID)
	date = strings.TrimSpace(date)
	if clinicID == "" || serviceID == "" || date == "" {
		return Query{}, ErrInvalidQuery
	}
	day, err := time.ParseInLocation(DateLayout, date, time.UTC)
	if err != nil {
		return Query{}, fmt.Errorf("availability: invalid date %q: %w", date, err)
	}
	return Query{ClinicID: clinicID, ServiceID: serviceID, Date: day}, nil
}

// Day returns the query date formatted as YYYY-MM-DD.
func (q Query) Day() string {
	return q.Date.Format(DateLayout)
}

// Source loads the rows availability is computed from.
type Source interface {
	// ServiceDuration returns the service length in minutes, 0 when unset, or
	// ErrServiceNotFound.
	ServiceDuration(ctx context.Context, serviceID string) (int, error)
	// Windows returns the schedules of available doctors of the clinic who
	// offer the service on the query date.
	Windows(ctx context.Context, q Query) ([]Window, error)
	// BookedTimes returns pending and paid bookings for clinic, service and date.
	BookedTimes(ctx context.Context, q Query) ([]Booking, error)
}

// Cache stores computed reports between bookings.
type Cache interface {
	Get(ctx context.Context, q Query) ([]Slot, bool, error)
	Set(ctx context.Context, q Query, slots []Slot) error
	Invalidate(ctx context.Context, q Query) error
}

// Service loads availability inputs and runs Calculate over them.
type Service struct {
	source          Source
	cache           Cache
	metrics         *metrics.BookingMetrics
	logger          *logging.Logger
	defaultDuration int
}

// NewService constructs an availability service.
func NewService(source Source, logger *logging.Logger) *Service {
	if source == nil {
		panic("availability: source required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{source: source, logger: logger, defaultDuration: 30}
}

// WithCache enables result caching. A nil cache, including a nil
// *RedisCache from a disabled TTL, leaves caching off.
func (s *Service) WithCache(cache Cache) *Service {
	if rc, ok := cache.(*RedisCache); cache == nil || (ok && rc == nil) {
		return s
	}
	s.cache = cache
	return s
}

// WithMetrics attaches prometheus metrics.
func (s *Service) WithMetrics(m *metrics.BookingMetrics) *Service {
	s.metrics = m
	return s
}

// WithDefaultDuration sets the duration used when a service has none.
func (s *Service) WithDefaultDuration(minutes int) *Service {
	if minutes > 0 {
		s.defaultDuration = minutes
	}
	return s
}

// Slots returns the available slots for the query, served from cache when possible.
func (s *Service) Slots(ctx context.Context, q Query) ([]Slot, error) {
	ctx, span := availabilityTracer.Start(ctx, "availability.slots", trace.WithAttributes(
		attribute.String("clinic.clinic_id", q.ClinicID),
		attribute.String("clinic.service_id", q.ServiceID),
		attribute.String("clinic.date", q.Day()),
	))
	defer span.End()

	if s.cache != nil {
		slots, ok, err := s.cache.Get(ctx, q)
		if err != nil {
			s.logger.Warn("availability cache read failed", "error", err, "clinic_id", q.ClinicID, "service_id", q.ServiceID, "date", q.Day())
		} else if ok {
			span.SetAttributes(attribute.Bool("clinic.cache_hit", true))
			s.metrics.ObserveAvailabilityLookup("hit", len(slots))
			return slots, nil
		}
	}

	slots, err := s.compute(ctx, q)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrServiceNotFound) {
			s.metrics.ObserveAvailabilityLookup("not_found", 0)
		} else {
			s.metrics.ObserveAvailabilityLookup("error", 0)
		}
		return nil, err
	}
	s.metrics.ObserveAvailabilityLookup("miss", len(slots))

	if s.cache != nil {
		if err := s.cache.Set(ctx, q, slots); err != nil {
			s.logger.Warn("availability cache write failed", "error", err, "clinic_id", q.ClinicID, "service_id", q.ServiceID, "date", q.Day())
		}
	}
	return slots, nil
}

// IsBookable reports whether at is an available slot start, always reading
// fresh rows.
func (s *Service) IsBookable(ctx context.Context, q Query, at Clock) (bool, error) {
	ctx, span := availabilityTracer.Start(ctx, "availability.is_bookable")
	defer span.End()

	slots, err := s.compute(ctx, q)
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	return Contains(slots, at), nil
}

// Invalidate drops any cached report for the clinic, service and date.
func (s *Service) Invalidate(ctx context.Context, q Query) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, q); err != nil {
		s.logger.Warn("availability cache invalidate failed", "error", err, "clinic_id", q.ClinicID, "service_id", q.ServiceID, "date", q.Day())
	}
}

func (s *Service) compute(ctx context.Context, q Query) ([]Slot, error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveAvailabilityLatency(time.Since(start).Seconds())
	}()

	duration, err := s.source.ServiceDuration(ctx, q.ServiceID)
	if err != nil {
		return nil, err
	}
	if duration <= 0 {
		duration = s.defaultDuration
	}

	windows, err := s.source.Windows(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(windows) == 0 {
		return []Slot{}, nil
	}

	booked, err := s.source.BookedTimes(ctx, q)
	if err != nil {
		return nil, err
	}

	slots := Calculate(duration, windows, booked)
	s.logger.Debug("availability computed",
		"clinic_id", q.ClinicID,
		"service_id", q.ServiceID,
		"date", q.Day(),
		"duration_minutes", duration,
		"windows", len(windows),
		"bookings", len(booked),
		"slots", len(slots),
	)
	return slots, nil
}
