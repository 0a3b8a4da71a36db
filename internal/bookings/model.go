// Package bookings creates patient bookings, reports their payment state and
// expires unpaid holds.
package bookings

import (
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/clinic-booking/internal/availability"
)

// Status is the lifecycle state of a booking.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Active reports whether the booking still holds slot capacity.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusPaid
}

// CreateBookingRequest is the body of POST /api/bookings.
type CreateBookingRequest struct {
	ClinicID    string  `json:"clinic"`
	ServiceID   string  `json:"service"`
	Name        string  `json:"name"`
	Phone       string  `json:"phone"`
	Gender      *string `json:"gender,omitempty"`
	Age         *int    `json:"age,omitempty"`
	Symptoms    *string `json:"symptoms,omitempty"`
	BookingTime string  `json:"booking_time"`
	Amount      int64   `json:"amount"`

	UserID string    `json:"-"`
	At     time.Time `json:"-"`
}

// Validate trims fields, checks required values and parses BookingTime into At.
func (r *CreateBookingRequest) Validate() error {
	r.ClinicID = strings.TrimSpace(r.ClinicID)
	r.ServiceID = strings.TrimSpace(r.ServiceID)
	r.Name = strings.TrimSpace(r.Name)
	r.Phone = strings.TrimSpace(r.Phone)

	if r.ClinicID == "" {
		return ErrMissingClinic
	}
	if r.ServiceID == "" {
		return ErrMissingService
	}
	if r.Name == "" || r.Phone == "" {
		return ErrMissingPatient
	}
	if r.Amount <= 0 {
		return ErrInvalidAmount
	}
	at, err := ParseBookingTime(r.BookingTime)
	if err != nil {
		return err
	}
	r.At = at
	return nil
}

// SlotQuery returns the availability query covering the booking's date.
func (r *CreateBookingRequest) SlotQuery() availability.Query {
	return SlotRef{ClinicID: r.ClinicID, ServiceID: r.ServiceID, BookingTime: r.At}.Query()
}

var bookingTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	time.RFC3339,
}

// ParseBookingTime parses the wall-clock booking time. An RFC3339 offset is
// kept as written; the slot is identified by the wall clock, not by UTC.
func ParseBookingTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range bookingTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidBookingTime, s)
}

// Booking is a stored booking row.
type Booking struct {
	ID           string    `json:"id"`
	UserID       *string   `json:"user_id,omitempty"`
	ClinicID     string    `json:"clinic_id"`
	ServiceID    string    `json:"service_id"`
	PatientName  string    `json:"patient_name"`
	PatientPhone string    `json:"patient_phone"`
	BookingTime  time.Time `json:"booking_time"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// Summary is the payment-state view returned by GET /api/bookings/{id}.
type Summary struct {
	ID          string    `json:"id"`
	ClinicID    string    `json:"-"`
	ServiceID   string    `json:"-"`
	BookingTime time.Time `json:"-"`
	Status      Status    `json:"status"`
	Amount      int64     `json:"amount"`
	CreatedAt   time.Time `json:"created_at"`
	QRURL       string    `json:"qr_url,omitempty"`
}

// SlotRef identifies the availability report a booking belongs to.
type SlotRef struct {
	ClinicID    string
	ServiceID   string
	BookingTime time.Time
}

// Query converts the reference into an availability query.
func (s SlotRef) Query() availability.Query {
	t := s.BookingTime
	return availability.Query{
		ClinicID:  s.ClinicID,
		ServiceID: s.ServiceID,
		Date:      time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC),
	}
}

// CreateResult is the body returned by POST /api/bookings.
type CreateResult struct {
	BookingID string `json:"bookingId"`
	QRURL     string `json:"qrUrl,omitempty"`
}
