package events

import "time"

// Event is a versioned domain event stored in the outbox.
type Event interface {
	EventType() string
}

// EventTypeBookingPaid is emitted once a deposit transfer settles a booking.
const EventTypeBookingPaid = "booking.paid.v1"

type BookingPaidV1 struct {
	EventID         string    `json:"event_id"`
	BookingID       string    `json:"booking_id"`
	ClinicID        string    `json:"clinic_id"`
	ServiceID       string    `json:"service_id"`
	PatientName     string    `json:"patient_name,omitempty"`
	PatientPhone    string    `json:"patient_phone,omitempty"`
	BookingTime     time.Time `json:"booking_time"`
	AmountPaid      int64     `json:"amount_paid"`
	Provider        string    `json:"provider"`
	TransactionCode string    `json:"transaction_code"`
	PaidAt          time.Time `json:"paid_at"`
}

func (BookingPaidV1) EventType() string {
	return EventTypeBookingPaid
}
