package bookings

import "errors"

var (
	// ErrBookingNotFound is returned when a booking id does not exist.
	ErrBookingNotFound = errors.New("booking not found")

	// ErrSlotUnavailable is returned when the requested time is not an available slot.
	ErrSlotUnavailable = errors.New("requested slot is not available")

	// ErrMissingClinic is returned when clinic is empty.
	ErrMissingClinic = errors.New("clinic is required")

	// ErrMissingService is returned when service is empty.
	ErrMissingService = errors.New("service is required")

	// ErrMissingPatient is returned when patient name or phone is empty.
	ErrMissingPatient = errors.New("patient name and phone are required")

	// ErrInvalidBookingTime is returned when booking_time cannot be parsed.
	ErrInvalidBookingTime = errors.New("booking_time must be YYYY-MM-DD HH:MM[:SS] or RFC3339")

	// ErrInvalidAmount is returned when the deposit amount is not positive.
	ErrInvalidAmount = errors.New("amount must be positive")
)

// IsValidation reports whether err describes a malformed create request.
func IsValidation(err error) bool {
	return errors.Is(err, ErrMissingClinic) ||
		errors.Is(err, ErrMissingService) ||
		errors.Is(err, ErrMissingPatient) ||
		errors.Is(err, ErrInvalidBookingTime) ||
		errors.Is(err, ErrInvalidAmount)
}
