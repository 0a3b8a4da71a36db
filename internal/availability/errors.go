package availability

import "errors"

var (
	// ErrServiceNotFound is returned when the requested service does not exist.
	ErrServiceNotFound = errors.New("service not found")

	// ErrInvalidClock is returned when a time-of-day value cannot be parsed.
	ErrInvalidClock = errors.New("invalid time of day")

	// ErrInvalidQuery is returned when clinic, service or date are missing.
	ErrInvalidQuery = errors.New("clinic_id, service_id and date are required")
)
