package bookings

import (
	"errors"
	"testing"
	"time"
)

func TestParseBookingTime(t *testing.T) {
	tests := []struct {
		in       string
		wantHour int
		wantMin  int
	}{
		{in: "2025-03-10 09:30:00", wantHour: 9, wantMin: 30},
		{in: "2025-03-10 09:30", wantHour: 9, wantMin: 30},
		{in: "2025-03-10T14:00:00", wantHour: 14, wantMin: 0},
		{in: "2025-03-10T14:00:00+07:00", wantHour: 14, wantMin: 0},
	}
	for _, tt := range tests {
		got, err := ParseBookingTime(tt.in)
		if err != nil {
			t.Fatalf("ParseBookingTime(%q) failed: %v", tt.in, err)
		}
		if got.Hour() != tt.wantHour || got.Minute() != tt.wantMin || got.Day() != 10 {
			t.Fatalf("ParseBookingTime(%q) = %v", tt.in, got)
		}
	}

	if _, err := ParseBookingTime("10/03/2025 9:30"); !errors.Is(err, ErrInvalidBookingTime) {
		t.Fatalf("expected ErrInvalidBookingTime, got %v", err)
	}
}

func TestCreateBookingRequest_Validate(t *testing.T) {
	req := validRequest()
	req.ClinicID = "  clinic-1 "
	if err := req.Validate(); err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if req.ClinicID != "clinic-1" {
		t.Fatalf("expected trimmed clinic id, got %q", req.ClinicID)
	}
	if !req.At.Equal(time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)) {
		t.Fatalf("unexpected parsed time %v", req.At)
	}

	missing := validRequest()
	missing.ServiceID = ""
	if err := missing.Validate(); !errors.Is(err, ErrMissingService) {
		t.Fatalf("expected ErrMissingService, got %v", err)
	}

	free := validRequest()
	free.Amount = 0
	if err := free.Validate(); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestSlotRefQueryUsesWallClockDate(t *testing.T) {
	loc := time.FixedZone("ICT", 7*60*60)
	ref := SlotRef{ClinicID: "c", ServiceID: "s", BookingTime: time.Date(2025, 3, 10, 1, 0, 0, 0, loc)}

	if got := ref.Query().Day(); got != "2025-03-10" {
		t.Fatalf("expected wall-clock date 2025-03-10, got %s", got)
	}
	if !StatusPaid.Active() || StatusExpired.Active() {
		t.Fatal("unexpected Active() result")
	}
}
