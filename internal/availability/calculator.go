// Package availability computes bookable time slots for a clinic service on a
// single date from doctor work windows and the bookings already taken.
package availability

// Window is one doctor's working interval on the target date.
type Window struct {
	DoctorID           string
	Start              Clock
	End                Clock
	MaxPatientsPerSlot int
}

// Booking is an existing booking reduced to its time of day. Callers must pass
// only bookings for the same clinic, service and date whose status still holds
// capacity (pending or paid).
type Booking struct {
	Time Clock
}

// Slot reports the occupancy of one bookable start time.
type Slot struct {
	Time      Clock `json:"time"`
	Capacity  int   `json:"capacity"`
	Booked    int   `json:"booked"`
	Available int   `json:"available"`
}

// Calculate slices every window into back-to-back slots of duration minutes,
// sums capacity of slots that start at the same minute across doctors,
// subtracts bookings whose time equals a slot start exactly, and returns the
// slots that still have room in ascending time order.
//
// A window remainder shorter than duration yields no slot. Bookings whose time
// is not a generated slot start are not counted anywhere. A non-positive
// duration yields no slots.
func Calculate(duration int, windows []Window, bookings []Booking) []Slot {
	slots := []Slot{}
	if duration <= 0 || len(windows) == 0 {
		return slots
	}

	var capacity [MinutesPerDay]int
	step := Clock(duration)
	for _, w := range windows {
		for t := w.Start; t >= 0 && t < MinutesPerDay && t+step <= w.End; t += step {
			capacity[t] += w.MaxPatientsPerSlot
		}
	}

	var booked [MinutesPerDay]int
	for _, b := range bookings {
		if b.Time >= 0 && b.Time < MinutesPerDay {
			booked[b.Time]++
		}
	}

	for t := range MinutesPerDay {
		if capacity[t] <= 0 {
			continue
		}
		available := max(capacity[t]-booked[t], 0)
		if available == 0 {
			continue
		}
		slots = append(slots, Slot{
			Time:      Clock(t),
			Capacity:  capacity[t],
			Booked:    booked[t],
			Available: available,
		})
	}
	return slots
}

// Contains reports whether at is one of the returned slot start times.
func Contains(slots []Slot, at Clock) bool {
	for _, s := range slots {
		if s.Time == at {
			return true
		}
		if s.Time > at {
			return false
		}
	}
	return false
}
