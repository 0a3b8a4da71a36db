package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for availability, bookings and payment webhooks.
type BookingMetrics struct {
	availabilityLookups *prometheus.CounterVec
	slotsReturned       prometheus.Histogram
	availabilityLatency prometheus.Histogram
	bookingsCreated     *prometheus.CounterVec
	bookingsExpired     prometheus.Counter
	webhookEvents       *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		availabilityLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "availability",
			Name:      "lookups_total",
			Help:      "Available-slot lookups by result (hit, miss, not_found, error)",
		}, []string{"result"}),
		slotsReturned: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "availability",
			Name:      "slots_returned",
			Help:      "Number of available slots returned per lookup",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32, 64},
		}),
		availabilityLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "availability",
			Name:      "compute_seconds",
			Help:      "Latency of loading rows and computing availability",
			Buckets:   prometheus.DefBuckets,
		}),
		bookingsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "bookings",
			Name:      "created_total",
			Help:      "Booking creation attempts by outcome",
		}, []string{"outcome"}),
		bookingsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "bookings",
			Name:      "expired_total",
			Help:      "Pending bookings moved to expired",
		}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "payments",
			Name:      "webhook_events_total",
			Help:      "Payment webhook deliveries by provider and outcome",
		}, []string{"provider", "outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.availabilityLookups,
		m.slotsReturned,
		m.availabilityLatency,
		m.bookingsCreated,
		m.bookingsExpired,
		m.webhookEvents,
	)
	return m
}

func (m *BookingMetrics) ObserveAvailabilityLookup(result string, slots int) {
	if m == nil {
		return
	}
	m.availabilityLookups.WithLabelValues(result).Inc()
	if result == "hit" || result == "miss" {
		m.slotsReturned.Observe(float64(slots))
	}
}

func (m *BookingMetrics) ObserveAvailabilityLatency(seconds float64) {
	if m == nil {
		return
	}
	m.availabilityLatency.Observe(seconds)
}

func (m *BookingMetrics) ObserveBookingCreated(outcome string) {
	if m == nil {
		return
	}
	m.bookingsCreated.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) AddBookingsExpired(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.bookingsExpired.Add(float64(n))
}

func (m *BookingMetrics) ObserveWebhook(provider, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(provider, outcome).Inc()
}
