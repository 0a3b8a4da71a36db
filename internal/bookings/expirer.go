package bookings

import (
	"context"
	"time"

	"github.com/wolfman30/clinic-booking/pkg/logging"
)

type staleExpirer interface {
	ExpireStale(ctx context.Context) (int, error)
}

// Expirer periodically releases slots held by unpaid bookings.
type Expirer struct {
	service  staleExpirer
	logger   *logging.Logger
	interval time.Duration
}

// NewExpirer sweeps stale holds through service once a minute by default.
func NewExpirer(service staleExpirer, logger *logging.Logger) *Expirer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Expirer{service: service, logger: logger, interval: time.Minute}
}

// WithInterval sets the sweep period.
func (e *Expirer) WithInterval(interval time.Duration) *Expirer {
	if interval > 0 {
		e.interval = interval
	}
	return e
}

// Start runs until ctx is cancelled.
func (e *Expirer) Start(ctx context.Context) {
	if e.service == nil {
		return
	}
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.sweep(ctx)
		}
	}
}

func (e *Expirer) sweep(ctx context.Context) {
	n, err := e.service.ExpireStale(ctx)
	if err != nil {
		e.logger.Error("booking expiry sweep failed", "error", err)
		return
	}
	if n > 0 {
		e.logger.Info("expired unpaid bookings", "count", n)
	}
}
