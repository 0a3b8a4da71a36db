package bookings

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type countingExpirer struct {
	calls atomic.Int32
	err   error
}

func (c *countingExpirer) ExpireStale(context.Context) (int, error) {
	c.calls.Add(1)
	return 1, c.err
}

func TestExpirerSweepsUntilCancelled(t *testing.T) {
	svc := &countingExpirer{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		NewExpirer(svc, nil).WithInterval(5 * time.Millisecond).Start(ctx)
		close(done)
	}()

	deadline := time.After(time.Second)
	for svc.calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("expirer did not sweep")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expirer did not stop after cancel")
	}
}

func TestExpirerSweepLogsErrors(t *testing.T) {
	svc := &countingExpirer{err: errors.New("db down")}
	NewExpirer(svc, nil).sweep(context.Background())

	if svc.calls.Load() != 1 {
		t.Fatalf("expected one sweep, got %d", svc.calls.Load())
	}
}

func TestExpirerWithoutServiceReturns(t *testing.T) {
	done := make(chan struct{})
	go func() {
		NewExpirer(nil, nil).Start(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Start to return immediately without a service")
	}
}
