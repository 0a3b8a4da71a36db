package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-booking/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

type stubSource struct {
	duration    int
	durationErr error
	windows     []Window
	windowsErr  error
	booked      []Booking
	bookedErr   error

	durationCalls int
	windowCalls   int
	bookedCalls   int
}

func (s *stubSource) ServiceDuration(context.Context, string) (int, error) {
	s.durationCalls++
	return s.duration, s.durationErr
}

func (s *stubSource) Windows(context.Context, Query) ([]Window, error) {
	s.windowCalls++
	return s.windows, s.windowsErr
}

func (s *stubSource) BookedTimes(context.Context, Query) ([]Booking, error) {
	s.bookedCalls++
	return s.booked, s.bookedErr
}

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func TestService_SlotsComputesFromSource(t *testing.T) {
	source := &stubSource{
		duration: 30,
		windows:  []Window{window("A", "09:00", "10:00", 2)},
		booked:   bookingsAt("09:00"),
	}
	svc := NewService(source, logging.Default())

	slots, err := svc.Slots(context.Background(), testQuery())

	require.NoError(t, err)
	assert.Equal(t, []Slot{
		{Time: MustClock("09:00"), Capacity: 2, Booked: 1, Available: 1},
		{Time: MustClock("09:30"), Capacity: 2, Booked: 0, Available: 2},
	}, slots)
}

func TestService_DefaultDurationWhenUnset(t *testing.T) {
	source := &stubSource{
		duration: 0,
		windows:  []Window{window("A", "09:00", "10:00", 1)},
	}
	svc := NewService(source, nil).WithDefaultDuration(20)

	slots, err := svc.Slots(context.Background(), testQuery())

	require.NoError(t, err)
	assert.Len(t, slots, 3)
}

func TestService_NoWindowsSkipsBookingQuery(t *testing.T) {
	source := &stubSource{duration: 30}
	svc := NewService(source, nil)

	slots, err := svc.Slots(context.Background(), testQuery())

	require.NoError(t, err)
	assert.NotNil(t, slots)
	assert.Empty(t, slots)
	assert.Equal(t, 0, source.bookedCalls)
}

func TestService_ServiceNotFound(t *testing.T) {
	reg := prometheus.NewRegistry()
	source := &stubSource{durationErr: ErrServiceNotFound}
	svc := NewService(source, nil).WithMetrics(metrics.NewBookingMetrics(reg))

	_, err := svc.Slots(context.Background(), testQuery())

	assert.ErrorIs(t, err, ErrServiceNotFound)
	assert.Equal(t, 0, source.windowCalls)
}

func TestService_SourceErrorPropagates(t *testing.T) {
	boom := errors.New("db down")
	source := &stubSource{duration: 30, windows: []Window{window("A", "09:00", "10:00", 1)}, bookedErr: boom}
	svc := NewService(source, nil)

	_, err := svc.Slots(context.Background(), testQuery())

	assert.ErrorIs(t, err, boom)
}

func TestService_CachesAndInvalidates(t *testing.T) {
	client, _ := setupTestRedis(t)
	source := &stubSource{
		duration: 30,
		windows:  []Window{window("A", "09:00", "10:00", 1)},
	}
	svc := NewService(source, nil).WithCache(NewRedisCache(client, time.Minute))
	ctx := context.Background()
	q := testQuery()

	first, err := svc.Slots(ctx, q)
	require.NoError(t, err)
	second, err := svc.Slots(ctx, q)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, source.durationCalls, "second lookup should be served from cache")

	source.booked = bookingsAt("09:00")
	svc.Invalidate(ctx, q)

	third, err := svc.Slots(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 2, source.durationCalls)
	require.Len(t, third, 1)
	assert.Equal(t, "09:30", third[0].Time.String())
}

func TestService_CacheFailureFallsBackToSource(t *testing.T) {
	client, mr := setupTestRedis(t)
	source := &stubSource{duration: 30, windows: []Window{window("A", "09:00", "10:00", 1)}}
	svc := NewService(source, nil).WithCache(NewRedisCache(client, time.Minute))
	mr.Close()

	slots, err := svc.Slots(context.Background(), testQuery())

	require.NoError(t, err)
	assert.Len(t, slots, 2)
}

func TestService_IsBookableBypassesCache(t *testing.T) {
	client, _ := setupTestRedis(t)
	source := &stubSource{duration: 30, windows: []Window{window("A", "09:00", "10:00", 1)}}
	svc := NewService(source, nil).WithCache(NewRedisCache(client, time.Minute))
	ctx := context.Background()
	q := testQuery()

	_, err := svc.Slots(ctx, q)
	require.NoError(t, err)

	source.booked = bookingsAt("09:00")

	ok, err := svc.IsBookable(ctx, q, MustClock("09:00"))
	require.NoError(t, err)
	assert.False(t, ok, "a freshly booked slot must not be bookable")

	ok, err = svc.IsBookable(ctx, q, MustClock("09:30"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.IsBookable(ctx, q, MustClock("09:10"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewQuery(t *testing.T) {
	q, err := NewQuery(" clinic-1 ", "svc-1", "2025-03-10")
	require.NoError(t, err)
	assert.Equal(t, "clinic-1", q.ClinicID)
	assert.Equal(t, "2025-03-10", q.Day())

	_, err = NewQuery("", "svc-1", "2025-03-10")
	assert.ErrorIs(t, err, ErrInvalidQuery)

	_, err = NewQuery("clinic-1", "svc-1", "10/03/2025")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidQuery)
}

func TestNewRedisCacheDisabled(t *testing.T) {
	client, _ := setupTestRedis(t)
	assert.Nil(t, NewRedisCache(nil, time.Minute))
	assert.Nil(t, NewRedisCache(client, 0))
}

func TestService_ZeroTTLCacheLeavesCachingOff(t *testing.T) {
	client, mr := setupTestRedis(t)
	source := &stubSource{duration: 30, windows: []Window{window("A", "09:00", "10:00", 1)}}
	svc := NewService(source, nil).WithCache(NewRedisCache(client, 0))
	ctx := context.Background()
	q := testQuery()

	require.NotPanics(t, func() {
		for range 2 {
			slots, err := svc.Slots(ctx, q)
			require.NoError(t, err)
			assert.Len(t, slots, 2)
		}
		svc.Invalidate(ctx, q)
	})
	assert.Equal(t, 2, source.windowCalls)
	assert.Empty(t, mr.Keys())
}
