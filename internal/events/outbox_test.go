package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxStore_InsertAndFetchDue(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := newOutboxStoreWithDB(mock)
	event := BookingPaidV1{BookingID: "b-1", ClinicID: "clinic-1", AmountPaid: 2000, Provider: "sepay"}

	mock.ExpectExec(`INSERT INTO outbox`).
		WithArgs(pgxmock.AnyArg(), "b-1", EventTypeBookingPaid, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	id, err := store.Insert(context.Background(), "b-1", event)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)

	created := time.Date(2025, 3, 9, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM outbox WHERE delivered_at IS NULL AND attempts < \$2 AND next_attempt_at <= now\(\)`).
		WithArgs(int32(10), 8).
		WillReturnRows(pgxmock.NewRows([]string{"id", "aggregate_id", "type", "payload", "attempts", "created_at"}).
			AddRow(id, "b-1", EventTypeBookingPaid, []byte(`{"booking_id":"b-1"}`), 2, created))

	entries, err := store.FetchDue(context.Background(), 10, 8)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, id, entries[0].ID)
	assert.Equal(t, 2, entries[0].Attempts)
	assert.JSONEq(t, `{"booking_id":"b-1"}`, string(entries[0].Payload))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxStore_MarkDeliveredAndRecordFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := newOutboxStoreWithDB(mock)
	id := uuid.New()
	retryAt := time.Date(2025, 3, 9, 8, 1, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE outbox SET attempts = attempts \+ 1`).
		WithArgs(id, "smtp unavailable", retryAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE outbox SET delivered_at = now\(\)`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE outbox SET delivered_at = now\(\)`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, store.RecordFailure(context.Background(), id, errors.New("smtp unavailable"), retryAt))

	ok, err := store.MarkDelivered(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.MarkDelivered(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, ok, "second delivery mark is a no-op")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxStore_InsertTxJoinsTransaction(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := newOutboxStoreWithDB(mock)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO outbox`).
		WithArgs(pgxmock.AnyArg(), "b-2", EventTypeBookingPaid, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)
	_, err = store.InsertTx(context.Background(), tx, "b-2", BookingPaidV1{BookingID: "b-2"})
	require.NoError(t, err)
	require.NoError(t, tx.Commit(context.Background()))

	assert.NoError(t, mock.ExpectationsWereMet())
}

type failure struct {
	id      uuid.UUID
	cause   string
	retryAt time.Time
}

type memoryOutbox struct {
	entries   []OutboxEntry
	delivered map[uuid.UUID]bool
	failures  []failure
}

func (m *memoryOutbox) FetchDue(_ context.Context, _ int32, maxAttempts int) ([]OutboxEntry, error) {
	var due []OutboxEntry
	for _, e := range m.entries {
		if !m.delivered[e.ID] && e.Attempts < maxAttempts {
			due = append(due, e)
		}
	}
	return due, nil
}

func (m *memoryOutbox) MarkDelivered(_ context.Context, id uuid.UUID) (bool, error) {
	if m.delivered[id] {
		return false, nil
	}
	m.delivered[id] = true
	return true, nil
}

func (m *memoryOutbox) RecordFailure(_ context.Context, id uuid.UUID, cause error, retryAt time.Time) error {
	m.failures = append(m.failures, failure{id: id, cause: cause.Error(), retryAt: retryAt})
	return nil
}

type recordingHandler struct {
	failFor uuid.UUID
	seen    []OutboxEntry
}

func (h *recordingHandler) Handle(_ context.Context, entry OutboxEntry) error {
	if entry.ID == h.failFor {
		return errors.New("smtp unavailable")
	}
	h.seen = append(h.seen, entry)
	return nil
}

func TestDeliverer_DrainSchedulesRetryForFailures(t *testing.T) {
	now := time.Date(2025, 3, 9, 8, 0, 0, 0, time.UTC)
	ok := OutboxEntry{ID: uuid.New(), Type: EventTypeBookingPaid, Payload: json.RawMessage(`{}`)}
	bad := OutboxEntry{ID: uuid.New(), Type: EventTypeBookingPaid, Payload: json.RawMessage(`{}`), Attempts: 2}
	store := &memoryOutbox{entries: []OutboxEntry{ok, bad}, delivered: map[uuid.UUID]bool{}}
	handler := &recordingHandler{failFor: bad.ID}

	d := newDeliverer(store, handler, nil)
	d.now = func() time.Time { return now }
	d.drain(context.Background())

	assert.True(t, store.delivered[ok.ID])
	assert.False(t, store.delivered[bad.ID], "failed entry stays pending")
	require.Len(t, store.failures, 1)
	assert.Equal(t, bad.ID, store.failures[0].id)
	assert.Equal(t, "smtp unavailable", store.failures[0].cause)
	assert.Equal(t, now.Add(2*time.Minute), store.failures[0].retryAt, "30s doubled twice")
	assert.Len(t, handler.seen, 1)
}

func TestDeliverer_SkipsExhaustedEntries(t *testing.T) {
	spent := OutboxEntry{ID: uuid.New(), Type: EventTypeBookingPaid, Attempts: 3}
	store := &memoryOutbox{entries: []OutboxEntry{spent}, delivered: map[uuid.UUID]bool{}}
	handler := &recordingHandler{}

	newDeliverer(store, handler, nil).WithMaxAttempts(3).drain(context.Background())

	assert.Empty(t, handler.seen)
	assert.Empty(t, store.failures)
}

func TestDeliverer_BackoffIsCapped(t *testing.T) {
	d := newDeliverer(nil, nil, nil)

	assert.Equal(t, 30*time.Second, d.backoff(0))
	assert.Equal(t, time.Minute, d.backoff(1))
	assert.Equal(t, time.Hour, d.backoff(20))
}

func TestDeliverer_StartReturnsWithoutStore(t *testing.T) {
	done := make(chan struct{})
	go func() {
		NewDeliverer(nil, &recordingHandler{}, nil).Start(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Start to return without a store")
	}
}
