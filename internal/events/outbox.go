// Package events stores domain events in a transactional outbox and tracks
// which provider webhooks have already been handled.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// Execer is satisfied by pgxpool.Pool and pgx.Tx so writes can join a caller's transaction.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type outboxDB interface {
	Execer
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// OutboxEntry is an undelivered event and its delivery history.
type OutboxEntry struct {
	ID          uuid.UUID
	AggregateID string
	Type        string
	Payload     json.RawMessage
	Attempts    int
	CreatedAt   time.Time
}

// DeliveryHandler consumes outbox entries. An error leaves the entry
// pending for a later attempt.
type DeliveryHandler interface {
	Handle(ctx context.Context, entry OutboxEntry) error
}

// OutboxStore is the pgx-backed outbox table.
type OutboxStore struct {
	db outboxDB
}

func NewOutboxStore(pool *pgxpool.Pool) *OutboxStore {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return &OutboxStore{db: pool}
}

func newOutboxStoreWithDB(db outboxDB) *OutboxStore {
	return &OutboxStore{db: db}
}

// Insert writes the event outside any transaction.
func (s *OutboxStore) Insert(ctx context.Context, aggregateID string, event Event) (uuid.UUID, error) {
	return s.InsertTx(ctx, s.db, aggregateID, event)
}

// InsertTx writes the event through exec, normally the transaction that made
// the state change the event describes.
func (s *OutboxStore) InsertTx(ctx context.Context, exec Execer, aggregateID string, event Event) (uuid.UUID, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return uuid.Nil, fmt.Errorf("events: encode %s: %w", event.EventType(), err)
	}
	id := uuid.New()
	if _, err := exec.Exec(ctx,
		`INSERT INTO outbox (id, aggregate_id, type, payload) VALUES ($1, $2, $3, $4)`,
		id, aggregateID, event.EventType(), payload,
	); err != nil {
		return uuid.Nil, fmt.Errorf("events: insert %s for %s: %w", event.EventType(), aggregateID, err)
	}
	return id, nil
}

// FetchDue returns up to limit undelivered entries whose retry time has come
// and that have been tried fewer than maxAttempts times, oldest first.
func (s *OutboxStore) FetchDue(ctx context.Context, limit int32, maxAttempts int) ([]OutboxEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, aggregate_id, type, payload, attempts, created_at
		FROM outbox
		WHERE delivered_at IS NULL
		  AND attempts < $2
		  AND next_attempt_at <= now()
		ORDER BY created_at
		LIMIT $1
	`, limit, maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("events: fetch due: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (OutboxEntry, error) {
		var e OutboxEntry
		var payload []byte
		err := row.Scan(&e.ID, &e.AggregateID, &e.Type, &payload, &e.Attempts, &e.CreatedAt)
		e.Payload = append(json.RawMessage(nil), payload...)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("events: scan outbox: %w", err)
	}
	return entries, nil
}

// MarkDelivered closes the entry; false means it was already delivered.
func (s *OutboxStore) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE outbox SET delivered_at = now() WHERE id = $1 AND delivered_at IS NULL`, id)
	if err != nil {
		return false, fmt.Errorf("events: mark %s delivered: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// RecordFailure counts a failed attempt and schedules the next one.
func (s *OutboxStore) RecordFailure(ctx context.Context, id uuid.UUID, cause error, retryAt time.Time) error {
	if _, err := s.db.Exec(ctx, `
		UPDATE outbox
		SET attempts = attempts + 1, last_error = $2, next_attempt_at = $3
		WHERE id = $1 AND delivered_at IS NULL
	`, id, cause.Error(), retryAt); err != nil {
		return fmt.Errorf("events: record failure for %s: %w", id, err)
	}
	return nil
}

type dueStore interface {
	FetchDue(ctx context.Context, limit int32, maxAttempts int) ([]OutboxEntry, error)
	MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error)
	RecordFailure(ctx context.Context, id uuid.UUID, cause error, retryAt time.Time) error
}

const (
	defaultOutboxBatch       = 25
	defaultOutboxInterval    = 2 * time.Second
	defaultOutboxMaxAttempts = 8
	defaultOutboxBaseBackoff = 30 * time.Second
	maxOutboxBackoff         = time.Hour
)

// Deliverer polls the outbox and hands due entries to the handler, backing
// off exponentially after each failure.
type Deliverer struct {
	store       dueStore
	handler     DeliveryHandler
	logger      *logging.Logger
	batchSize   int32
	interval    time.Duration
	maxAttempts int
	baseBackoff time.Duration
	now         func() time.Time
}

// NewDeliverer polls store and passes due entries to handler.
func NewDeliverer(store *OutboxStore, handler DeliveryHandler, logger *logging.Logger) *Deliverer {
	var s dueStore
	if store != nil {
		s = store
	}
	return newDeliverer(s, handler, logger)
}

func newDeliverer(store dueStore, handler DeliveryHandler, logger *logging.Logger) *Deliverer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Deliverer{
		store:       store,
		handler:     handler,
		logger:      logger,
		batchSize:   defaultOutboxBatch,
		interval:    defaultOutboxInterval,
		maxAttempts: defaultOutboxMaxAttempts,
		baseBackoff: defaultOutboxBaseBackoff,
		now:         time.Now,
	}
}

// WithBatchSize caps how many entries one poll fetches.
func (d *Deliverer) WithBatchSize(size int32) *Deliverer {
	if size > 0 {
		d.batchSize = size
	}
	return d
}

// WithInterval sets the poll period.
func (d *Deliverer) WithInterval(interval time.Duration) *Deliverer {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

// WithMaxAttempts sets how many failures an entry may accumulate before it
// is left for manual inspection.
func (d *Deliverer) WithMaxAttempts(n int) *Deliverer {
	if n > 0 {
		d.maxAttempts = n
	}
	return d
}

// Start polls until ctx is cancelled.
func (d *Deliverer) Start(ctx context.Context) {
	if d.store == nil || d.handler == nil {
		return
	}
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.drain(ctx)
		}
	}
}

// backoff is base * 2^attempts, capped at an hour.
func (d *Deliverer) backoff(attempts int) time.Duration {
	wait := d.baseBackoff
	for i := 0; i < attempts && wait < maxOutboxBackoff; i++ {
		wait *= 2
	}
	return min(wait, maxOutboxBackoff)
}

func (d *Deliverer) drain(ctx context.Context) {
	entries, err := d.store.FetchDue(ctx, d.batchSize, d.maxAttempts)
	if err != nil {
		d.logger.Error("outbox fetch failed", "error", err)
		return
	}
	for _, entry := range entries {
		log := d.logger.With("event_id", entry.ID, "type", entry.Type, "aggregate_id", entry.AggregateID)

		if err := d.handler.Handle(ctx, entry); err != nil {
			attempt := entry.Attempts + 1
			if attempt >= d.maxAttempts {
				log.Error("outbox delivery abandoned", "error", err, "attempts", attempt)
			} else {
				log.Warn("outbox delivery failed", "error", err, "attempts", attempt)
			}
			if err := d.store.RecordFailure(ctx, entry.ID, err, d.now().Add(d.backoff(entry.Attempts))); err != nil {
				log.Error("failed to record outbox failure", "error", err)
			}
			continue
		}

		if ok, err := d.store.MarkDelivered(ctx, entry.ID); err != nil {
			log.Error("failed to mark outbox delivered", "error", err)
		} else if ok {
			log.Debug("outbox delivered")
		}
	}
}
