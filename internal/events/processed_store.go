package events

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrMissingEventID is returned when a delivery has no provider or id to
// deduplicate on.
var ErrMissingEventID = errors.New("events: provider and event id required")

type rowQuerier interface {
	Execer
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ProcessedStore deduplicates provider webhook deliveries on
// (provider, event id). SePay retries a transfer notification until it gets
// a 2xx, so the same id can arrive several times.
type ProcessedStore struct {
	db rowQuerier
}

func NewProcessedStore(pool *pgxpool.Pool) *ProcessedStore {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return &ProcessedStore{db: pool}
}

func newProcessedStoreWithDB(db rowQuerier) *ProcessedStore {
	return &ProcessedStore{db: db}
}

func processedKey(provider, eventID string) (string, string, error) {
	provider, eventID = strings.TrimSpace(provider), strings.TrimSpace(eventID)
	if provider == "" || eventID == "" {
		return "", "", ErrMissingEventID
	}
	return provider, eventID, nil
}

// AlreadyProcessed reports whether the delivery was settled before.
func (s *ProcessedStore) AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	provider, eventID, err := processedKey(provider, eventID)
	if err != nil {
		return false, err
	}
	var seen bool
	err = s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM processed_events WHERE provider = $1 AND event_id = $2)`,
		provider, eventID,
	).Scan(&seen)
	if err != nil {
		return false, fmt.Errorf("events: check processed %s/%s: %w", provider, eventID, err)
	}
	return seen, nil
}

// MarkProcessed records the delivery; false means another request got there first.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	return s.MarkProcessedTx(ctx, s.db, provider, eventID)
}

// MarkProcessedTx records the delivery inside the caller's transaction so
// the mark rolls back with the settlement it guards.
func (s *ProcessedStore) MarkProcessedTx(ctx context.Context, exec Execer, provider, eventID string) (bool, error) {
	provider, eventID, err := processedKey(provider, eventID)
	if err != nil {
		return false, err
	}
	tag, err := exec.Exec(ctx,
		`INSERT INTO processed_events (provider, event_id) VALUES ($1, $2) ON CONFLICT (provider, event_id) DO NOTHING`,
		provider, eventID,
	)
	if err != nil {
		return false, fmt.Errorf("events: mark processed %s/%s: %w", provider, eventID, err)
	}
	return tag.RowsAffected() == 1, nil
}
