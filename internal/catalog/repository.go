// Package catalog lists the clinics and services patients can book.
package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Entry is an id/name pair shown in pickers.
type Entry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type rowsQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Repository reads clinics and services.
type Repository struct {
	db rowsQuerier
}

// NewRepository creates a repository backed by pgx pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("catalog: pgx pool required")
	}
	return &Repository{db: pool}
}

// NewRepositoryWithDB allows injecting mocks for tests.
func NewRepositoryWithDB(db rowsQuerier) *Repository {
	return &Repository{db: db}
}

// ListClinics returns every clinic ordered by name.
func (r *Repository) ListClinics(ctx context.Context) ([]Entry, error) {
	return r.list(ctx, `SELECT id::text, name FROM clinics ORDER BY name ASC`, "clinics")
}

// ListServices returns every service ordered by name.
func (r *Repository) ListServices(ctx context.Context) ([]Entry, error) {
	return r.list(ctx, `SELECT id::text, name FROM services ORDER BY name ASC`, "services")
}

func (r *Repository) list(ctx context.Context, query, table string) ([]Entry, error) {
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("catalog: list %s: %w", table, err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Name); err != nil {
			return nil, fmt.Errorf("catalog: scan %s: %w", table, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
